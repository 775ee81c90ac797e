package web

import (
	"context"
	"embed"
	"encoding/json"
	"html/template"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/orzi-eg/storefront/internal/catalog"
	"github.com/orzi-eg/storefront/internal/orderform"
	"github.com/orzi-eg/storefront/pkg/models"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

//go:embed templates/*.html
var templateFS embed.FS

const SessionCookie = "orzi_session"

// SocketHub subscribes a websocket connection to a form session.
type SocketHub interface {
	HandleWebSocket(w http.ResponseWriter, r *http.Request, sessionID string)
}

type Options struct {
	SecureCookies bool
	StaticDir     string
	// HealthDetails adds entries to the /health response, e.g. the order
	// store breaker state.
	HealthDetails func() map[string]interface{}
}

type Handler struct {
	sessions *orderform.Sessions
	hub      SocketHub
	logger   *logrus.Logger
	page     *template.Template
	opts     Options
}

type session struct {
	form *orderform.Controller
}

type pageData struct {
	View         orderform.View
	Governorates []string
	Variants     []catalog.Variant
	Specs        []catalog.Spec
}

func NewHandler(sessions *orderform.Sessions, hub SocketHub, logger *logrus.Logger, opts Options) (*Handler, error) {
	page, err := template.ParseFS(templateFS, "templates/index.html")
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse page template")
	}
	return &Handler{
		sessions: sessions,
		hub:      hub,
		logger:   logger,
		page:     page,
		opts:     opts,
	}, nil
}

func (h *Handler) Router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/", h.withSession(h.Index)).Methods("GET")
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
	router.HandleFunc("/form", h.withSession(h.GetForm)).Methods("GET")
	router.HandleFunc("/form/field", h.withSession(h.SetField)).Methods("POST")
	router.HandleFunc("/form/variant/{variant}", h.withSession(h.SelectVariant)).Methods("POST")
	router.HandleFunc("/form/areas", h.GetAreas).Methods("GET")
	router.HandleFunc("/form/submit", h.withSession(h.Submit)).Methods("POST")
	router.HandleFunc("/orders", h.withSession(h.CreateOrder)).Methods("POST")
	router.HandleFunc("/notice/dismiss", h.withSession(h.DismissNotice)).Methods("POST")
	router.HandleFunc("/ws", h.HandleWebSocket).Methods("GET")
	if h.opts.StaticDir != "" {
		router.PathPrefix("/").Handler(http.FileServer(http.Dir(h.opts.StaticDir))).Methods("GET")
	}

	router.Use(loggingMiddleware(h.logger))
	return router
}

func (h *Handler) Index(w http.ResponseWriter, r *http.Request, s session) {
	data := pageData{
		View:         s.form.View(),
		Governorates: catalog.Governorates(),
		Variants:     catalog.Variants(),
		Specs:        catalog.Specs(),
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.page.Execute(w, data); err != nil {
		h.logger.WithError(err).Error("Failed to render page")
	}
}

func (h *Handler) GetForm(w http.ResponseWriter, r *http.Request, s session) {
	h.respondWithJSON(w, http.StatusOK, s.form.View())
}

func (h *Handler) SetField(w http.ResponseWriter, r *http.Request, s session) {
	field := orderform.Field(r.FormValue("field"))
	if err := s.form.SetField(field, r.FormValue("value")); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Unknown field")
		return
	}
	h.respondWithJSON(w, http.StatusOK, s.form.View())
}

func (h *Handler) SelectVariant(w http.ResponseWriter, r *http.Request, s session) {
	variant := catalog.VariantID(mux.Vars(r)["variant"])
	if err := s.form.SelectVariant(variant); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Unknown variant")
		return
	}
	h.respondWithJSON(w, http.StatusOK, s.form.View())
}

func (h *Handler) GetAreas(w http.ResponseWriter, r *http.Request) {
	areas := catalog.Areas(r.URL.Query().Get("governorate"))
	if areas == nil {
		areas = []string{}
	}
	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"areas": areas,
	})
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request, s session) {
	view := s.form.View()
	if !view.SubmitEnabled {
		h.respondSubmitError(w, http.StatusConflict, "Submission unavailable", s)
		return
	}
	if missing := missingFields(view.Draft); len(missing) > 0 {
		h.respondSubmitError(w, http.StatusBadRequest, "Missing required fields: "+strings.Join(missing, ", "), s)
		return
	}
	h.respondSubmitted(w, s, s.form.Submit(writeContext(r)))
}

// writeContext detaches the order write from the request: once issued it
// runs to completion even if the client goes away. The store timeout
// still bounds it.
func writeContext(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

func missingFields(draft models.DraftOrder) []string {
	values := map[orderform.Field]string{
		orderform.FieldName:        draft.Name,
		orderform.FieldPhone:       draft.Phone,
		orderform.FieldGovernorate: draft.Governorate,
		orderform.FieldArea:        draft.Area,
		orderform.FieldFullAddress: draft.FullAddress,
	}
	var missing []string
	for _, field := range orderFields {
		if values[field] == "" {
			missing = append(missing, string(field))
		}
	}
	return missing
}

func (h *Handler) respondSubmitted(w http.ResponseWriter, s session, err error) {
	switch {
	case err == nil:
		h.respondWithJSON(w, http.StatusOK, s.form.View())
	case errors.Is(err, orderform.ErrSubmitUnavailable):
		h.respondSubmitError(w, http.StatusConflict, "Submission unavailable", s)
	default:
		// The controller already logged the cause.
		h.respondSubmitError(w, http.StatusBadGateway, orderform.FailureMessage, s)
	}
}

// submitError carries the current view so the page can re-enable its
// controls after any rejected submission.
type submitError struct {
	models.OrderResponse
	View orderform.View `json:"view"`
}

func (h *Handler) respondSubmitError(w http.ResponseWriter, code int, message string, s session) {
	h.respondWithJSON(w, code, submitError{
		OrderResponse: models.OrderResponse{Success: false, Message: message},
		View:          s.form.View(),
	})
}

var orderFields = []orderform.Field{
	orderform.FieldName,
	orderform.FieldPhone,
	orderform.FieldGovernorate,
	orderform.FieldArea,
	orderform.FieldFullAddress,
}

// CreateOrder takes the whole form in one post, for browsers without
// script. Required fields are checked here, at the boundary.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request, s session) {
	if err := r.ParseForm(); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid form body")
		return
	}

	var missing []string
	for _, field := range orderFields {
		if r.PostForm.Get(string(field)) == "" {
			missing = append(missing, string(field))
		}
	}
	if r.PostForm.Get("bracelet") == "" {
		missing = append(missing, "bracelet")
	}
	if len(missing) > 0 {
		h.respondWithError(w, http.StatusBadRequest, "Missing required fields: "+strings.Join(missing, ", "))
		return
	}

	governorate := r.PostForm.Get(string(orderform.FieldGovernorate))
	if !catalog.HasArea(governorate, r.PostForm.Get(string(orderform.FieldArea))) {
		h.respondWithError(w, http.StatusBadRequest, "Area does not belong to governorate")
		return
	}

	// Governorate precedes area so the area survives the reset.
	for _, field := range orderFields {
		if err := s.form.SetField(field, r.PostForm.Get(string(field))); err != nil {
			h.respondWithError(w, http.StatusBadRequest, "Unknown field")
			return
		}
	}
	if err := s.form.SelectVariant(catalog.VariantID(r.PostForm.Get("bracelet"))); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Unknown variant")
		return
	}

	err := s.form.Submit(writeContext(r))
	if wantsJSON(r) {
		h.respondSubmitted(w, s, err)
		return
	}
	if errors.Is(err, orderform.ErrSubmitUnavailable) {
		h.respondWithError(w, http.StatusConflict, "Submission unavailable")
		return
	}
	// Success and failure both land back on the page, which shows the notice.
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) DismissNotice(w http.ResponseWriter, r *http.Request, s session) {
	s.form.DismissNotice()
	if wantsJSON(r) {
		h.respondWithJSON(w, http.StatusOK, s.form.View())
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		h.respondWithError(w, http.StatusUnauthorized, "No form session")
		return
	}
	if _, ok := h.sessions.Get(cookie.Value); !ok {
		h.respondWithError(w, http.StatusNotFound, "Unknown form session")
		return
	}
	h.hub.HandleWebSocket(w, r, cookie.Value)
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":   "healthy",
		"service":  "storefront",
		"sessions": h.sessions.Len(),
	}
	if h.opts.HealthDetails != nil {
		for k, v := range h.opts.HealthDetails() {
			status[k] = v
		}
	}
	h.respondWithJSON(w, http.StatusOK, status)
}

func (h *Handler) withSession(fn func(http.ResponseWriter, *http.Request, session)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var id string
		if cookie, err := r.Cookie(SessionCookie); err == nil {
			id = cookie.Value
		}

		newID, form := h.sessions.GetOrCreate(id)
		if newID != id {
			http.SetCookie(w, &http.Cookie{
				Name:     SessionCookie,
				Value:    newID,
				Path:     "/",
				HttpOnly: true,
				Secure:   h.opts.SecureCookies,
				SameSite: http.SameSiteLaxMode,
			})
		}
		fn(w, r, session{form: form})
	}
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

func (h *Handler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		h.logger.WithError(err).Error("Failed to encode response")
		code = http.StatusInternalServerError
		response = []byte(`{"success":false,"message":"Internal error"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func (h *Handler) respondWithError(w http.ResponseWriter, code int, message string) {
	h.respondWithJSON(w, code, models.OrderResponse{Success: false, Message: message})
}
