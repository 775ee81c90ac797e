// Package orderform holds the draft order of one storefront visitor and
// drives its submission to the order store.
package orderform

import (
	"context"
	"sync"
	"time"

	"github.com/orzi-eg/storefront/internal/catalog"
	"github.com/orzi-eg/storefront/internal/store"
	"github.com/orzi-eg/storefront/pkg/models"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type Field string

const (
	FieldName        Field = "name"
	FieldPhone       Field = "phone"
	FieldGovernorate Field = "governorate"
	FieldArea        Field = "area"
	FieldFullAddress Field = "full_address"
)

const (
	SubmitLabel     = "إرسال الطلب"
	SubmittingLabel = "جاري الإرسال..."
	SuccessTitle    = "تم استلام طلبك بنجاح!"
	SuccessMessage  = "سنتواصل معك خلال 24 ساعة"
	FailureMessage  = "حدث خطأ في إرسال الطلب. يرجى المحاولة مرة أخرى."

	DefaultNoticeTimeout = 5 * time.Second
)

var (
	ErrUnknownField      = errors.New("unknown form field")
	ErrUnknownVariant    = errors.New("unknown bracelet variant")
	ErrSubmitUnavailable = errors.New("submission unavailable")
	ErrSubmissionFailed  = errors.New("order submission failed")
)

// SubmissionError carries the store error behind a failed submission.
// It matches ErrSubmissionFailed with errors.Is.
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string { return ErrSubmissionFailed.Error() + ": " + e.Err.Error() }

func (e *SubmissionError) Unwrap() error { return e.Err }

func (e *SubmissionError) Is(target error) bool { return target == ErrSubmissionFailed }

type NoticeKind string

const (
	NoticeSuccess NoticeKind = "success"
	NoticeFailure NoticeKind = "failure"
)

type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Title   string     `json:"title,omitempty"`
	Message string     `json:"message"`
}

// View is a snapshot of the form; every field is derived from controller
// state at the time it was taken.
type View struct {
	Version          uint64            `json:"version"`
	Draft            models.DraftOrder `json:"draft"`
	Variant          catalog.VariantID `json:"variant"`
	Busy             bool              `json:"busy"`
	SubmitEnabled    bool              `json:"submit_enabled"`
	SubmitLabel      string            `json:"submit_label"`
	ShowAreaSelector bool              `json:"show_area_selector"`
	AreaOptions      []string          `json:"area_options"`
	Notice           *Notice           `json:"notice"`
}

type Options struct {
	// NoticeTimeout is how long the success notice stays up. Zero means
	// DefaultNoticeTimeout.
	NoticeTimeout time.Duration
}

type Controller struct {
	store         store.OrderStore
	logger        *logrus.Logger
	noticeTimeout time.Duration

	mutex       sync.Mutex
	draft       models.DraftOrder
	variant     catalog.VariantID
	busy        bool
	notice      *Notice
	noticeGen   uint64
	noticeTimer *time.Timer
	version     uint64
	onChange    func(View)
}

func NewController(orderStore store.OrderStore, logger *logrus.Logger, opts Options) *Controller {
	if opts.NoticeTimeout <= 0 {
		opts.NoticeTimeout = DefaultNoticeTimeout
	}
	return &Controller{
		store:         orderStore,
		logger:        logger,
		noticeTimeout: opts.NoticeTimeout,
	}
}

// OnChange registers fn to receive a view after every state change,
// including the timed dismissal of the success notice. fn runs without
// the controller lock held.
func (c *Controller) OnChange(fn func(View)) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.onChange = fn
}

func (c *Controller) SetField(field Field, value string) error {
	c.mutex.Lock()
	switch field {
	case FieldName:
		c.draft.Name = value
	case FieldPhone:
		c.draft.Phone = value
	case FieldGovernorate:
		c.draft.Governorate = value
		c.draft.Area = ""
	case FieldArea:
		c.draft.Area = value
	case FieldFullAddress:
		c.draft.FullAddress = value
	default:
		c.mutex.Unlock()
		return errors.Wrapf(ErrUnknownField, "field %q", field)
	}
	c.changedLocked()
	return nil
}

func (c *Controller) SelectVariant(id catalog.VariantID) error {
	variant, ok := catalog.LookupVariant(id)
	if !ok {
		return errors.Wrapf(ErrUnknownVariant, "variant %q", id)
	}

	c.mutex.Lock()
	c.variant = variant.ID
	c.draft.BraceletStyle = variant.Label
	c.changedLocked()
	return nil
}

// AreaOptions lists the areas of the currently chosen governorate.
func (c *Controller) AreaOptions() []string {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return catalog.Areas(c.draft.Governorate)
}

// Submit sends the draft to the order store. It is a no-op returning
// ErrSubmitUnavailable while no variant is chosen or a submission is
// already in flight. On failure the draft is kept for another attempt.
func (c *Controller) Submit(ctx context.Context) error {
	c.mutex.Lock()
	if c.busy || c.variant == catalog.VariantNone {
		c.mutex.Unlock()
		return ErrSubmitUnavailable
	}
	variant, _ := catalog.LookupVariant(c.variant)
	record := models.NewOrderRecord(c.draft, variant.Image)
	c.busy = true
	c.changedLocked()

	settled := false
	defer func() {
		if !settled {
			c.mutex.Lock()
			c.busy = false
			c.changedLocked()
		}
	}()

	err := c.store.InsertOrder(ctx, record)

	c.mutex.Lock()
	settled = true
	c.busy = false
	if err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"governorate": record.Governorate,
			"style":       record.BraceletStyle,
		}).Error("Error submitting order")
		c.showNoticeLocked(Notice{Kind: NoticeFailure, Message: FailureMessage}, false)
		c.changedLocked()
		return &SubmissionError{Err: err}
	}

	c.logger.WithFields(logrus.Fields{
		"governorate": record.Governorate,
		"area":        record.Area,
		"style":       record.BraceletStyle,
	}).Info("Order submitted")
	c.draft = models.DraftOrder{}
	c.variant = catalog.VariantNone
	c.showNoticeLocked(Notice{Kind: NoticeSuccess, Title: SuccessTitle, Message: SuccessMessage}, true)
	c.changedLocked()
	return nil
}

// DismissNotice hides the current notice. A pending automatic dismissal
// is cancelled.
func (c *Controller) DismissNotice() {
	c.mutex.Lock()
	if c.notice == nil {
		c.mutex.Unlock()
		return
	}
	c.clearNoticeLocked()
	c.changedLocked()
}

func (c *Controller) View() View {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.viewLocked()
}

func (c *Controller) Busy() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.busy
}

// Close stops the notice timer.
func (c *Controller) Close() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.noticeTimer != nil {
		c.noticeTimer.Stop()
		c.noticeTimer = nil
	}
}

func (c *Controller) viewLocked() View {
	label := SubmitLabel
	if c.busy {
		label = SubmittingLabel
	}
	var notice *Notice
	if c.notice != nil {
		n := *c.notice
		notice = &n
	}
	return View{
		Version:          c.version,
		Draft:            c.draft,
		Variant:          c.variant,
		Busy:             c.busy,
		SubmitEnabled:    !c.busy && c.variant != catalog.VariantNone,
		SubmitLabel:      label,
		ShowAreaSelector: c.draft.Governorate != "",
		AreaOptions:      catalog.Areas(c.draft.Governorate),
		Notice:           notice,
	}
}

// changedLocked bumps the version, releases the lock and notifies the
// observer. The caller must hold the lock and must not touch state after.
func (c *Controller) changedLocked() {
	c.version++
	view := c.viewLocked()
	onChange := c.onChange
	c.mutex.Unlock()

	if onChange != nil {
		onChange(view)
	}
}

func (c *Controller) showNoticeLocked(n Notice, autoDismiss bool) {
	c.clearNoticeLocked()
	c.notice = &n
	if !autoDismiss {
		return
	}
	gen := c.noticeGen
	c.noticeTimer = time.AfterFunc(c.noticeTimeout, func() {
		c.expireNotice(gen)
	})
}

func (c *Controller) clearNoticeLocked() {
	if c.noticeTimer != nil {
		c.noticeTimer.Stop()
		c.noticeTimer = nil
	}
	c.noticeGen++
	c.notice = nil
}

// expireNotice hides the notice shown under gen unless it was already
// dismissed or replaced.
func (c *Controller) expireNotice(gen uint64) {
	c.mutex.Lock()
	if c.noticeGen != gen || c.notice == nil {
		c.mutex.Unlock()
		return
	}
	c.noticeTimer = nil
	c.noticeGen++
	c.notice = nil
	c.changedLocked()
}
