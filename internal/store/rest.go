package store

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/orzi-eg/storefront/pkg/models"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// RESTStore inserts orders through a hosted PostgREST-compatible table API,
// authenticating with the project's public key.
type RESTStore struct {
	baseURL    string
	apiKey     string
	table      string
	httpClient *http.Client
	logger     *logrus.Logger
}

// StatusError is returned when the backend answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return "order store returned status " + http.StatusText(e.StatusCode)
	}
	return "order store returned status " + http.StatusText(e.StatusCode) + ": " + e.Body
}

func NewRESTStore(baseURL, apiKey string, timeout time.Duration, logger *logrus.Logger) *RESTStore {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RESTStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		table:   OrdersTable,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

func (s *RESTStore) InsertOrder(ctx context.Context, record models.OrderRecord) error {
	s.logger.WithFields(logrus.Fields{
		"governorate": record.Governorate,
		"style":       record.BraceletStyle,
	}).Info("Sending order to order store")

	// The table API accepts a batch; a single-element array is one insert.
	jsonData, err := json.Marshal([]models.OrderRecord{record})
	if err != nil {
		return errors.Wrap(err, "failed to marshal order")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/rest/v1/"+s.table, bytes.NewReader(jsonData))
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", s.apiKey)
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Prefer", "return=minimal")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to send request to order store")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	s.logger.WithField("status", resp.StatusCode).Info("Order accepted by order store")
	return nil
}
