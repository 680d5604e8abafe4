// Package remote talks to the hosted records API.
package remote

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/wolfman30/practice-records/internal/records"
	"github.com/wolfman30/practice-records/pkg/logging"
)

// ErrNotConfigured is returned when no base URL was provided.
var ErrNotConfigured = errors.New("remote: base url not configured")

// Config holds client settings.
type Config struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	RetryCount int
}

// APIError is a non-2xx response from the hosted API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote: status %d", e.Status)
	}
	return fmt.Sprintf("remote: status %d: %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 from the hosted API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == 404
}

type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type recordsBody struct {
	Success bool             `json:"success"`
	Records []records.Record `json:"records"`
	Count   int              `json:"count"`
}

type recordBody struct {
	Success bool            `json:"success"`
	Record  *records.Record `json:"record"`
}

type deleteBody struct {
	Success bool `json:"success"`
	Deleted bool `json:"deleted"`
}

type patientsBody struct {
	Success  bool                       `json:"success"`
	Patients map[string]records.Patient `json:"patients"`
}

// Client is a thin typed wrapper over the records endpoints.
type Client struct {
	http   *resty.Client
	logger *logging.Logger
}

// New builds a client. Every request is bounded by cfg.Timeout.
func New(cfg Config, logger *logging.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, ErrNotConfigured
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RetryCount < 0 {
		cfg.RetryCount = 0
	}
	if logger == nil {
		logger = logging.Default()
	}
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.Token != "" {
		httpClient.SetAuthToken(cfg.Token)
	}
	return &Client{http: httpClient, logger: logger}, nil
}

func (c *Client) request(ctx context.Context) *resty.Request {
	return c.http.R().SetContext(ctx).SetError(&errorBody{})
}

func (c *Client) check(op string, resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("remote: %s: %w", op, err)
	}
	if resp.IsError() {
		apiErr := &APIError{Status: resp.StatusCode()}
		if body, ok := resp.Error().(*errorBody); ok && body != nil {
			apiErr.Message = body.Error
		}
		c.logger.Debug("remote request failed", "operation", op, "status", apiErr.Status, "error", apiErr.Message)
		return apiErr
	}
	return nil
}

// ListRecords fetches every record.
func (c *Client) ListRecords(ctx context.Context) ([]records.Record, error) {
	var body recordsBody
	resp, err := c.request(ctx).SetResult(&body).Get("/api/records")
	if err := c.check("list records", resp, err); err != nil {
		return nil, err
	}
	if body.Records == nil {
		return []records.Record{}, nil
	}
	return body.Records, nil
}

// CreateRecord posts rec and returns the stored version with its server id.
func (c *Client) CreateRecord(ctx context.Context, rec records.Record) (records.Record, error) {
	in := records.InputFrom(rec)
	in.ID = 0
	var body recordBody
	resp, err := c.request(ctx).SetBody(in).SetResult(&body).Post("/api/records")
	if err := c.check("create record", resp, err); err != nil {
		return records.Record{}, err
	}
	if body.Record == nil {
		return records.Record{}, fmt.Errorf("remote: create record: empty response")
	}
	return *body.Record, nil
}

// UpdateRecord replaces the fields of the record with rec.ID.
func (c *Client) UpdateRecord(ctx context.Context, rec records.Record) (records.Record, error) {
	var body recordBody
	resp, err := c.request(ctx).
		SetBody(records.InputFrom(rec)).
		SetResult(&body).
		SetPathParam("id", strconv.FormatInt(rec.ID, 10)).
		Put("/api/records/{id}")
	if err := c.check("update record", resp, err); err != nil {
		return records.Record{}, err
	}
	if body.Record == nil {
		return records.Record{}, fmt.Errorf("remote: update record: empty response")
	}
	return *body.Record, nil
}

// DeleteRecord removes id and reports whether the server had it.
func (c *Client) DeleteRecord(ctx context.Context, id int64) (bool, error) {
	var body deleteBody
	resp, err := c.request(ctx).
		SetQueryParam("id", strconv.FormatInt(id, 10)).
		SetResult(&body).
		Delete("/api/records")
	if err := c.check("delete record", resp, err); err != nil {
		return false, err
	}
	return body.Deleted, nil
}

// ListPatients fetches the patient collection.
func (c *Client) ListPatients(ctx context.Context) (map[string]records.Patient, error) {
	var body patientsBody
	resp, err := c.request(ctx).SetResult(&body).Get("/api/patients")
	if err := c.check("list patients", resp, err); err != nil {
		return nil, err
	}
	if body.Patients == nil {
		return map[string]records.Patient{}, nil
	}
	return body.Patients, nil
}

// Ping probes the health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.request(ctx).Get("/health")
	return c.check("ping", resp, err)
}
