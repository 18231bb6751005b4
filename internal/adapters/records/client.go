// Package records is the client for the hosted record-storage REST API.
// Every call is single-shot: there are no retries and no idempotency keys,
// so a create repeated after a lost response can duplicate a record.
package records

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"coursedesk/internal/adapters/http/perf"
	"coursedesk/internal/domain/record"
)

// ErrNotFound is matched by errors.Is for 404 responses.
var ErrNotFound = errors.New("record not found")

// maxErrorBody caps how much of a failed response body is kept.
const maxErrorBody = 4 << 10

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

// Error implements error.
func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Is lets errors.Is(err, ErrNotFound) match 404 responses.
func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Options configures a Client.
type Options struct {
	BaseURL       string
	SessionCookie string // "name=value", sent with every request when set
	Timeout       time.Duration
	HTTPClient    *http.Client
	Tracer        trace.Tracer
	Collector     *perf.Collector
}

// Client talks to the /apps/{appID}/records endpoints.
type Client struct {
	baseURL   string
	cookie    string
	http      *http.Client
	tracer    trace.Tracer
	collector *perf.Collector
}

// New creates a Client.
// PRE: opts.BaseURL is an absolute URL
// POST: Returns a client; nil HTTPClient, Tracer and Collector get defaults
func New(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("records")
	}
	return &Client{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		cookie:    opts.SessionCookie,
		http:      hc,
		tracer:    tracer,
		collector: opts.Collector,
	}
}

// BaseURL returns the API base the client was built with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// List fetches a whole collection in backend order.
// PRE: appID is non-empty
// POST: Returns every record with ID injected from the collection key
func (c *Client) List(ctx context.Context, appID string) ([]record.Record, error) {
	body, err := c.call(ctx, "List", http.MethodGet, collectionPath(appID), appID, "", nil)
	if err != nil {
		return nil, err
	}
	return record.DecodeCollection(body)
}

// Get fetches a single record. A 404 yields an error matching ErrNotFound.
// PRE: appID and id are non-empty
// POST: Returns the record with its ID set
func (c *Client) Get(ctx context.Context, appID, id string) (record.Record, error) {
	body, err := c.call(ctx, "Get", http.MethodGet, recordPath(appID, id), appID, id, nil)
	if err != nil {
		return record.Record{}, err
	}
	rec, err := record.DecodeOne(body)
	if err != nil {
		return record.Record{}, err
	}
	if rec.ID == "" {
		rec.ID = id
	}
	return rec, nil
}

// Create sends fields as a new record and returns the backend's representation.
// PRE: appID is non-empty
// POST: A new record exists in the backend
func (c *Client) Create(ctx context.Context, appID string, fields record.Fields) (record.Record, error) {
	body, err := c.call(ctx, "Create", http.MethodPost, collectionPath(appID), appID, "", fields)
	if err != nil {
		return record.Record{}, err
	}
	return decodeOptional(body)
}

// Update sends only the given fields; the backend merges them.
// PRE: appID and id are non-empty
// POST: Fields not present in fields are left unchanged by the backend
func (c *Client) Update(ctx context.Context, appID, id string, fields record.Fields) (record.Record, error) {
	body, err := c.call(ctx, "Update", http.MethodPatch, recordPath(appID, id), appID, id, fields)
	if err != nil {
		return record.Record{}, err
	}
	rec, err := decodeOptional(body)
	if err != nil {
		return record.Record{}, err
	}
	if rec.ID == "" {
		rec.ID = id
	}
	return rec, nil
}

// Delete removes a record. Any 2xx response counts as success.
// PRE: appID and id are non-empty
// POST: The record is gone from the backend
func (c *Client) Delete(ctx context.Context, appID, id string) error {
	_, err := c.call(ctx, "Delete", http.MethodDelete, recordPath(appID, id), appID, id, nil)
	return err
}

func collectionPath(appID string) string {
	return "/apps/" + appID + "/records"
}

func recordPath(appID, id string) string {
	return "/apps/" + appID + "/records/" + id
}

// decodeOptional tolerates empty bodies from create/update responses.
func decodeOptional(body []byte) (record.Record, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return record.Record{Fields: record.Fields{}}, nil
	}
	return record.DecodeOne(body)
}

// call performs one request and returns the response body on 2xx.
func (c *Client) call(ctx context.Context, op, method, path, appID, id string, fields record.Fields) ([]byte, error) {
	ctx, span := c.tracer.Start(ctx, "records."+op, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("records.app_id", appID),
		attribute.String("http.request.method", method),
	)
	if id != "" {
		span.SetAttributes(attribute.String("records.record_id", id))
	}

	start := time.Now()
	status := 0
	defer func() {
		c.record(op, appID, status, start)
	}()

	var reqBody io.Reader
	if fields != nil {
		payload, err := json.Marshal(struct {
			Fields record.Fields `json:"fields"`
		}{fields})
		if err != nil {
			return nil, c.fail(span, fmt.Errorf("encode %s body: %w", op, err))
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, c.fail(span, fmt.Errorf("build %s request: %w", op, err))
	}
	req.Header.Set("Accept", "application/json")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cookie != "" {
		req.Header.Set("Cookie", c.cookie)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.fail(span, fmt.Errorf("%s %s: %w", method, path, err))
	}
	defer resp.Body.Close()
	status = resp.StatusCode
	span.SetAttributes(attribute.Int("http.response.status_code", status))

	if status < 200 || status > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, c.fail(span, &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: status,
			Body:       strings.TrimSpace(string(snippet)),
		})
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.fail(span, fmt.Errorf("read %s response: %w", op, err))
	}
	return body, nil
}

func (c *Client) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// record logs the call and feeds the perf collector.
func (c *Client) record(op, appID string, status int, start time.Time) {
	durationMs := float64(time.Since(start).Microseconds()) / 1000.0
	if status < 200 || status > 299 {
		slog.Warn("records_call_failed", "op", op, "app_id", appID, "status", status, "duration_ms", durationMs)
	} else {
		slog.Debug("records_call", "op", op, "app_id", appID, "status", status, "duration_ms", durationMs)
	}
	if c.collector != nil {
		c.collector.Record(perf.Entry{
			Kind:       perf.KindBackend,
			Path:       "records." + op + " " + appID,
			StatusCode: status,
			DurationMs: durationMs,
			Timestamp:  start,
		})
	}
}
