// Package client talks to the remote finance API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/boddenberg/ledger-bfa/internal/domain"
	"github.com/boddenberg/ledger-bfa/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("client")

const serviceName = "finance-api"

// maxErrorBody bounds how much of an error response is kept for messages.
const maxErrorBody = 4 << 10

// FinanceClient is the adapter for the remote finance API. It implements
// port.TransactionsFetcher, port.TransactionsWriter and port.AuthGateway.
type FinanceClient struct {
	httpClient *http.Client
	baseURL    string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
	bulkhead   *resilience.Bulkhead
}

// NewFinanceClient creates a new FinanceClient.
func NewFinanceClient(httpClient *http.Client, baseURL string, cb *gobreaker.CircuitBreaker, cfg resilience.Config) *FinanceClient {
	return &FinanceClient{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		cb:         cb,
		cfg:        cfg,
		bulkhead:   resilience.NewBulkhead(cfg.MaxConcurrency),
	}
}

// call describes one request to the remote API.
type call struct {
	op      string
	method  string
	path    string
	creds   *domain.Credentials
	body    any
	headers map[string]string
	// decode reads a 2xx body. Nil discards it.
	decode func(body []byte) error
}

// do runs a call through the bulkhead, circuit breaker and retry loop,
// and maps failures to domain errors.
func (c *FinanceClient) do(ctx context.Context, cl call) error {
	ctx, span := tracer.Start(ctx, "FinanceClient."+cl.op)
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", cl.method),
		attribute.String("http.route", cl.path),
	)

	var payload []byte
	if cl.body != nil {
		var err error
		if payload, err = json.Marshal(cl.body); err != nil {
			return fmt.Errorf("encode %s body: %w", cl.op, err)
		}
	}

	if err := c.bulkhead.Acquire(ctx); err != nil {
		return mapError(err)
	}
	defer c.bulkhead.Release()

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			return c.attempt(ctx, cl, payload)
		})
	})
	if err == nil {
		return nil
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return mapError(err)
}

func (c *FinanceClient) attempt(ctx context.Context, cl call, payload []byte) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, cl.method, c.baseURL+cl.path, body)
	if err != nil {
		return resilience.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cl.creds != nil {
		req.Header.Set("Authorization", "Bearer "+cl.creds.Token)
		req.Header.Set("x-user-id", cl.creds.UserID)
	}
	for k, v := range cl.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp.StatusCode, raw)
	}
	if cl.decode == nil {
		return nil
	}
	if err := cl.decode(raw); err != nil {
		var malformed *domain.ErrMalformedResponse
		if errors.As(err, &malformed) {
			return resilience.Permanent(err)
		}
		return resilience.Permanent(&domain.ErrMalformedResponse{Service: serviceName, Reason: err.Error()})
	}
	return nil
}

// statusError classifies a non-2xx answer. Client errors are permanent;
// 5xx and 429 are retried.
func statusError(status int, body []byte) error {
	msg := upstreamMessage(body)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return resilience.Permanent(&domain.ErrUnauthorized{Message: msg})
	case status == http.StatusNotFound:
		return resilience.Permanent(&domain.ErrNotFound{Resource: "transaction", ID: msg})
	case status == http.StatusConflict:
		return resilience.Permanent(&domain.ErrConflict{Message: msg})
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return resilience.Permanent(&domain.ErrValidation{Field: "upstream", Message: msg})
	case status == http.StatusTooManyRequests || status >= 500:
		return fmt.Errorf("%s returned status %d: %s", serviceName, status, msg)
	}
	return resilience.Permanent(fmt.Errorf("%s returned status %d: %s", serviceName, status, msg))
}

// upstreamMessage pulls {"message": "..."} out of an error body, falling
// back to the trimmed body text.
func upstreamMessage(body []byte) string {
	var parsed struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		if parsed.Message != "" {
			return parsed.Message
		}
		if parsed.Error != "" {
			return parsed.Error
		}
	}
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return strings.TrimSpace(string(body))
}

// mapError turns what came out of the breaker into the error callers see.
func mapError(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &domain.ErrCircuitOpen{Service: serviceName}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &domain.ErrExternalService{Service: serviceName, Err: err}
	}
	if resilience.IsPermanent(err) {
		inner := resilience.Unwrap(err)
		var (
			unauthorized *domain.ErrUnauthorized
			notFound     *domain.ErrNotFound
			conflict     *domain.ErrConflict
			validation   *domain.ErrValidation
			malformed    *domain.ErrMalformedResponse
		)
		if errors.As(inner, &unauthorized) || errors.As(inner, &notFound) ||
			errors.As(inner, &conflict) || errors.As(inner, &validation) ||
			errors.As(inner, &malformed) {
			return inner
		}
		err = inner
	}
	return &domain.ErrExternalService{Service: serviceName, Err: err}
}
