package treasury

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"contribgate/pkg/platform/circuit"
	"contribgate/pkg/platform/sentinel"
)

// HTTPForwarder forwards funds through a custody API:
//
//	POST {base}/v1/transfers                 create (idempotent on reference_id)
//	POST {base}/v1/transfers/{ref}/reversal  undo a completed transfer
//
// 2xx and 409 (already processed) are success; other 4xx responses are
// rejections; 5xx and transport errors are failures. An open breaker fails
// fast with sentinel.ErrUnavailable.
type HTTPForwarder struct {
	baseURL string
	token   string
	client  *http.Client
	breaker *circuit.Breaker
	logger  *slog.Logger
}

type HTTPOption func(*HTTPForwarder)

func WithHTTPClient(c *http.Client) HTTPOption {
	return func(f *HTTPForwarder) {
		f.client = c
	}
}

func WithToken(token string) HTTPOption {
	return func(f *HTTPForwarder) {
		f.token = token
	}
}

func WithBreaker(b *circuit.Breaker) HTTPOption {
	return func(f *HTTPForwarder) {
		f.breaker = b
	}
}

func WithLogger(logger *slog.Logger) HTTPOption {
	return func(f *HTTPForwarder) {
		f.logger = logger
	}
}

func NewHTTPForwarder(baseURL string, opts ...HTTPOption) *HTTPForwarder {
	f := &HTTPForwarder{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 15 * time.Second},
		breaker: circuit.New("treasury", circuit.WithFailureThreshold(3), circuit.WithCooldown(15*time.Second)),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

type transferRequest struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Amount      string `json:"amount"`
	ReferenceID string `json:"reference_id"`
}

func (f *HTTPForwarder) Forward(ctx context.Context, t Transfer) error {
	body, err := json.Marshal(transferRequest{
		From:        t.From.Hex(),
		To:          t.To.Hex(),
		Amount:      t.Amount.String(),
		ReferenceID: t.ReferenceID.Hex(),
	})
	if err != nil {
		return fmt.Errorf("encode transfer: %w", err)
	}
	return f.post(ctx, f.baseURL+"/v1/transfers", body)
}

func (f *HTTPForwarder) Reverse(ctx context.Context, t Transfer) error {
	return f.post(ctx, f.baseURL+"/v1/transfers/"+t.ReferenceID.Hex()+"/reversal", nil)
}

func (f *HTTPForwarder) post(ctx context.Context, url string, body []byte) error {
	if !f.breaker.Allow() {
		return fmt.Errorf("treasury circuit open: %w", sentinel.ErrUnavailable)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		f.recordFailure(ctx, err)
		return fmt.Errorf("treasury request: %w", err)
	}
	defer resp.Body.Close()
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	switch {
	case resp.StatusCode < 300, resp.StatusCode == http.StatusConflict:
		f.breaker.RecordSuccess()
		return nil
	case resp.StatusCode == http.StatusNotFound && body == nil:
		f.breaker.RecordSuccess()
		return ErrUnknownTransfer
	case resp.StatusCode < 500:
		// The custody API answered; rejections say nothing about its health.
		f.breaker.RecordSuccess()
		return fmt.Errorf("%w: %s: %s", ErrRejected, resp.Status, strings.TrimSpace(string(msg)))
	default:
		err := fmt.Errorf("treasury responded %s", resp.Status)
		f.recordFailure(ctx, err)
		return err
	}
}

func (f *HTTPForwarder) recordFailure(ctx context.Context, err error) {
	if _, change := f.breaker.RecordFailure(); change.Opened {
		f.logger.ErrorContext(ctx, "treasury circuit opened", "error", err)
	}
}
