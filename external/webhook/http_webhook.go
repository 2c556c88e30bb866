package webhook

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

	"github.com/codeGROOVE-dev/retry"

	"github.com/foxseedlab/rdhours/internal/webhook"
)

const (
	requestTimeout    = 30 * time.Second
	deliveryAttempts  = 3
	deliveryDelay     = time.Second
	errorBodyLimit    = 512
	headerRunID       = "X-Rdhours-Run-Id"
	headerSchema      = "X-Rdhours-Schema-Version"
	headerIdempotency = "Idempotency-Key"
)

var errUnsupportedSchema = errors.New("unsupported run summary schema version")

type HTTPSender struct {
	webhookURL string
	client     *http.Client
	attempts   uint
	delay      time.Duration
}

// NewHTTPSender returns a sender that does nothing when webhookURL is empty.
func NewHTTPSender(webhookURL string) webhook.Sender {
	return &HTTPSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: requestTimeout},
		attempts:   deliveryAttempts,
		delay:      deliveryDelay,
	}
}

// SendRunSummary posts the summary of one run. The run id travels as a header
// and as the idempotency key, so a receiver can drop redelivered summaries.
// Server errors are retried, client errors are not.
func (s *HTTPSender) SendRunSummary(ctx context.Context, payload webhook.RunSummaryPayload) error {
	if s.webhookURL == "" {
		return nil
	}
	if payload.SchemaVersion == "" {
		payload.SchemaVersion = webhook.RunSummarySchemaVersion
	}
	if payload.SchemaVersion != webhook.RunSummarySchemaVersion {
		return fmt.Errorf("%w: %q", errUnsupportedSchema, payload.SchemaVersion)
	}
	if payload.RunID == "" {
		return errors.New("run summary has no run id")
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return retry.Do(
		func() error { return s.post(ctx, payload, b) },
		retry.Context(ctx),
		retry.Attempts(s.attempts),
		retry.Delay(s.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.OnRetry(func(n uint, err error) {
			slog.Info("retrying webhook delivery", "run_id", payload.RunID, "attempt", n+1, "error", err)
		}),
		retry.LastErrorOnly(true),
	)
}

func (s *HTTPSender) post(ctx context.Context, payload webhook.RunSummaryPayload, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return retry.Unrecoverable(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerRunID, payload.RunID)
	req.Header.Set(headerSchema, payload.SchemaVersion)
	req.Header.Set(headerIdempotency, payload.RunID)
	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return retry.Unrecoverable(err)
		}
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if isHTTPSuccessStatus(resp.StatusCode) {
		return nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	err = fmt.Errorf("webhook returned status %d for run %s: %s", resp.StatusCode, payload.RunID, strings.TrimSpace(string(snippet)))
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
		return err
	}
	return retry.Unrecoverable(err)
}

func isHTTPSuccessStatus(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}
