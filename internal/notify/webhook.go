package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"service-dispatch/internal/domain"
)

// StatusError is returned when the receiver answers with a non-2xx code.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook responded %d", e.Code)
}

// Webhook posts notifications as JSON to a fixed URL.
type Webhook struct {
	url    string
	client *http.Client
}

// NewWebhook creates a webhook notifier. A nil client gets one with the given timeout.
func NewWebhook(url string, client *http.Client, timeout time.Duration) *Webhook {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &Webhook{url: url, client: client}
}

// Notify sends one notification.
func (w *Webhook) Notify(ctx context.Context, n domain.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: post: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

// Nop drops every notification.
type Nop struct{}

// Notify implements the notifier.
func (Nop) Notify(context.Context, domain.Notification) error { return nil }
