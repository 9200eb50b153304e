// Package notify delivers push notifications about ledger activity.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"potledger/internal/core"
	"potledger/internal/log"
)

// Sender delivers a push notification. Delivery is best-effort everywhere it
// is called: a failed send never fails the operation that triggered it.
type Sender interface {
	SendPushNotification(ctx context.Context, title, body string) error
}

// HTTPSender posts notifications to an ntfy-style topic endpoint.
type HTTPSender struct {
	endpoint   string
	httpClient *http.Client
}

func NewHTTPSender(endpoint string, timeout time.Duration) *HTTPSender {
	return &HTTPSender{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSender) SendPushNotification(ctx context.Context, title, body string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Title", title)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return core.Upstreamf(err, "send notification")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return core.Upstreamf(nil, "send notification: endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// LogSender writes notifications to the log. Used when no push endpoint is
// configured.
type LogSender struct {
	logger *log.Logger
}

func NewLogSender(logger *log.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) SendPushNotification(ctx context.Context, title, body string) error {
	s.logger.InfoContext(ctx, "Push notification", "title", title, "body", body)
	return nil
}
