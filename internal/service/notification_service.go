package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"merchant-wallet-ledger/config"
	"merchant-wallet-ledger/internal/core/ports"

	"github.com/rs/zerolog"
)

// notificationRetryIntervals is the wait before each redelivery attempt.
var notificationRetryIntervals = []time.Duration{
	15 * time.Second,
	60 * time.Second,
	2 * time.Minute,
	5 * time.Minute,
	10 * time.Minute,
}

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// httpNotifier POSTs notifications to the configured channel endpoint.
type httpNotifier struct {
	url        string
	channel    string
	timeout    time.Duration
	httpClient HTTPClient
	intervals  []time.Duration
	sleep      func(time.Duration)
	log        zerolog.Logger
}

// logNotifier is used when no endpoint is configured.
type logNotifier struct {
	log zerolog.Logger
}

// NewNotifier returns the HTTP dispatcher, or a log-only dispatcher when
// cfg.URL is empty.
func NewNotifier(cfg config.NotificationConfig, httpClient HTTPClient, log zerolog.Logger) ports.Notifier {
	if cfg.URL == "" {
		return &logNotifier{log: log}
	}
	return &httpNotifier{
		url:        cfg.URL,
		channel:    cfg.Channel,
		timeout:    cfg.Timeout,
		httpClient: httpClient,
		intervals:  notificationRetryIntervals,
		sleep:      time.Sleep,
		log:        log,
	}
}

func (n *logNotifier) Dispatch(_ context.Context, msg ports.Notification) {
	// Data may hold an OTP, so only the envelope is logged.
	n.log.Info().
		Str("template", msg.Template).
		Str("store_id", msg.StoreID).
		Str("channel", msg.Channel).
		Msg("notification (log only)")
}

// Dispatch returns immediately; delivery and retries run in the background
// and failures are only logged.
func (n *httpNotifier) Dispatch(_ context.Context, msg ports.Notification) {
	if msg.Channel == "" {
		msg.Channel = n.channel
	}
	body, err := json.Marshal(msg)
	if err != nil {
		n.log.Error().Err(err).Str("template", msg.Template).Msg("notification: failed to marshal payload")
		return
	}
	go n.deliverWithRetries(body, msg.Template, msg.StoreID)
}

func (n *httpNotifier) deliverWithRetries(body []byte, template, storeID string) {
	for attempt := 0; attempt <= len(n.intervals); attempt++ {
		if attempt > 0 {
			n.sleep(n.intervals[attempt-1])
		}

		status, err := n.post(body)
		if err == nil && status >= 200 && status < 300 {
			n.log.Debug().Str("template", template).Str("store_id", storeID).Int("attempt", attempt+1).Msg("notification delivered")
			return
		}

		evt := n.log.Warn().Str("template", template).Str("store_id", storeID).Int("attempt", attempt+1)
		if err != nil {
			evt.Err(err).Msg("notification: delivery failed")
		} else {
			evt.Int("status", status).Msg("notification: non-2xx response, retrying")
		}
	}

	n.log.Error().Str("template", template).Str("store_id", storeID).Msg("notification: all retry attempts exhausted")
}

func (n *httpNotifier) post(body []byte) (int, error) {
	ctx := context.Background()
	if n.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}
