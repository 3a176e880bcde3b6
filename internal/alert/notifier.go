// Package alert delivers operator notifications to a webhook.
package alert

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventGatewayUnauthorized is sent when a polling loop's credentials are
// rejected by the gateway.
const EventGatewayUnauthorized = "gateway.unauthorized"

type payload struct {
	Event     string      `json:"event"`
	Timestamp string      `json:"timestamp"`
	Data      payloadData `json:"data"`
}

type payloadData struct {
	Loop    string `json:"loop"`
	Message string `json:"message"`
}

// Notifier posts alerts to a single webhook URL. Delivery is
// fire-and-forget; failures are logged and dropped.
type Notifier struct {
	url    string
	client *http.Client
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewNotifier creates a Notifier. An empty url disables delivery.
func NewNotifier(url string, timeout time.Duration, logger *slog.Logger) *Notifier {
	return &Notifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Enabled reports whether a webhook URL is configured.
func (n *Notifier) Enabled() bool {
	return n.url != ""
}

// DispatchUnauthorized implements engine.AlertDispatcher.
func (n *Notifier) DispatchUnauthorized(loop string, at time.Time) {
	n.logger.Error("gateway rejected credentials",
		slog.String("loop", loop),
		slog.Time("at", at),
	)
	if !n.Enabled() {
		return
	}

	p := payload{
		Event:     EventGatewayUnauthorized,
		Timestamp: at.UTC().Truncate(time.Second).Format(time.RFC3339),
		Data: payloadData{
			Loop:    loop,
			Message: "gateway returned 401 for loop " + loop + "; check GATEWAY_TOKEN",
		},
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.deliver(EventGatewayUnauthorized, p)
	}()
}

// Wait blocks until in-flight deliveries finish.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) deliver(eventType string, p payload) {
	body, err := json.Marshal(p)
	if err != nil {
		return
	}

	req, err := http.NewRequest(http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		n.logger.Warn("alert request build failed", slog.String("error", err.Error()))
		return
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Delivery-Id", uuid.New().String())
	req.Header.Set("X-Event-Type", eventType)

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Warn("alert delivery failed", slog.String("error", err.Error()))
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		n.logger.Warn("alert webhook rejected delivery", slog.Int("status", resp.StatusCode))
	}
}
