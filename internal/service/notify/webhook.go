package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	drepo "SignalFlow/internal/domain/repository"
	xhttp "SignalFlow/pkg/http"
	"SignalFlow/pkg/logger"
)

type webhookBody struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	SentAt  time.Time       `json:"sent_at"`
}

// Webhook posts every event as JSON to a fixed URL.
type Webhook struct {
	url    string
	client *xhttp.Client
	log    *logger.Logger
}

// NewWebhook returns a notifier that POSTs to url. An empty url yields a
// notifier that only logs.
func NewWebhook(url string, timeout time.Duration, log *logger.Logger) drepo.Notifier {
	log = log.With(logger.String("component", "notifier"))
	if url == "" {
		return &LogNotifier{log: log}
	}
	return &Webhook{
		url:    url,
		client: xhttp.NewClient(xhttp.WithTimeout(timeout)),
		log:    log,
	}
}

func (w *Webhook) Notify(ctx context.Context, eventType string, payload []byte) error {
	if !json.Valid(payload) {
		b, _ := json.Marshal(string(payload))
		payload = b
	}
	err := w.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:  http.MethodPost,
		URL:     w.url,
		Headers: map[string]string{"X-Event-Type": eventType},
		Body: webhookBody{
			Event:   eventType,
			Payload: payload,
			SentAt:  time.Now().UTC(),
		},
	}, nil)
	if err != nil {
		return fmt.Errorf("webhook %s: %w", eventType, err)
	}
	return nil
}

// LogNotifier writes notifications to the log.
type LogNotifier struct {
	log *logger.Logger
}

func (n *LogNotifier) Notify(_ context.Context, eventType string, payload []byte) error {
	n.log.Info("notification",
		logger.String("event_type", eventType),
		logger.Int("bytes", len(payload)),
	)
	return nil
}
