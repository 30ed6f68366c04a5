package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/portraitlab/capture-pipeline/internal/pipeline"
)

// WebhookNotifier posts capture events to an HTTP endpoint. Delivery is
// best-effort: failures are logged and never surface to the capture caller.
type WebhookNotifier struct {
	url        string
	httpClient *http.Client
	log        *logrus.Entry
}

// NewWebhookNotifier creates a webhook notifier.
func NewWebhookNotifier(url string, log *logrus.Entry) *WebhookNotifier {
	if log == nil {
		log = logrus.WithField("component", "webhook")
	}
	return &WebhookNotifier{
		url: url,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		log: log,
	}
}

// NotifyResult delivers one event, fire-and-forget.
func (n *WebhookNotifier) NotifyResult(event pipeline.Event) {
	go func() {
		if err := n.post(event); err != nil {
			n.log.WithError(err).WithField("run_id", event.RunID).Warn("webhook delivery failed")
		}
	}()
}

func (n *WebhookNotifier) post(event pipeline.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(b))
	}
	return nil
}
