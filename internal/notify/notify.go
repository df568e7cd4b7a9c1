package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"
)

// Notifier delivers outbound webhooks. Delivery is fire-and-forget: errors are
// logged and never block or fail the caller's flow.
type Notifier struct {
	httpClient *http.Client
}

func New() *Notifier {
	return &Notifier{httpClient: &http.Client{Timeout: 10 * time.Second}}
}

// NewWithClient is used by tests.
func NewWithClient(c *http.Client) *Notifier {
	return &Notifier{httpClient: c}
}

// Send posts payload as JSON to url. Safe to call in a goroutine.
func (n *Notifier) Send(ctx context.Context, url string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("webhook payload marshal failed: %v", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		log.Printf("webhook request build failed: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := n.httpClient.Do(req)
	if err != nil {
		log.Printf("webhook delivery failed: %v", err)
		return
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		log.Printf("webhook delivery returned status %d from %s", res.StatusCode, url)
	}
}
