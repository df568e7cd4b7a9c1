package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/andreasskyt/vinduespudser-app/internal/render"
)

// Message is one outbound notification mail.
type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
}

// Sender delivers messages. Implementations must not block the quote flow on
// failure; callers treat delivery as fire-and-forget.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

const defaultFrom = "Vinduespudser App <onboarding@resend.dev>"

// NewSender returns a Resend-backed sender when an API key is configured and a
// logging no-op otherwise.
func NewSender(apiKey, from string) Sender {
	if strings.TrimSpace(apiKey) == "" {
		log.Print("warning: RESEND_API_KEY is not set; lead emails will not be sent")
		return &disabledSender{}
	}
	if strings.TrimSpace(from) == "" {
		from = defaultFrom
	}
	return &resendSender{
		apiKey:     apiKey,
		from:       from,
		baseURL:    "https://api.resend.com",
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type disabledSender struct{}

func (d *disabledSender) Send(ctx context.Context, msg Message) error {
	log.Printf("email disabled; dropping mail to %s (%s)", msg.To, msg.Subject)
	return nil
}

type resendSender struct {
	apiKey     string
	from       string
	baseURL    string
	httpClient *http.Client
}

func (s *resendSender) Send(ctx context.Context, msg Message) error {
	from := msg.From
	if from == "" {
		from = s.from
	}
	body, err := json.Marshal(map[string]any{
		"from":    from,
		"to":      []string{msg.To},
		"subject": msg.Subject,
		"html":    msg.HTML,
	})
	if err != nil {
		return fmt.Errorf("marshal email payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build email request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	res, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("email provider returned status %d", res.StatusCode)
	}
	return nil
}

// LeadDetails carries everything that goes into the tenant notification.
type LeadDetails struct {
	Name             string
	Email            string
	Phone            string
	Address          string
	EstimatedWindows int
	FinalPrice       int
	FrequencyLabel   string
	QuoteHTML        string
}

// BuildLeadMessage formats the tenant-facing lead notification. Customer
// fields are escaped before interpolation; the quote body is already rendered
// with escaping applied.
func BuildLeadMessage(to string, d LeadDetails) Message {
	esc := render.EscapeHTML
	html := fmt.Sprintf(`
      <h2>Nyt tilbud / lead</h2>
      <p><strong>Navn:</strong> %s</p>
      <p><strong>Email:</strong> %s</p>
      <p><strong>Telefon:</strong> %s</p>
      <p><strong>Adresse:</strong> %s</p>
      <p><strong>Estimeret antal vinduer:</strong> %d</p>
      <p><strong>Pris:</strong> %d kr.</p>
      <p><strong>Frekvens:</strong> %s</p>
      <hr>
      <div>%s</div>`,
		esc(d.Name), esc(d.Email), esc(d.Phone), esc(d.Address),
		d.EstimatedWindows, d.FinalPrice, esc(d.FrequencyLabel),
		strings.ReplaceAll(d.QuoteHTML, "\n", "<br>"))

	return Message{
		To:      to,
		Subject: fmt.Sprintf("Nyt tilbud fra %s – %s", d.Name, d.Address),
		HTML:    html,
	}
}
