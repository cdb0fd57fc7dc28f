package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const brevoURL = "https://api.brevo.com/v3/smtp/email"

// Brevo sends transactional email through the Brevo HTTP API.
type Brevo struct {
	Client      *http.Client
	APIKey      string
	BaseURL     string
	SenderEmail string
	SenderName  string
}

func NewBrevo(apiKey, senderEmail, senderName string) *Brevo {
	return &Brevo{
		Client:      &http.Client{Timeout: 10 * time.Second},
		APIKey:      apiKey,
		BaseURL:     brevoURL,
		SenderEmail: senderEmail,
		SenderName:  senderName,
	}
}

type brevoContact struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type brevoEmail struct {
	Sender      brevoContact   `json:"sender"`
	To          []brevoContact `json:"to"`
	Subject     string         `json:"subject"`
	HTMLContent string         `json:"htmlContent"`
}

func (b *Brevo) SendEmail(ctx context.Context, toEmail, toName, subject, html string) error {
	if b.APIKey == "" {
		return fmt.Errorf("brevo api key not set")
	}
	body, err := json.Marshal(brevoEmail{
		Sender:      brevoContact{Email: b.SenderEmail, Name: b.SenderName},
		To:          []brevoContact{{Email: toEmail, Name: toName}},
		Subject:     subject,
		HTMLContent: html,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.BaseURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("api-key", b.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := b.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("brevo: status %d: %s", resp.StatusCode, msg)
	}
	return nil
}
