package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	atLiveURL    = "https://api.africastalking.com/version1/messaging"
	atSandboxURL = "https://api.sandbox.africastalking.com/version1/messaging"
)

// AfricasTalking sends SMS through the Africa's Talking messaging API.
type AfricasTalking struct {
	Client   *http.Client
	Username string
	APIKey   string
	SenderID string
	BaseURL  string
}

func NewAfricasTalking(username, apiKey, senderID string) *AfricasTalking {
	base := atLiveURL
	if username == "sandbox" {
		base = atSandboxURL
	}
	return &AfricasTalking{
		Client:   &http.Client{Timeout: 10 * time.Second},
		Username: username,
		APIKey:   apiKey,
		SenderID: senderID,
		BaseURL:  base,
	}
}

type atResponse struct {
	SMSMessageData struct {
		Message    string `json:"Message"`
		Recipients []struct {
			Number string `json:"number"`
			Status string `json:"status"`
		} `json:"Recipients"`
	} `json:"SMSMessageData"`
}

func (a *AfricasTalking) SendSMS(ctx context.Context, to, message string) error {
	if a.APIKey == "" {
		return fmt.Errorf("africastalking api key not set")
	}
	form := url.Values{}
	form.Set("username", a.Username)
	form.Set("to", to)
	form.Set("message", message)
	if a.SenderID != "" {
		form.Set("from", a.SenderID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("apiKey", a.APIKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := a.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("africastalking: status %d", resp.StatusCode)
	}

	var out atResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("africastalking: decode: %w", err)
	}
	for _, r := range out.SMSMessageData.Recipients {
		if r.Status != "Success" {
			return fmt.Errorf("africastalking: %s: %s", r.Number, r.Status)
		}
	}
	return nil
}
