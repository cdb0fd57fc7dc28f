package mpesa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Service sends M-Pesa STK push requests through the IntaSend API.
type Service struct {
	Client  *http.Client
	APIKey  string
	BaseURL string
}

func NewService(baseURL, apiKey string, timeout time.Duration) *Service {
	return &Service{
		Client:  &http.Client{Timeout: timeout},
		APIKey:  apiKey,
		BaseURL: baseURL,
	}
}

type STKPushRequest struct {
	Amount      int64  `json:"amount"`
	PhoneNumber string `json:"phone_number"`
	Reference   string `json:"reference"`
	Description string `json:"description"`
}

// Result is the provider answer. Accepted is false for business rejections;
// transport failures are returned as errors instead.
type Result struct {
	HTTPStatus int
	Status     string
	Message    string
	Accepted   bool
	Raw        json.RawMessage
}

type pushResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
	Error   string `json:"error"`
}

// STKPush asks the provider to prompt the phone for payment. The idempotency
// key is sent as a header so a retried request is not charged twice.
func (s *Service) STKPush(ctx context.Context, req STKPushRequest, idempotencyKey string) (*Result, error) {
	jsonBody, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+s.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := s.Client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	res := &Result{HTTPStatus: resp.StatusCode}
	var apiResp pushResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("provider returned %d", resp.StatusCode)
		}
		res.Message = strings.TrimSpace(string(bodyBytes))
		return res, nil
	}

	res.Raw = bodyBytes
	res.Status = strings.ToLower(apiResp.Status)
	res.Message = firstNonEmpty(apiResp.Message, apiResp.Detail, apiResp.Error, apiResp.Status)
	res.Accepted = resp.StatusCode == http.StatusOK && (res.Status == "success" || res.Status == "pending")
	return res, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
