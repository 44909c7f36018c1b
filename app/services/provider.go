// Package services provides external service integrations such as the messaging provider
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/amirphl/wedding-automations/config"
	"github.com/amirphl/wedding-automations/models"
	"github.com/amirphl/wedding-automations/utils"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SendRequest is one outbound templated message
type SendRequest struct {
	To             string
	TemplateRef    string
	Variables      models.TemplateVariables
	StatusCallback string
	AccountRef     string
}

// SendResult is the provider acceptance of a SendRequest
type SendResult struct {
	MessageID string
	Status    models.DeliveryStatus
}

// ProviderError is a synchronous rejection returned by the provider
type ProviderError struct {
	Code       string
	Message    string
	HTTPStatus int
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider rejected message: %s (%s)", e.Message, e.Code)
}

// MessageProvider sends templated messages through the external provider.
// A rejection is returned as *ProviderError; transport failures are returned as-is.
type MessageProvider interface {
	Send(ctx context.Context, req SendRequest) (*SendResult, error)
}

// NewMessageProvider selects the provider implementation configured by PROVIDER_MODE
func NewMessageProvider(cfg config.ProviderConfig, logger zerolog.Logger) MessageProvider {
	if cfg.Mode == "http" {
		return NewHTTPMessageProvider(cfg)
	}
	return NewMockMessageProvider(logger)
}

// HTTPMessageProvider talks to a Twilio-compatible Messages API
type HTTPMessageProvider struct {
	cfg    config.ProviderConfig
	client *http.Client
}

type providerMessageResponse struct {
	SID          string  `json:"sid"`
	Status       string  `json:"status"`
	ErrorCode    *int    `json:"error_code"`
	ErrorMessage *string `json:"error_message"`
}

type providerErrorResponse struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
	Status   int    `json:"status"`
}

// NewHTTPMessageProvider creates a new HTTP provider client
func NewHTTPMessageProvider(cfg config.ProviderConfig) *HTTPMessageProvider {
	return &HTTPMessageProvider{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Send posts a single message
func (p *HTTPMessageProvider) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	vars, err := json.Marshal(req.Variables)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal content variables: %w", err)
	}

	accountSID := p.cfg.AccountSID
	if req.AccountRef != "" {
		accountSID = req.AccountRef
	}

	form := url.Values{}
	form.Set("To", req.To)
	form.Set("ContentSid", req.TemplateRef)
	form.Set("ContentVariables", string(vars))
	if p.cfg.MessagingServiceID != "" {
		form.Set("MessagingServiceSid", p.cfg.MessagingServiceID)
	}
	callback := req.StatusCallback
	if callback == "" {
		callback = p.cfg.StatusCallbackURL
	}
	if callback != "" {
		form.Set("StatusCallback", callback)
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", strings.TrimRight(p.cfg.BaseURL, "/"), accountSID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.SetBasicAuth(p.cfg.AccountSID, p.cfg.AuthToken)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send provider request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read provider response: %w", err)
	}

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("provider unavailable: status %d", resp.StatusCode)
	}

	if resp.StatusCode >= 400 {
		var perr providerErrorResponse
		if err := json.Unmarshal(body, &perr); err != nil || perr.Code == 0 {
			return nil, &ProviderError{
				Code:       fmt.Sprintf("http-%d", resp.StatusCode),
				Message:    strings.TrimSpace(string(body)),
				HTTPStatus: resp.StatusCode,
			}
		}
		return nil, &ProviderError{
			Code:       fmt.Sprintf("%d", perr.Code),
			Message:    perr.Message,
			HTTPStatus: resp.StatusCode,
		}
	}

	var out providerMessageResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode provider response: %w", err)
	}
	if out.SID == "" {
		return nil, fmt.Errorf("provider response has no message id")
	}

	status, _ := models.CanonicalDeliveryStatus(out.Status)
	if status == "" {
		status = models.DeliveryStatusQueued
	}
	if status.IsFailure() {
		perr := &ProviderError{Code: "unknown", Message: "message failed on submission", HTTPStatus: resp.StatusCode}
		if out.ErrorCode != nil {
			perr.Code = fmt.Sprintf("%d", *out.ErrorCode)
		}
		if out.ErrorMessage != nil {
			perr.Message = *out.ErrorMessage
		}
		return nil, perr
	}

	return &SendResult{MessageID: out.SID, Status: status}, nil
}

// MockMessageProvider accepts every send and returns synthetic message ids
type MockMessageProvider struct {
	mu     sync.Mutex
	sent   []SendRequest
	reject map[string]*ProviderError
	calls  atomic.Int64
	logger zerolog.Logger
}

// NewMockMessageProvider creates a new mock provider
func NewMockMessageProvider(logger zerolog.Logger) *MockMessageProvider {
	return &MockMessageProvider{
		reject: make(map[string]*ProviderError),
		logger: logger.With().Str("component", "mock_provider").Logger(),
	}
}

// RejectAddress makes every later send to address fail with perr
func (m *MockMessageProvider) RejectAddress(address string, perr *ProviderError) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reject[address] = perr
}

// Send records the request and accepts it unless the address was marked rejected
func (m *MockMessageProvider) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.calls.Add(1)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.sent = append(m.sent, req)
	if perr, ok := m.reject[req.To]; ok {
		return nil, perr
	}

	id := "SM" + strings.ReplaceAll(uuid.NewString(), "-", "")
	m.logger.Debug().
		Str("to", req.To).
		Str("template_ref", req.TemplateRef).
		Str("provider_message_id", id).
		Time("sent_at", utils.UTCNow()).
		Msg("mock message sent")

	return &SendResult{MessageID: id, Status: models.DeliveryStatusQueued}, nil
}

// Sent returns a copy of every request received so far
func (m *MockMessageProvider) Sent() []SendRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SendRequest, len(m.sent))
	copy(out, m.sent)
	return out
}

// Calls returns the number of Send invocations
func (m *MockMessageProvider) Calls() int64 {
	return m.calls.Load()
}
