package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/xela07ax/sentinel-console/internal/domain"
	"go.uber.org/zap"
)

// BackendError — отказ, о котором сообщил сам бэкенд (4xx/5xx с телом).
// Сообщение бэкенда доносим до вызывающего как есть, без повторов.
type BackendError struct {
	StatusCode int
	Message    string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend rejected request [%d]: %s", e.StatusCode, e.Message)
}

// StartCampaignRequest — запуск пачки атак. Пустой AttackIDs = все.
type StartCampaignRequest struct {
	AttackIDs []string `json:"attack_ids,omitempty"`
	AutoHeal  bool     `json:"auto_heal"`
}

// CampaignSummary — сводка кампании в терминах бэкенда
type CampaignSummary struct {
	ID         string           `json:"id"`
	CreatedAt  domain.Timestamp `json:"timestamp"`
	ScanType   string           `json:"scanType"`
	TotalTests int              `json:"totalTests"`
	Passed     int              `json:"passed"`
	Failed     int              `json:"failed"`
}

type StartCampaignResponse struct {
	CampaignID string             `json:"campaign_id"`
	Summary    CampaignSummary    `json:"summary"`
	Attacks    []domain.Record    `json:"attacks"`
	Skipped    []domain.SkipEntry `json:"skipped,omitempty"`
	Message    string             `json:"message,omitempty"`
}

type StopCampaignResponse struct {
	Accepted bool   `json:"accepted"`
	Message  string `json:"message"`
}

type CampaignStatusResponse struct {
	Running bool `json:"running"`
}

// SubmitRecordRequest — одиночная атака вне кампании
type SubmitRecordRequest struct {
	Category  string `json:"category"`
	Objective string `json:"objective"`
	Persona   string `json:"persona"`
	Prompt    string `json:"prompt"`
	AutoHeal  *bool  `json:"auto_heal,omitempty"`
}

// HealDecisionResponse — результат approve/reject на стороне бэкенда
type HealDecisionResponse struct {
	Status string             `json:"status"`
	Heal   *domain.HealAction `json:"heal,omitempty"`
}

type VaccineFileResponse struct {
	Content string `json:"content"`
	Exists  bool   `json:"exists"`
}

type HealthResponse struct {
	Status    string           `json:"status"`
	Timestamp domain.Timestamp `json:"timestamp"`
	Services  map[string]any   `json:"services,omitempty"`
}

// Client — HTTP JSON клиент внешнего Sentinel API.
// Транспортные политики (лимитер, предохранитель, повторы на чтениях)
// живут уровнем выше, в Reliability.
type Client struct {
	http    *http.Client
	baseURL string
	timeout time.Duration
	logger  *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		http:    &http.Client{},
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		logger:  logger.Named("backend"),
	}
}

func (c *Client) StartCampaign(ctx context.Context, req StartCampaignRequest) (*StartCampaignResponse, error) {
	var resp StartCampaignResponse
	if err := c.do(ctx, http.MethodPost, "/api/run-campaign", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) StopCampaign(ctx context.Context) (*StopCampaignResponse, error) {
	var resp StopCampaignResponse
	if err := c.do(ctx, http.MethodPost, "/api/campaign/stop", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) CampaignStatus(ctx context.Context) (*CampaignStatusResponse, error) {
	var resp CampaignStatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/campaign/status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) ListRecords(ctx context.Context) ([]domain.Record, error) {
	var resp []domain.Record
	if err := c.do(ctx, http.MethodGet, "/api/attacks", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) SubmitRecord(ctx context.Context, req SubmitRecordRequest) (*domain.Record, error) {
	var resp domain.Record
	if err := c.do(ctx, http.MethodPost, "/api/attacks", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) ListRules(ctx context.Context) ([]domain.Rule, error) {
	var resp []domain.Rule
	if err := c.do(ctx, http.MethodGet, "/api/guardrails", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) ResetRules(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/guardrails/reset", nil, nil)
}

func (c *Client) VaccineFile(ctx context.Context) (*VaccineFileResponse, error) {
	var resp VaccineFileResponse
	if err := c.do(ctx, http.MethodGet, "/api/vaccine-file", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) ApproveHeal(ctx context.Context, id string) (*HealDecisionResponse, error) {
	var resp HealDecisionResponse
	if err := c.do(ctx, http.MethodPost, "/api/heal/"+id+"/approve", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) RejectHeal(ctx context.Context, id string) (*HealDecisionResponse, error) {
	var resp HealDecisionResponse
	if err := c.do(ctx, http.MethodPost, "/api/heal/"+id+"/reject", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.do(ctx, http.MethodGet, "/api/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// do — общая точка вызова. Собственный защитный таймаут на каждом запросе:
// даже если обертка выше имеет свой, клиент должен иметь свой предел.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("backend: failed to encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("backend: failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend: %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("backend: failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &BackendError{
			StatusCode: resp.StatusCode,
			Message:    extractMessage(payload),
		}
	}

	if out == nil || len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("backend: failed to decode response: %w", err)
	}
	return nil
}

// extractMessage достает человекочитаемое сообщение из тела ошибки.
// Бэкенд на FastAPI кладет его в "detail", другие реализации — в "error"
// или "message". Если тело не JSON — отдаем как есть.
func extractMessage(payload []byte) string {
	var body struct {
		Detail  string `json:"detail"`
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(payload, &body); err == nil {
		switch {
		case body.Detail != "":
			return body.Detail
		case body.Error != "":
			return body.Error
		case body.Message != "":
			return body.Message
		}
	}

	text := strings.TrimSpace(string(payload))
	if text == "" {
		return "no error details provided"
	}
	return text
}
