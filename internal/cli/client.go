package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// OutcomeResponse — итог stage из API.
type OutcomeResponse struct {
	Stage      string `json:"stage"`
	Ordinal    int    `json:"ordinal"`
	Status     string `json:"status"`
	Attempts   int    `json:"attempts"`
	Output     string `json:"output,omitempty"`
	Error      string `json:"error,omitempty"`
	StartedAt  string `json:"started_at,omitempty"`
	FinishedAt string `json:"finished_at,omitempty"`
}

// RunStats — прогресс активного run из API.
type RunStats struct {
	Phase           string `json:"phase,omitempty"`
	CurrentStage    string `json:"current_stage,omitempty"`
	TotalStages     int    `json:"total_stages"`
	CompletedStages int    `json:"completed_stages"`
	Attempts        int    `json:"attempts"`
	Cancelled       bool   `json:"cancelled"`
}

// RunResponse — run из API.
type RunResponse struct {
	ID             string            `json:"id"`
	Pipeline       string            `json:"pipeline"`
	ScheduledAt    string            `json:"scheduled_at"`
	Status         string            `json:"status"`
	Trigger        string            `json:"trigger"`
	Outcomes       []OutcomeResponse `json:"outcomes,omitempty"`
	StartedAt      string            `json:"started_at,omitempty"`
	FinishedAt     string            `json:"finished_at,omitempty"`
	Error          string            `json:"error,omitempty"`
	IdempotencyKey string            `json:"idempotency_key"`
	CreatedAt      string            `json:"created_at"`
	Active         bool              `json:"active"`
	Stats          *RunStats         `json:"stats,omitempty"`
}

// StageResponse — stage из API.
type StageResponse struct {
	Name         string `json:"name"`
	Ordinal      int    `json:"ordinal"`
	Type         string `json:"type"`
	Upstream     string `json:"upstream,omitempty"`
	MaxAttempts  int    `json:"max_attempts"`
	TimeoutSec   int    `json:"timeout_sec,omitempty"`
	TimeoutFatal bool   `json:"timeout_fatal,omitempty"`
}

// PipelineResponse — pipeline из API.
type PipelineResponse struct {
	Name             string          `json:"name"`
	Schedule         string          `json:"schedule,omitempty"`
	Timezone         string          `json:"timezone,omitempty"`
	Catchup          bool            `json:"catchup"`
	SensorIntervalMs int64           `json:"sensor_interval_ms"`
	SensorTimeoutMs  int64           `json:"sensor_timeout_ms"`
	Stages           []StageResponse `json:"stages"`
}

// --- Request types ---

// TriggerRunRequest — ручной запуск pipeline.
type TriggerRunRequest struct {
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
}

// ListRunsOpts — параметры фильтрации runs.
type ListRunsOpts struct {
	Status string
	Active bool
	Limit  int
	Offset int
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// APIError — ошибка, возвращённая API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("API error: HTTP %d", e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// --- Client ---

// Client — HTTP-клиент для API stockpipe.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Pipeline ---

// GetPipeline возвращает описание pipeline.
func (c *Client) GetPipeline() (*PipelineResponse, error) {
	var p PipelineResponse
	err := c.get("/api/v1/pipeline", &p)
	return &p, err
}

// --- Runs ---

// ListRuns возвращает список runs с фильтрацией.
func (c *Client) ListRuns(opts ListRunsOpts) ([]RunResponse, error) {
	params := url.Values{}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}
	if opts.Active {
		params.Set("active", "true")
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		params.Set("offset", strconv.Itoa(opts.Offset))
	}

	var runs []RunResponse
	err := c.list("/api/v1/runs", params, &runs)
	return runs, err
}

// TriggerRun запускает pipeline для слота.
func (c *Client) TriggerRun(req TriggerRunRequest) (*RunResponse, error) {
	var run RunResponse
	err := c.post("/api/v1/runs", req, &run)
	return &run, err
}

// GetRun возвращает run по ID.
func (c *Client) GetRun(id string) (*RunResponse, error) {
	var run RunResponse
	err := c.get("/api/v1/runs/"+id, &run)
	return &run, err
}

// CancelRun запрашивает отмену активного run.
func (c *Client) CancelRun(id string) error {
	return c.post("/api/v1/runs/"+id+"/cancel", nil, nil)
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	if result == nil {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return json.Unmarshal(dr.Data, result)
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	apiErr := &APIError{Status: resp.StatusCode}
	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err == nil {
		apiErr.Code = er.Error.Code
		apiErr.Message = er.Error.Message
	}
	return apiErr
}
