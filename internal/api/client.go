package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	nethttp "net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tablerag/tablerag-client/internal/config"
	"github.com/tablerag/tablerag-client/internal/constants"
	"github.com/tablerag/tablerag-client/internal/http"
	"github.com/tablerag/tablerag-client/internal/logging"
	"github.com/tablerag/tablerag-client/internal/models"
	"github.com/tablerag/tablerag-client/internal/ratelimit"
)

// retryLogger implements the retryablehttp.LeveledLogger interface
type retryLogger struct {
	logger *logging.Logger
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Warn().Fields(keysAndValues).Msg("retry: " + msg)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{}) {
	// Only log errors and warnings, not all info
}

func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg("retry: " + msg)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn().Fields(keysAndValues).Msg("retry: " + msg)
}

// apiMetrics tracks API usage statistics
type apiMetrics struct {
	sync.Mutex
	totalCalls    int64
	callsByPath   map[string]int64
	windowStart   time.Time
	callsInWindow int64
}

// Client talks to the TableRAG API server.
//
// Status reads go through a retrying client and the shared status limiter.
// Submissions and uploads use a plain client and are issued exactly once.
type Client struct {
	httpClient    *nethttp.Client // idempotent reads
	submitClient  *nethttp.Client // submissions, uploads
	baseURL       string
	statusLimiter *ratelimit.RateLimiter
	logger        *logging.Logger
	metrics       *apiMetrics
}

// NewClient creates a new API client
func NewClient(cfg *config.Config, logger *logging.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		return nil, fmt.Errorf("API base URL is empty: set api_base_url in config or pass --api-url")
	}
	logger = logging.OrNop(logger)

	// Configure HTTP client with proxy support
	httpClient, err := http.ConfigureHTTPClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to configure HTTP client: %w", err)
	}
	retryClient := http.NewRetryClient(httpClient, cfg.MaxRetries, &retryLogger{logger: logger})

	submitClient, err := http.CreateOptimizedClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to configure upload client: %w", err)
	}

	return &Client{
		httpClient:    retryClient.StandardClient(),
		submitClient:  submitClient,
		baseURL:       strings.TrimSuffix(cfg.APIBaseURL, "/"),
		statusLimiter: ratelimit.NewStatusReadLimiter(cfg.StatusRatePerSec),
		logger:        logger,
		metrics: &apiMetrics{
			callsByPath: make(map[string]int64),
			windowStart: time.Now(),
		},
	}, nil
}

// BaseURL returns the server root without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// StatusLimiter returns the limiter shared by every task status read.
func (c *Client) StatusLimiter() *ratelimit.RateLimiter {
	return c.statusLimiter
}

func (c *Client) track(path string) {
	c.metrics.Lock()
	defer c.metrics.Unlock()

	c.metrics.totalCalls++
	c.metrics.callsByPath[path]++
	c.metrics.callsInWindow++

	if elapsed := time.Since(c.metrics.windowStart); elapsed >= 30*time.Second {
		c.logger.Debug().
			Float64("req_per_sec", float64(c.metrics.callsInWindow)/elapsed.Seconds()).
			Int64("total", c.metrics.totalCalls).
			Msg("API usage")
		c.metrics.callsInWindow = 0
		c.metrics.windowStart = time.Now()
	}
}

// LogUsage writes the number of requests issued per path to the debug log.
func (c *Client) LogUsage() {
	c.metrics.Lock()
	defer c.metrics.Unlock()

	if c.metrics.totalCalls == 0 {
		return
	}
	byPath := zerolog.Dict()
	for path, n := range c.metrics.callsByPath {
		byPath.Int64(path, n)
	}
	c.logger.Debug().Int64("total", c.metrics.totalCalls).Dict("by_path", byPath).Msg("API usage summary")
}

// doRequest performs a JSON request. body may be nil.
func (c *Client) doRequest(ctx context.Context, client *nethttp.Client, method, path string, query url.Values, body interface{}) (*nethttp.Response, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := nethttp.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	c.track(path)

	resp, err := client.Do(req)
	if err != nil {
		c.logger.Debug().Str("method", method).Str("path", path).Err(err).Msg("API call failed")
		return nil, &TransportError{Method: method, Path: path, Err: err}
	}
	return resp, nil
}

// readResponse checks the status and decodes a 2xx body into out (if non-nil).
func readResponse(resp *nethttp.Response, method, path string, out interface{}) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, constants.ErrorBodyLimit))
		return &TransportError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return &TransportError{Method: method, Path: path, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}

// getJSON performs a bounded GET through the retrying client.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, constants.APIRequestTimeout)
	defer cancel()

	resp, err := c.doRequest(ctx, c.httpClient, nethttp.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	return readResponse(resp, nethttp.MethodGet, path, out)
}

// postJSON performs a single POST attempt.
func (c *Client) postJSON(ctx context.Context, path string, body, out interface{}) error {
	resp, err := c.doRequest(ctx, c.submitClient, nethttp.MethodPost, path, nil, body)
	if err != nil {
		return err
	}
	return readResponse(resp, nethttp.MethodPost, path, out)
}

// submit posts body and returns the accepted task.
func (c *Client) submit(ctx context.Context, path string, body interface{}) (*models.SubmitResponse, error) {
	var out models.SubmitResponse
	if err := c.postJSON(ctx, path, body, &out); err != nil {
		return nil, err
	}
	if out.TaskID == "" {
		return nil, fmt.Errorf("POST %s: %w", path, ErrMissingTaskID)
	}
	return &out, nil
}

// GetTask reads the current status of a task: GET /{kind}/tasks/{id}.
func (c *Client) GetTask(ctx context.Context, kind models.Kind, taskID string) (*models.Task, error) {
	if !kind.Valid() || taskID == "" {
		return nil, fmt.Errorf("invalid task identity %q/%q", kind, taskID)
	}

	if err := c.statusLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter cancelled: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, constants.APIRequestTimeout)
	defer cancel()

	path := fmt.Sprintf("/%s/tasks/%s", kind, url.PathEscape(taskID))
	resp, err := c.doRequest(ctx, c.httpClient, nethttp.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == nethttp.StatusTooManyRequests {
		c.applyRetryAfter(resp, path)
	}

	var raw json.RawMessage
	if err := readResponse(resp, nethttp.MethodGet, path, &raw); err != nil {
		return nil, err
	}

	var task models.Task
	if err := json.Unmarshal(raw, &task); err != nil {
		return nil, &TransportError{Method: nethttp.MethodGet, Path: path, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode task: %w", err)}
	}
	if err := json.Unmarshal(raw, &task.Payload); err != nil {
		return nil, &TransportError{Method: nethttp.MethodGet, Path: path, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode task: %w", err)}
	}
	task.Kind = kind
	if task.ID == "" {
		task.ID = taskID
	}

	return &task, nil
}

// applyRetryAfter pauses every status read when the server throttles us.
func (c *Client) applyRetryAfter(resp *nethttp.Response, path string) {
	retryAfter := resp.Header.Get("Retry-After")
	secs, err := strconv.Atoi(strings.TrimSpace(retryAfter))
	if err != nil || secs <= 0 {
		c.logger.Warn().Str("path", path).Msg("throttled by server")
		return
	}
	c.statusLimiter.SetCooldown(time.Duration(secs) * time.Second)
	c.logger.Warn().Str("path", path).Int("retry_after_s", secs).Msg("throttled by server, pausing status reads")
}

// SubmitCleanup posts a cleanup request: POST /cleanup.
func (c *Client) SubmitCleanup(ctx context.Context, req models.CleanupRequest) (*models.SubmitResponse, error) {
	return c.submit(ctx, "/cleanup", req)
}

// SubmitImport starts an import of the excel directory: POST /data/import.
func (c *Client) SubmitImport(ctx context.Context, req models.ImportRequest) (*models.SubmitResponse, error) {
	return c.submit(ctx, "/data/import", req)
}

// BuildEmbeddings starts an embedding build: POST /embeddings/build.
func (c *Client) BuildEmbeddings(ctx context.Context, req models.EmbeddingsRequest) (*models.SubmitResponse, error) {
	return c.submit(ctx, "/embeddings/build", req)
}

// ListTables lists registered tables: GET /tables.
func (c *Client) ListTables(ctx context.Context, docDir string, includeMeta bool) (*models.TablesResponse, error) {
	query := url.Values{}
	if docDir != "" {
		query.Set("doc_dir", docDir)
	}
	if includeMeta {
		query.Set("include_meta", "true")
	}

	var out models.TablesResponse
	if err := c.getJSON(ctx, "/tables", query, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Ask sends a single chat question: POST /chat/ask. The server may take minutes.
func (c *Client) Ask(ctx context.Context, q models.ChatQuery) (*models.ChatAnswer, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.ChatRequestTimeout)
	defer cancel()

	var out models.ChatAnswer
	if err := c.postJSON(ctx, "/chat/ask", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetDirs returns the server's effective directories, with optional overrides applied.
func (c *Client) GetDirs(ctx context.Context, overrides models.Dirs) (*models.Dirs, error) {
	query := url.Values{}
	for key, value := range map[string]string{
		"excel_dir": overrides.ExcelDir,
		"doc_dir":   overrides.DocDir,
		"bge_dir":   overrides.BgeDir,
		"save_path": overrides.EmbeddingSavePath,
	} {
		if value != "" {
			query.Set(key, value)
		}
	}

	var out models.Dirs
	if err := c.getJSON(ctx, "/data/dirs", query, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health checks the server: GET /health.
func (c *Client) Health(ctx context.Context) (*models.Health, error) {
	var out models.Health
	if err := c.getJSON(ctx, "/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
