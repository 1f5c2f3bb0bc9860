// Package constants holds tuning values shared across the tablerag client.
package constants

import "time"

// Application identity
const (
	// AppName is used for the binary, the config directory and the User-Agent.
	AppName = "tablerag"

	// DefaultAPIBaseURL matches the server's default bind address.
	DefaultAPIBaseURL = "http://127.0.0.1:8000"

	// EnvAPIURL overrides api_base_url.
	EnvAPIURL = "TABLERAG_API_URL"

	// EnvPollIntervalMS overrides poll_interval_ms.
	EnvPollIntervalMS = "TABLERAG_POLL_INTERVAL_MS"
)

// Task polling
const (
	// DefaultPollInterval is the wait between the end of one status read and the next.
	DefaultPollInterval = 1000 * time.Millisecond

	// MinPollInterval protects the server from misconfigured intervals.
	MinPollInterval = 50 * time.Millisecond

	// DataPollTimeout bounds waits on upload and import tasks (1 hour).
	DataPollTimeout = 3600 * time.Second

	// CleanupPollTimeout bounds waits on cleanup tasks (10 minutes).
	CleanupPollTimeout = 600 * time.Second

	// EmbeddingsPollTimeout bounds waits on embedding builds (30 minutes).
	EmbeddingsPollTimeout = 1800 * time.Second

	// StatusReadRatePerSec caps status reads across all concurrent polls.
	StatusReadRatePerSec = 20.0

	// StatusReadBurst is the bucket size for status reads.
	StatusReadBurst = 20.0
)

// Event bus
const (
	// EventBusDefaultBuffer - default buffer size for event channels
	EventBusDefaultBuffer = 256

	// EventBusMaxBuffer - maximum buffer size
	EventBusMaxBuffer = 5000
)

// API and Context Timeouts
const (
	// APIRequestTimeout bounds non-upload API calls (30 seconds)
	APIRequestTimeout = 30 * time.Second

	// ChatRequestTimeout bounds a chat question; answer generation is slow (5 minutes)
	ChatRequestTimeout = 5 * time.Minute

	// ProxyWarmupTimeout bounds the proxy warmup request (15 seconds)
	ProxyWarmupTimeout = 15 * time.Second

	// ErrorBodyLimit caps how much of a failed response body is kept in errors
	ErrorBodyLimit = 4096
)

// HTTP Client Timeouts
const (
	// HTTPIdleConnTimeout - how long to keep idle connections open (90 seconds)
	HTTPIdleConnTimeout = 90 * time.Second

	// HTTPTLSHandshakeTimeout - timeout for TLS handshake (60 seconds)
	HTTPTLSHandshakeTimeout = 60 * time.Second

	// HTTPExpectContinueTimeout - timeout for 100-continue response (1 second)
	HTTPExpectContinueTimeout = 1 * time.Second

	// HTTPDialTimeout - timeout for establishing connection (30 seconds)
	HTTPDialTimeout = 30 * time.Second

	// HTTPDialKeepAlive - keep-alive period for dialer (30 seconds)
	HTTPDialKeepAlive = 30 * time.Second

	// HTTPClientTimeout - overall timeout for JSON API clients (300 seconds)
	HTTPClientTimeout = 300 * time.Second
)

// Retry
const (
	// DefaultMaxRetries is zero: status reads are not retried unless configured.
	DefaultMaxRetries = 0

	// RetryWaitMin is the first backoff step when retries are enabled.
	RetryWaitMin = 500 * time.Millisecond

	// RetryWaitMax caps the backoff when retries are enabled.
	RetryWaitMax = 10 * time.Second
)

// Rate Limiter
const (
	// RateLimitLogThreshold - delay threshold for logging (2 seconds)
	RateLimitLogThreshold = 2 * time.Second
)

// Progress display
const (
	// ProgressRefreshRate - redraw interval for upload bars
	ProgressRefreshRate = 300 * time.Millisecond

	// SpinnerThrottle - minimum interval between spinner redraws
	SpinnerThrottle = 100 * time.Millisecond
)

// Dev server
const (
	// DevServerAddr is where `tablerag devserver` listens by default.
	DevServerAddr = "127.0.0.1:8000"

	// DevServerTaskDuration is how long an emulated task stays running.
	DevServerTaskDuration = 3 * time.Second

	// DevServerTaskRetention is how long a finished emulated task stays readable.
	DevServerTaskRetention = time.Hour

	// DevServerVersion is reported by the emulated /health endpoint.
	DevServerVersion = "0.1.0"
)
