package govee

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultBaseURL is the vendor's v1 router API.
const DefaultBaseURL = "https://openapi.api.govee.com/router/api/v1"

const (
	apiKeyHeader = "Govee-API-Key"

	pathDevices = "/user/devices"
	pathState   = "/device/state"
	pathControl = "/device/control"

	statusSuccess = "success"

	defaultTimeout = 10 * time.Second

	// maxResponseBytes caps how much of a response body is read.
	maxResponseBytes = 4 << 20
)

// Logger defines the logging interface used by the Client.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Client.
type Options struct {
	APIKey  string
	BaseURL string

	// Timeout bounds each HTTP request. Defaults to 10s.
	Timeout time.Duration

	// Location decides when the daily call counter rolls over. Defaults to UTC.
	Location *time.Location

	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// Client talks to the vendor cloud API.
//
// State and command calls never return errors: transport failures, rate
// limiting and malformed answers are logged and surface as an empty
// StateReport, which callers treat as "no data".
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
	loc     *time.Location
	usage   *UsageCounter
	logger  Logger
}

// NewClient creates a vendor API client.
func NewClient(opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		http:    httpClient,
		baseURL: baseURL,
		apiKey:  opts.APIKey,
		loc:     loc,
		usage:   NewUsageCounter(loc),
		logger:  noopLogger{},
	}, nil
}

// SetLogger sets the logger for the client.
func (c *Client) SetLogger(logger Logger) {
	c.logger = logger
}

// Usage returns the current API call counters.
func (c *Client) Usage() Usage {
	return c.usage.Snapshot()
}

// RestoreUsage seeds the call counter, typically from the last shutdown.
func (c *Client) RestoreUsage(u Usage) {
	c.usage.Restore(u)
}

// GetDeviceList fetches every device on the account.
func (c *Client) GetDeviceList(ctx context.Context) ([]Device, error) {
	body, err := c.do(ctx, http.MethodGet, pathDevices, nil)
	if err != nil {
		return nil, fmt.Errorf("getting device list: %w", err)
	}

	var resp deviceListResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding device list: %w", err)
	}
	return resp.Data, nil
}

// GetDeviceState queries the current capability state of one device.
func (c *Client) GetDeviceState(ctx context.Context, rawID, sku string) StateReport {
	body, err := c.do(ctx, http.MethodPost, pathState, c.newRequest(rawID, sku, nil))
	if err != nil {
		c.logger.Error("getting device state failed", "device", rawID, "error", err)
		return StateReport{}
	}

	var resp stateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		c.logger.Error("decoding device state failed", "device", rawID, "error", err)
		return StateReport{}
	}

	if len(resp.Payload.Capabilities) == 0 {
		return StateReport{}
	}

	values := make(map[string]any, len(resp.Payload.Capabilities))
	for _, capability := range resp.Payload.Capabilities {
		values[capability.Instance] = capability.State.Value
	}
	return StateReport{Values: values, UpdatedAt: c.usage.now().In(c.loc)}
}

// SendCommand applies one capability change. The vendor echoes the new
// value on success; an empty report means the outcome is unknown.
func (c *Client) SendCommand(ctx context.Context, rawID, sku string, cmd Command) StateReport {
	body, err := c.do(ctx, http.MethodPost, pathControl, c.newRequest(rawID, sku, &cmd))
	if err != nil {
		c.logger.Error("sending command failed", "device", rawID, "instance", cmd.Instance, "error", err)
		return StateReport{}
	}
	c.logger.Debug("command response", "device", rawID, "body", string(body))

	var resp controlResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		c.logger.Error("decoding command response failed", "device", rawID, "error", err)
		return StateReport{}
	}

	capability := resp.Capability
	if capability == nil || capability.State.Status != statusSuccess {
		return StateReport{}
	}

	values := make(map[string]any)
	if obj, ok := capability.Value.(map[string]any); ok {
		for k, v := range obj {
			values[k] = v
		}
	} else {
		values[capability.Instance] = capability.Value
	}
	return StateReport{Values: values, UpdatedAt: c.usage.now().In(c.loc)}
}

func (c *Client) newRequest(rawID, sku string, cmd *Command) requestBody {
	return requestBody{
		RequestID: uuid.NewString(),
		Payload: requestPayload{
			SKU:        sku,
			Device:     rawID,
			Capability: cmd,
		},
	}
}

// do performs one API call and returns the response body of a 200 answer.
// Every answered call is counted, whatever its status.
func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set(apiKeyHeader, c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	c.usage.Record(resp.StatusCode)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		c.logger.Warn("rate-limited by vendor API", "path", path)
		return nil, ErrRateLimited
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return body, nil
}
