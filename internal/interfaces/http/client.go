package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/garyjia/onboarding-workflow/internal/application/runner"
	"github.com/garyjia/onboarding-workflow/internal/domain/entity"
)

// APIError is a non-2xx reply from the onboarding API
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// Client talks to the onboarding HTTP API
type Client struct {
	baseURL    string
	httpClient *http.Client
	retries    uint64
}

// NewClient creates a client for the server at baseURL, e.g. http://localhost:8080
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		retries:    3,
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

// Start starts an onboarding. An empty workflowID lets the server pick one.
func (c *Client) Start(ctx context.Context, workflowID string, state entity.OnboardingState) (*StartResponse, error) {
	var out StartResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/onboardings", StartRequest{WorkflowID: workflowID, State: &state}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Signal delivers a named signal
func (c *Client) Signal(ctx context.Context, id, signal string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/onboardings/"+url.PathEscape(id)+"/signals/"+url.PathEscape(signal), nil, nil)
}

// Query runs the state query
func (c *Client) Query(ctx context.Context, id string) (*entity.OnboardingState, error) {
	var out entity.OnboardingState
	if err := c.get(ctx, "/api/v1/onboardings/"+url.PathEscape(id)+"/state", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Get fetches the instance record
func (c *Client) Get(ctx context.Context, id string) (*InstanceResponse, error) {
	var out InstanceResponse
	if err := c.get(ctx, "/api/v1/onboardings/"+url.PathEscape(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// List pages through instances
func (c *Client) List(ctx context.Context, limit, offset int) ([]InstanceResponse, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))

	var out []InstanceResponse
	if err := c.get(ctx, "/api/v1/onboardings?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// History returns the phase transitions of an instance
func (c *Client) History(ctx context.Context, id string) ([]entity.Transition, error) {
	var out []entity.Transition
	if err := c.get(ctx, "/api/v1/onboardings/"+url.PathEscape(id)+"/history", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Report downloads the onboarding workbook into w
func (c *Client) Report(ctx context.Context, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/reports/onboardings.xlsx", nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download report: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// Wait polls the instance every interval until it leaves RUNNING
func (c *Client) Wait(ctx context.Context, id string, interval time.Duration) (*InstanceResponse, error) {
	var inst *InstanceResponse
	err := backoff.Retry(func() error {
		got, err := c.Get(ctx, id)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError {
				return backoff.Permanent(err)
			}
			return err
		}
		inst = got
		if got.Status == string(entity.InstanceStatusRunning) {
			return errStillRunning
		}
		return nil
	}, backoff.WithContext(backoff.NewConstantBackOff(interval), ctx))
	if err != nil {
		return nil, err
	}
	return inst, nil
}

var errStillRunning = errors.New("onboarding still running")

// get retries transient failures; writes are sent once
func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.retries), ctx)
	return backoff.Retry(func() error {
		err := c.do(ctx, http.MethodGet, path, nil, out)
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("failed to decode response data: %w", err)
		}
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil || env.Error == "" {
		return &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: env.Error}
}

// FormFilled is a shortcut for the form-filled signal
func (c *Client) FormFilled(ctx context.Context, id string) error {
	return c.Signal(ctx, id, runner.SignalFormFilled)
}
