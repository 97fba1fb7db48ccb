package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"podium/internal/artifact"
	"podium/internal/services"
)

// Option configures the HTTP client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// Client talks to the rendering engine over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs an engine client for the given base URL.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	client := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// RenderAudio enqueues audio synthesis for one version and returns the job handle.
func (c *Client) RenderAudio(ctx context.Context, req AudioRequest) (JobHandle, error) {
	var resp struct {
		JobID string `json:"job_id"`
	}
	if err := c.post(ctx, "/render/audio", req, &resp); err != nil {
		return "", err
	}
	if resp.JobID == "" {
		return "", services.Wrap(services.ErrRender, "render", "audio", "engine returned no job id", nil)
	}
	return JobHandle(resp.JobID), nil
}

// RenderPartBooks enqueues one part-book render per requested identity.
func (c *Client) RenderPartBooks(ctx context.Context, req BookRequest) ([]BookJob, error) {
	var resp struct {
		Jobs []BookJob `json:"jobs"`
	}
	if err := c.post(ctx, "/render/part-books", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Jobs) == 0 {
		return nil, services.Wrap(services.ErrRender, "render", "part-books", "engine returned no jobs", nil)
	}
	return resp.Jobs, nil
}

// JobState fetches the current state of a render job.
func (c *Client) JobState(ctx context.Context, handle JobHandle) (artifact.Observation, error) {
	var resp struct {
		State     string `json:"state"`
		ResultKey string `json:"result_key"`
		Error     string `json:"error"`
	}
	if err := c.get(ctx, "/jobs/"+url.PathEscape(string(handle)), &resp); err != nil {
		return artifact.Observation{}, err
	}
	state, ok := artifact.ParseState(resp.State)
	if !ok {
		return artifact.Observation{}, services.Wrap(services.ErrRender, "render", "job state",
			fmt.Sprintf("engine reported unknown state %q", resp.State), nil)
	}
	return artifact.Observation{State: state, ResultKey: resp.ResultKey, ErrorMessage: resp.Error}, nil
}

// ArtifactLinks fetches the download URLs for one artifact key. Safe to call
// at any time, including while the artifact is still processing.
func (c *Client) ArtifactLinks(ctx context.Context, key string) (Links, error) {
	var links Links
	endpoint := "/artifacts/links?key=" + url.QueryEscape(key)
	if err := c.get(ctx, endpoint, &links); err != nil {
		return Links{}, err
	}
	return links, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	// Reuse the workflow's correlation id when one is on the context so
	// engine-side logs line up with ours; one-off calls get a fresh id.
	requestID, ok := services.RequestIDFromContext(req.Context())
	if !ok {
		requestID = uuid.NewString()
	}
	req.Header.Set("X-Request-ID", requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return services.Wrap(services.ErrTransient, "render", req.URL.Path, "engine unreachable", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return services.Wrap(services.ErrNotFound, "render", req.URL.Path, "", nil)
	case resp.StatusCode >= 500:
		return services.Wrap(services.ErrTransient, "render", req.URL.Path,
			fmt.Sprintf("engine returned %d", resp.StatusCode), nil)
	case resp.StatusCode >= 400:
		detail := readErrorDetail(resp.Body)
		return services.Wrap(services.ErrValidation, "render", req.URL.Path, detail, nil)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return services.Wrap(services.ErrTransient, "render", req.URL.Path, "decode response", err)
	}
	return nil
}

func readErrorDetail(body io.Reader) string {
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.NewDecoder(body).Decode(&payload); err != nil || payload.Detail == "" {
		return "engine rejected request"
	}
	return payload.Detail
}

var _ Engine = (*Client)(nil)
