package allocctl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/okian/seatalloc/internal/domain/model"
)

// Client talks to a running allocation server.
type Client struct {
	client  *http.Client
	baseURL string
}

// NewClient creates a client for baseURL with a per-request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

type apiError struct {
	Code    string        `json:"code"`
	Message string        `json:"message"`
	Issues  []model.Issue `json:"issues"`
}

type snapshotBody struct {
	Resources  []model.Resource  `json:"resources"`
	Applicants []model.Applicant `json:"applicants"`
}

// Health checks /healthz.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil, http.StatusOK)
}

// ImportSnapshot replaces the category's roster and catalog on the server.
func (c *Client) ImportSnapshot(ctx context.Context, category model.Category, resources []model.Resource, applicants []model.Applicant) error {
	body := snapshotBody{Resources: resources, Applicants: applicants}
	return c.do(ctx, http.MethodPut, categoryPath(category, "snapshot"), body, nil, http.StatusOK)
}

// RunAllocation runs a pass and waits for its report.
func (c *Client) RunAllocation(ctx context.Context, category model.Category) (model.AllocationReport, error) {
	var report model.AllocationReport
	err := c.do(ctx, http.MethodPost, categoryPath(category, "allocations"), nil, &report, http.StatusOK)
	return report, err
}

// EnqueuePass queues a pass on the server.
func (c *Client) EnqueuePass(ctx context.Context, category model.Category) (model.PassState, error) {
	var st model.PassState
	err := c.do(ctx, http.MethodPost, categoryPath(category, "allocations")+"?async=true", nil, &st, http.StatusAccepted)
	return st, err
}

// PassStatus fetches the state of a queued pass.
func (c *Client) PassStatus(ctx context.Context, category model.Category, passID string) (model.PassState, error) {
	var st model.PassState
	err := c.do(ctx, http.MethodGet, categoryPath(category, "allocations", passID), nil, &st, http.StatusOK)
	return st, err
}

// WaitPass polls a queued pass until it finishes.
func (c *Client) WaitPass(ctx context.Context, category model.Category, passID string) (model.AllocationReport, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for i := 0; i < pollAttempts; i++ {
		st, err := c.PassStatus(ctx, category, passID)
		if err != nil {
			return model.AllocationReport{}, err
		}
		switch st.Status {
		case model.PassSucceeded:
			if st.Report == nil {
				return model.AllocationReport{}, fmt.Errorf("%w: pass %s has no report", ErrServer, passID)
			}
			return *st.Report, nil
		case model.PassFailed:
			return model.AllocationReport{}, fmt.Errorf("%w: %s", ErrPassFailed, st.Error)
		}

		select {
		case <-ctx.Done():
			return model.AllocationReport{}, ctx.Err()
		case <-ticker.C:
		}
	}
	return model.AllocationReport{}, fmt.Errorf("%w: pass %s still pending", ErrServer, passID)
}

// Allotments lists every applicant's assignment.
func (c *Client) Allotments(ctx context.Context, category model.Category) ([]model.AssignmentStatus, error) {
	var out []model.AssignmentStatus
	err := c.do(ctx, http.MethodGet, categoryPath(category, "allotments"), nil, &out, http.StatusOK)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any, want int) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrServer, method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != want {
		var e apiError
		if jerr := json.Unmarshal(data, &e); jerr == nil && e.Code != "" {
			if len(e.Issues) > 0 {
				return fmt.Errorf("%w: %s %s: HTTP %d %s: %s", ErrServer, method, path, resp.StatusCode, e.Code, model.NewValidationError(e.Issues...))
			}
			return fmt.Errorf("%w: %s %s: HTTP %d %s: %s", ErrServer, method, path, resp.StatusCode, e.Code, e.Message)
		}
		return fmt.Errorf("%w: %s %s: HTTP %d", ErrServer, method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func categoryPath(category model.Category, parts ...string) string {
	p := "/api/v1/" + url.PathEscape(string(category))
	for _, s := range parts {
		p += "/" + url.PathEscape(s)
	}
	return p
}
