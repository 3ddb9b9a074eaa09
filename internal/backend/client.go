// Package backend implements the REST client for the admin-console backend:
// job listing, document upload and raw insights events.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ldelacroix/conveyor/internal/insights"
	"github.com/ldelacroix/conveyor/internal/job"
	"github.com/ldelacroix/conveyor/internal/upload"
)

const defaultTimeout = 2 * time.Minute

type Client struct {
	baseURL string
	token   string
	httpc   *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpc:   &http.Client{Timeout: defaultTimeout},
	}
}

// SetHTTPClient replaces the underlying HTTP client, mainly for tests that
// need custom transports or timeouts.
func (c *Client) SetHTTPClient(httpc *http.Client) {
	c.httpc = httpc
}

// ListJobs returns every job visible to the current session with its most
// recent status.
func (c *Client) ListJobs(ctx context.Context) ([]job.Job, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/jobs", nil)
	if err != nil {
		return nil, err
	}

	var jobs []job.Job
	if err := c.do(req, &jobs); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	return jobs, nil
}

// UploadFile streams a file to the destination collection as a multipart
// request and returns the ingestion Job the backend created for it. The
// progress callback receives cumulative bytes sent out of the file total.
func (c *Client) UploadFile(ctx context.Context, destination string, f upload.File, onProgress func(sent, total int64)) (job.Job, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		part, err := mw.CreateFormFile("file", f.Name)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		src := io.Reader(bytes.NewReader(f.Data))
		if onProgress != nil {
			src = &progressReader{r: src, total: int64(len(f.Data)), report: onProgress}
		}
		if _, err := io.Copy(part, src); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	endpoint := fmt.Sprintf("%s/v1/collections/%s/documents", c.baseURL, url.PathEscape(destination))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, pr)
	if err != nil {
		return job.Job{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var created job.Job
	if err := c.do(req, &created); err != nil {
		return job.Job{}, fmt.Errorf("upload %s: %w", f.Name, err)
	}

	return created, nil
}

// AggregatedEvents returns raw timestamped rows for the three insight
// categories within at least the requested window. The backend is free to
// include rows from before the window start.
func (c *Client) AggregatedEvents(ctx context.Context, tf insights.Timeframe) (insights.EventRows, error) {
	params := url.Values{}
	params.Set("start", tf.Start.Format(time.RFC3339))
	params.Set("end", tf.End.Format(time.RFC3339))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/insights/events?"+params.Encode(), nil)
	if err != nil {
		return insights.EventRows{}, err
	}

	var rows insights.EventRows
	if err := c.do(req, &rows); err != nil {
		return insights.EventRows{}, fmt.Errorf("aggregated events: %w", err)
	}

	return rows, nil
}

func (c *Client) do(req *http.Request, out any) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apiError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}

// apiError extracts the backend's human-readable message when present.
func apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return fmt.Errorf("backend: %s (status %d)", payload.Error, resp.StatusCode)
	}

	return fmt.Errorf("backend: unexpected status %d", resp.StatusCode)
}

type progressReader struct {
	r      io.Reader
	total  int64
	sent   int64
	report func(sent, total int64)
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 {
		p.sent += int64(n)
		p.report(p.sent, p.total)
	}

	return n, err
}
