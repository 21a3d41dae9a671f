// Package client calls the PDF export endpoint.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// EnvBaseURL names the environment variable read by FromEnv.
const EnvBaseURL = "PDF_SERVICE_URL"

const defaultTimeout = 90 * time.Second

// Client talks to one export endpoint. BaseURL is the full endpoint URL,
// for example http://localhost:3000/api/success.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	APIKey     string
}

// APIError is a non-200 response from the endpoint.
type APIError struct {
	StatusCode int
	Message    string
	Kind       string
}

func (e *APIError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("pdf service: %d %s (%s)", e.StatusCode, e.Message, e.Kind)
	}
	return fmt.Sprintf("pdf service: %d %s", e.StatusCode, e.Message)
}

// StatusResponse is the body returned by a GET without html.
type StatusResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	Status    string `json:"status"`
	Info      string `json:"info"`
}

// New returns a client for baseURL.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimSpace(baseURL),
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

// FromEnv returns a client for the URL in PDF_SERVICE_URL.
func FromEnv() (*Client, error) {
	base := os.Getenv(EnvBaseURL)
	if base == "" {
		return nil, fmt.Errorf("%s is not set", EnvBaseURL)
	}
	return New(base), nil
}

// Generate posts html as JSON and returns the PDF.
func (c *Client) Generate(ctx context.Context, html string) ([]byte, error) {
	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	// Escaping <, > and & as \u003c would inflate markup several times over.
	enc.SetEscapeHTML(false)
	if err := enc.Encode(map[string]string{"html": html}); err != nil {
		return nil, err
	}
	req, err := c.newRequest(ctx, http.MethodPost, c.BaseURL, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.doPDF(req)
}

// GenerateGET sends html in the query string and returns the PDF. Large
// documents should use Generate.
func (c *Client) GenerateGET(ctx context.Context, html string) ([]byte, error) {
	u, err := c.endpoint(url.Values{"html": {html}})
	if err != nil {
		return nil, err
	}
	req, err := c.newRequest(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	return c.doPDF(req)
}

// Status calls the endpoint without html.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.BaseURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}
	var out StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode status: %w", err)
	}
	return &out, nil
}

// Download generates a PDF with Generate and writes it to path. It returns
// the number of bytes written.
func (c *Client) Download(ctx context.Context, html, path string) (int, error) {
	pdf, err := c.Generate(ctx, html)
	if err != nil {
		return 0, err
	}
	return len(pdf), save(path, pdf)
}

// DownloadGET is Download over GenerateGET.
func (c *Client) DownloadGET(ctx context.Context, html, path string) (int, error) {
	pdf, err := c.GenerateGET(ctx, html)
	if err != nil {
		return 0, err
	}
	return len(pdf), save(path, pdf)
}

func save(path string, pdf []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, pdf, 0o644)
}

func (c *Client) endpoint(q url.Values) (string, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	if c.BaseURL == "" {
		return nil, fmt.Errorf("base url is empty")
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	if c.APIKey != "" {
		req.Header.Set("X-API-Key", c.APIKey)
	}
	return req, nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) doPDF(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/pdf") {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: "unexpected content type " + ct}
	}
	return io.ReadAll(resp.Body)
}

// decodeError reads the service's JSON error body. Render failures carry
// {"error": "...", "message": "...", "kind": "..."}; input errors a bare
// {"error": "..."}; transport errors {"error": {"code": ..., "message": ...}}.
func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
		Kind    string          `json:"kind"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		if s := strings.TrimSpace(string(raw)); s != "" {
			apiErr.Message = s
		}
		return apiErr
	}

	var errText string
	if err := json.Unmarshal(body.Error, &errText); err != nil {
		var envelope struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(body.Error, &envelope) == nil {
			errText = envelope.Message
		}
	}
	switch {
	case body.Message != "" && errText != "":
		apiErr.Message = errText + ": " + body.Message
	case body.Message != "":
		apiErr.Message = body.Message
	case errText != "":
		apiErr.Message = errText
	}
	apiErr.Kind = body.Kind
	return apiErr
}
