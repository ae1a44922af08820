package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// --- Response types (дублируются из dispatch/query, CLI не импортирует internal-сервисы) ---

// ScanResponse — ответ на submit.
type ScanResponse struct {
	RequestID  string            `json:"requestId"`
	MessageIDs map[string]string `json:"messageIds"`

	// Replayed — ответ повторён по Idempotency-Key.
	Replayed bool `json:"-"`
}

// StatusResponse — состояние запроса.
type StatusResponse struct {
	RequestID   string            `json:"requestId"`
	Engine      map[string]string `json:"engine"`
	FinalStatus string            `json:"finalStatus"`
	MergedKey   string            `json:"mergedKey,omitempty"`
}

// FindingsResponse — результаты запроса.
// Для незавершённого запроса Pending=true и заполнены только FinalStatus и Engine.
type FindingsResponse struct {
	RequestID   string            `json:"requestId"`
	Pending     bool              `json:"pending"`
	FinalStatus string            `json:"finalStatus,omitempty"`
	Engine      map[string]string `json:"engine,omitempty"`
	MergedKey   string            `json:"mergedKey,omitempty"`
	Page        int               `json:"page,omitempty"`
	Size        int               `json:"size,omitempty"`
	Total       int               `json:"total"`
	Items       []json.RawMessage `json:"items,omitempty"`
}

// FindingsOpts — параметры запроса результатов.
type FindingsOpts struct {
	Key  string
	Page int
	Size int
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

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для Gather API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Scan отправляет payload на обработку.
// idempotencyKey (опционально) передаётся в заголовке Idempotency-Key.
func (c *Client) Scan(ctx context.Context, payload json.RawMessage, idempotencyKey string) (*ScanResponse, error) {
	headers := http.Header{}
	if idempotencyKey != "" {
		headers.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.do(ctx, http.MethodPost, "/api/v1/scan", payload, headers)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return nil, err
	}

	var res ScanResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	res.Replayed = resp.Header.Get("Idempotent-Replayed") == "true"
	return &res, nil
}

// Status возвращает состояние запроса.
func (c *Client) Status(ctx context.Context, requestID string) (*StatusResponse, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/v1/status/"+url.PathEscape(requestID), nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return nil, err
	}

	var res StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &res, nil
}

// Findings возвращает страницу результатов запроса.
func (c *Client) Findings(ctx context.Context, requestID string, opts FindingsOpts) (*FindingsResponse, error) {
	params := url.Values{}
	if opts.Key != "" {
		params.Set("key", opts.Key)
	}
	if opts.Page > 0 {
		params.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.Size > 0 {
		params.Set("size", strconv.Itoa(opts.Size))
	}

	path := "/api/v1/findings/" + url.PathEscape(requestID)
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	resp, err := c.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return nil, err
	}

	var res FindingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	res.Pending = resp.StatusCode == http.StatusAccepted
	return &res, nil
}

// --- HTTP helpers ---

func (c *Client) do(ctx context.Context, method, path string, body []byte, headers http.Header) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, values := range headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
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
