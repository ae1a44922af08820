package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shaiso/Gather/internal/domain"
)

const defaultHTTPTimeout = 30 * time.Second

// HTTPProcessor отправляет envelope во внешний сервис анализа
// и использует его ответ как результат воркера.
//
// Запрос: POST Endpoint, тело {"requestId", "serviceName", "payload"}.
// Ответ 2xx с JSON нормализуется так же, как payload (NormalizePayload);
// не-JSON ответ сохраняется строкой в поле "payload".
// Ответ >= 400 — ошибка, сообщение будет доставлено повторно.
type HTTPProcessor struct {
	Endpoint string
	Timeout  time.Duration // default: 30s
	Client   *http.Client
}

type analysisRequest struct {
	RequestID   string          `json:"requestId"`
	ServiceName string          `json:"serviceName"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// Process выполняет запрос к внешнему сервису.
func (p *HTTPProcessor) Process(ctx context.Context, worker string, env domain.Envelope) (map[string]any, error) {
	if p.Endpoint == "" {
		return nil, fmt.Errorf("%w: endpoint is required", ErrHTTPRequest)
	}

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(analysisRequest{
		RequestID:   env.RequestID,
		ServiceName: worker,
		Payload:     env.Payload,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal body: %v", ErrHTTPRequest, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrHTTPRequest, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", env.RequestID)

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHTTPRequest, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrHTTPRequest, err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrHTTPRequest, resp.StatusCode, truncate(string(respBody), 200))
	}

	if json.Valid(respBody) {
		return NormalizePayload(worker, respBody)
	}
	return normalize(worker, string(respBody)), nil
}

// truncate обрезает строку до указанной длины.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
