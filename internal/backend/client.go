package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"
)

// Outcome классификация результата обращения к бэкенду
type Outcome int

const (
	// OutcomeOK 2xx — операция принята
	OutcomeOK Outcome = iota
	// OutcomeRejected 4xx — операция семантически неверна, повтор бессмыслен
	OutcomeRejected
	// OutcomeTransient сетевая ошибка, таймаут или 5xx — можно повторить
	OutcomeTransient
)

// Result ответ бэкенда вместе с классификацией
type Result struct {
	Outcome Outcome
	Status  int
	Body    json.RawMessage
}

func (r Result) OK() bool        { return r.Outcome == OutcomeOK }
func (r Result) Rejected() bool  { return r.Outcome == OutcomeRejected }
func (r Result) Transient() bool { return r.Outcome == OutcomeTransient }

// Client тонкая обёртка над HTTP-транспортом удалённого бэкенда.
// Таймаут клиента ограничивает зависшие соединения; таймаут всегда
// классифицируется как transient, никогда как отказ.
type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Do выполняет один запрос и никогда не возвращает Go-ошибку наружу:
// любая сетевая проблема сворачивается в OutcomeTransient
func (c *Client) Do(ctx context.Context, method, path string, body []byte) Result {
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return Result{Outcome: OutcomeTransient}
	}
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{Outcome: OutcomeTransient}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{Outcome: OutcomeTransient, Status: resp.StatusCode}
	}
	return Result{Outcome: classify(resp.StatusCode), Status: resp.StatusCode, Body: data}
}

// Get читает ресурс; удобство поверх Do
func (c *Client) Get(ctx context.Context, path string) Result {
	return c.Do(ctx, http.MethodGet, path, nil)
}

func classify(status int) Outcome {
	switch {
	case status >= 200 && status < 300:
		return OutcomeOK
	case status >= 400 && status < 500:
		return OutcomeRejected
	default:
		return OutcomeTransient
	}
}
