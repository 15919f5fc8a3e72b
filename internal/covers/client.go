// Package covers предоставляет клиент внешнего сервиса метаданных книг.
package covers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Client инкапсулирует HTTP-взаимодействие с сервисом обложек.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// BookInfo описывает ответ сервиса метаданных по одной книге.
type BookInfo struct {
	CoverURL  string `json:"coverUrl"`
	PageCount int    `json:"pageCount,omitempty"`
	Publisher string `json:"publisher,omitempty"`
}

// NewClient создаёт HTTP-клиент для обращения к сервису обложек по указанному
// адресу. Временные сетевые ошибки ретраятся автоматически.
func NewClient(baseURL string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = time.Second
	rc.HTTPClient.Timeout = 5 * time.Second
	rc.Logger = nil

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: rc.StandardClient(),
	}
}

// Lookup запрашивает метаданные книги по ISBN. Отсутствие данных (204 или 404)
// не считается ошибкой: возвращается nil без ошибки.
func (c *Client) Lookup(ctx context.Context, isbn string) (*BookInfo, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("covers client not configured")
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	reqURL := fmt.Sprintf("%s/api/covers?isbn=%s", base, url.QueryEscape(isbn))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result BookInfo
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &result, nil
}
