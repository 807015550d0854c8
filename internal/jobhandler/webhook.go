// Package jobhandler 资源变更作业处理器
//
// 队列把作业当作不透明的 payload_ref，由这里的处理器把它交给
// 真正执行资源变更的子系统，并把结果映射为 Done / Retriable / Fatal。
package jobhandler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"mgmt-syncq/internal/shared/model"
	"mgmt-syncq/internal/syncqueue"
)

// maxReasonBytes 失败原因中保留的响应体长度
const maxReasonBytes = 1024

// WebhookRequest POST 到 Webhook 的请求体
type WebhookRequest struct {
	ItemID       string `json:"item_id"`
	QueueID      string `json:"queue_id"`
	ResourceKind string `json:"resource_kind"`
	ResourceID   int64  `json:"resource_id"`
	Sequence     int64  `json:"sequence"`
	Attempt      int    `json:"attempt"`
	PayloadRef   string `json:"payload_ref"`
}

// Webhook 通过 HTTP 回调执行作业
//
// 响应映射：
//   - 2xx：Done
//   - 408/409/425/429/5xx、网络错误、超时：Retriable；429/503 带 Retry-After 时按其等待
//   - 其它 4xx：Fatal，原因为响应体
type Webhook struct {
	url     string
	headers map[string]string
	client  *http.Client
}

// NewWebhook 创建 Webhook 处理器
func NewWebhook(url string, timeout time.Duration, headers map[string]string) *Webhook {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Webhook{
		url:     url,
		headers: headers,
		client:  &http.Client{Timeout: timeout},
	}
}

// Handle 实现 syncqueue.Handler
func (w *Webhook) Handle(ctx context.Context, item *model.SyncQueueItem) syncqueue.Result {
	body, err := json.Marshal(WebhookRequest{
		ItemID:       item.ID,
		QueueID:      item.QueueID,
		ResourceKind: item.ResourceKind,
		ResourceID:   item.ResourceID,
		Sequence:     item.Sequence,
		Attempt:      item.Attempts,
		PayloadRef:   item.PayloadRef,
	})
	if err != nil {
		return syncqueue.Fatalf("encode webhook request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return syncqueue.Fatalf("build webhook request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", item.ID)
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return syncqueue.Retriable(fmt.Sprintf("webhook request failed: %v", err))
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxReasonBytes))

	res := classify(resp.StatusCode, strings.TrimSpace(string(respBody)))
	if res.Outcome == syncqueue.OutcomeRetriable &&
		(resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable) {
		res.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
	}
	return res
}

// parseRetryAfter 解析 Retry-After（秒数或 HTTP 日期），无效时返回 0
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}

// classify 将 HTTP 状态码映射为作业结果
func classify(status int, body string) syncqueue.Result {
	reason := fmt.Sprintf("webhook returned %d", status)
	if body != "" {
		reason += ": " + body
	}

	switch {
	case status >= 200 && status < 300:
		return syncqueue.Done()
	case status == http.StatusRequestTimeout,
		status == http.StatusConflict,
		status == http.StatusTooEarly,
		status == http.StatusTooManyRequests,
		status >= 500:
		return syncqueue.Retriable(reason)
	}
	return syncqueue.Fatal(reason)
}
