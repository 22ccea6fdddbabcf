package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

const (
	SearchRateLimit  = 5
	SearchRateWindow = time.Minute
	ToolHTTPTimeout  = 10 * time.Second
	maxToolBodySize  = 512 * 1024
	toolUserAgent    = "mojochat-tools/1.0"
	defaultMaxRounds = 5
)

type toolChatContextKey struct{}

// toolRateLimiter is a sliding-window counter keyed by chat. Idle chats are
// dropped at most once per window.
type toolRateLimiter struct {
	limit     int
	window    time.Duration
	now       func() time.Time
	mu        sync.Mutex
	hits      map[string][]time.Time
	lastSweep time.Time
}

func newToolRateLimiter(limit int, window time.Duration) *toolRateLimiter {
	return &toolRateLimiter{limit: limit, window: window, now: time.Now, hits: make(map[string][]time.Time)}
}

func (l *toolRateLimiter) Allow(key string) bool {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := now.Add(-l.window)
	if now.Sub(l.lastSweep) >= l.window {
		l.sweep(cutoff)
		l.lastSweep = now
	}
	queue := l.hits[key]
	idx := 0
	for _, t := range queue {
		if t.After(cutoff) {
			break
		}
		idx++
	}
	if idx > 0 {
		queue = queue[idx:]
	}
	if len(queue) >= l.limit {
		l.hits[key] = queue
		return false
	}
	l.hits[key] = append(queue, now)
	return true
}

// sweep removes keys whose newest hit is at or before cutoff. Callers hold mu.
func (l *toolRateLimiter) sweep(cutoff time.Time) {
	for key, queue := range l.hits {
		if len(queue) == 0 || !queue[len(queue)-1].After(cutoff) {
			delete(l.hits, key)
		}
	}
}

// WithToolChat tags ctx with the chat a tool runs for.
func WithToolChat(ctx context.Context, chatID string) context.Context {
	if chatID == "" {
		return ctx
	}
	return context.WithValue(ctx, toolChatContextKey{}, chatID)
}

// ToolChatFromContext returns the chat id set by WithToolChat.
func ToolChatFromContext(ctx context.Context) (string, bool) {
	chatID, ok := ctx.Value(toolChatContextKey{}).(string)
	return chatID, ok && chatID != ""
}

// doJSON performs req and decodes a 200 response body into out.
func doJSON(client *http.Client, req *http.Request, out any) error {
	req.Header.Set("User-Agent", toolUserAgent)
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxToolBodySize))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func errorPayload(msg string) string {
	b, _ := json.Marshal(map[string]string{"error": msg})
	return string(b)
}

// rawJSON keeps valid JSON as-is and quotes anything else.
func rawJSON(s string) json.RawMessage {
	if s == "" {
		return json.RawMessage(`{}`)
	}
	if json.Valid([]byte(s)) {
		return json.RawMessage(s)
	}
	b, _ := json.Marshal(s)
	return b
}
