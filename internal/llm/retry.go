package llm

import (
	"context"
	"errors"
	"log"
	"net"
	"strings"
	"time"
)

const retryBaseDelay = 300 * time.Millisecond

type retrying struct {
	base Client
	hsID string
}

// WithRetry wraps base so a transient failure is retried once.
func WithRetry(base Client, hsID string) Client {
	if base == nil {
		return nil
	}
	return retrying{base: base, hsID: hsID}
}

func (r retrying) Complete(ctx context.Context, req Request) (Response, error) {
	resp, err := r.base.Complete(ctx, req)
	if err == nil || !ShouldRetry(err) {
		return resp, err
	}

	log.Printf("llm retry attempt=1 hs_id=%s prompt=%s error=%s", r.hsID, req.Name, sanitizeError(err))
	select {
	case <-time.After(retryBaseDelay):
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
	return r.base.Complete(ctx, req)
}

// ShouldRetry reports whether err looks transient.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "http status 5") || strings.Contains(msg, "server_error") || strings.Contains(msg, "http status 429") {
		return true
	}
	if strings.Contains(msg, "timeout") && (strings.Contains(msg, "openai") || strings.Contains(msg, "llm") || strings.Contains(msg, "client.timeout")) {
		return true
	}
	if strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection closed") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "tls handshake timeout") ||
		strings.Contains(msg, "eof") {
		return true
	}
	return false
}

func sanitizeError(err error) string {
	msg := strings.ReplaceAll(err.Error(), "\n", " ")
	if len(msg) > 300 {
		msg = msg[:300]
	}
	return msg
}
