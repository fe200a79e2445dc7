package agents

import (
	"context"
	"errors"
	"net"
	"strings"
)

// ErrorClass buckets a failed agent call for retry policy purposes.
type ErrorClass string

const (
	// ErrorClassRetryable covers transient server-side faults: network
	// errors, timeouts, 5xx-class responses, overload signals.
	ErrorClassRetryable ErrorClass = "retryable"

	// ErrorClassQuota covers billing/quota/rate-limit failures. These are
	// never retried; burning the round budget on them helps nobody.
	ErrorClassQuota ErrorClass = "quota"

	// ErrorClassFatal is everything else: surfaced immediately.
	ErrorClassFatal ErrorClass = "fatal"
)

var quotaPatterns = []string{
	"rate limit", "rate_limit", "429", "quota", "billing",
	"insufficient_quota", "payment required", "402",
}

var transientPatterns = []string{
	"timeout", "timed out", "deadline exceeded", "connection refused",
	"connection reset", "broken pipe", "temporarily unavailable",
	"temporary", "unavailable", "overloaded", "500", "502", "503", "504",
	"internal server error", "bad gateway", "eof",
}

// Classify decides whether an error warrants a retry. Quota/billing
// indicators win over transient indicators: "rate limit" is never retried
// even though it often arrives with a retryable-looking status line.
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrorClassFatal
	}
	msg := strings.ToLower(err.Error())
	for _, p := range quotaPatterns {
		if strings.Contains(msg, p) {
			return ErrorClassQuota
		}
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return ErrorClassRetryable
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrorClassRetryable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassRetryable
	}
	return ErrorClassFatal
}
