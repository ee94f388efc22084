package llm

import (
	"context"
	"errors"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"
)

var (
	// ErrPermanent marks failures that no retry can fix (missing key, unknown provider)
	ErrPermanent = errors.New("permanent AI client error")

	// ErrEmptyResponse is returned when a provider answers with no text
	ErrEmptyResponse = errors.New("empty response from AI provider")
)

// statusCodeRegex matches "Error 429" / "status 503" / "429 Too Many Requests" patterns in SDK messages
var statusCodeRegex = regexp.MustCompile(`(?i)(?:error|status|code)[:\s]+(\d{3})\b|^(\d{3})\s`)

// IsTransient reports whether an AI call failure is worth retrying.
// Rate limits, overload, server errors, timeouts and network errors are
// transient. Bad requests, auth failures and ErrPermanent are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPermanent) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrEmptyResponse) {
		return true
	}

	if code := StatusCode(err); code != 0 {
		return isTransientStatus(code)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	if IsRateLimitError(err) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "overloaded") ||
		strings.Contains(msg, "unavailable") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "connection reset")
}

// StatusCode extracts the HTTP status carried by a provider error, or 0
func StatusCode(err error) int {
	var claudeErr *anthropic.Error
	if errors.As(err, &claudeErr) {
		return claudeErr.StatusCode
	}
	var openaiErr *openai.Error
	if errors.As(err, &openaiErr) {
		return openaiErr.StatusCode
	}

	// genai reports "Error 429, Message: ..., Status: RESOURCE_EXHAUSTED"
	matches := statusCodeRegex.FindStringSubmatch(err.Error())
	for _, m := range matches[min(1, len(matches)):] {
		if m == "" {
			continue
		}
		if code, convErr := strconv.Atoi(m); convErr == nil && code >= 400 && code < 600 {
			return code
		}
	}
	return 0
}

func isTransientStatus(code int) bool {
	switch {
	case code == 408, code == 409, code == 429:
		return true
	case code == 529: // Anthropic overloaded
		return true
	case code >= 500:
		return true
	default:
		return false
	}
}

// IsRateLimitError checks if an error is a provider rate limit error.
// Matches 429 status codes and RESOURCE_EXHAUSTED errors.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "RESOURCE_EXHAUSTED") ||
		strings.Contains(errStr, "quota")
}

// retryDelayRegex matches "Please retry in Xs" or "retryDelay:Xs" patterns
var retryDelayRegex = regexp.MustCompile(`(?i)(?:Please retry in |retryDelay[:\s]+)(\d+(?:\.\d+)?)\s*s`)

// ExtractRetryDelay parses a provider-suggested retry delay from an error.
// Returns 0 if no delay is found in the error message.
//
// Example error message:
// "Error 429, Message: ... Please retry in 45.387061394s., Status: RESOURCE_EXHAUSTED"
func ExtractRetryDelay(err error) time.Duration {
	if err == nil {
		return 0
	}

	matches := retryDelayRegex.FindStringSubmatch(err.Error())
	if len(matches) < 2 {
		return 0
	}

	seconds, parseErr := strconv.ParseFloat(matches[1], 64)
	if parseErr != nil {
		return 0
	}

	return time.Duration(seconds * float64(time.Second))
}
