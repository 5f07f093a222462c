package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrAuth          = errors.New("authentication error")
	ErrParse         = errors.New("parse error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later kind classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}

// Kind partitions collaborator failures for the retry policy.
type Kind string

const (
	KindAuth          Kind = "auth"
	KindParse         Kind = "parse"
	KindConfiguration Kind = "configuration"
	KindTransient     Kind = "transient"
)

// ClassifyError maps an error to its failure kind. Sentinel markers win; when a
// collaborator surfaces an untagged error the message is pattern-matched the
// way upstream APIs phrase these failures.
func ClassifyError(err error) Kind {
	if err == nil {
		return KindTransient
	}
	switch {
	case errors.Is(err, ErrAuth):
		return KindAuth
	case errors.Is(err, ErrParse):
		return KindParse
	case errors.Is(err, ErrConfiguration), errors.Is(err, ErrNotFound):
		return KindConfiguration
	case errors.Is(err, ErrTransient), errors.Is(err, ErrTimeout):
		return KindTransient
	}

	message := strings.ToLower(err.Error())
	switch {
	case containsAny(message, "unauthorized", "invalid_client", "invalid_grant", "forbidden", "authentication"):
		return KindAuth
	case containsAny(message, "parse", "format", "unmarshal", "decode"):
		return KindParse
	case containsAny(message, "missing", "not found") && containsAny(message, "config", "configuration", "api key", "credential"):
		return KindConfiguration
	default:
		return KindTransient
	}
}

// Retryable reports whether errors of the given kind are worth retrying.
// Auth, parse, and configuration failures never resolve on their own.
func Retryable(kind Kind) bool {
	return kind == KindTransient
}

func containsAny(haystack string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(haystack, needle) {
			return true
		}
	}
	return false
}
