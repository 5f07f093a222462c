package services_test

import (
	"errors"
	"fmt"
	"testing"

	"tend/internal/services"
)

func TestClassifyErrorSentinels(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want services.Kind
	}{
		{"auth marker", services.Wrap(services.ErrAuth, "mail", "fetch", "token rejected", nil), services.KindAuth},
		{"parse marker", services.Wrap(services.ErrParse, "llm", "classify", "bad payload", nil), services.KindParse},
		{"configuration marker", services.Wrap(services.ErrConfiguration, "catalog", "search", "base url unset", nil), services.KindConfiguration},
		{"not found marker", services.Wrap(services.ErrNotFound, "catalog", "update", "entry vanished", nil), services.KindConfiguration},
		{"timeout marker", services.Wrap(services.ErrTimeout, "mail", "fetch", "deadline", nil), services.KindTransient},
		{"transient marker", services.Wrap(services.ErrTransient, "mail", "fetch", "503", nil), services.KindTransient},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := services.ClassifyError(tc.err); got != tc.want {
				t.Fatalf("ClassifyError = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestClassifyErrorMessagePatterns(t *testing.T) {
	cases := []struct {
		message string
		want    services.Kind
	}{
		{"401 Unauthorized", services.KindAuth},
		{"oauth: invalid_client", services.KindAuth},
		{"oauth: invalid_grant", services.KindAuth},
		{"failed to parse response body", services.KindParse},
		{"unexpected format in payload", services.KindParse},
		{"missing api key in configuration", services.KindConfiguration},
		{"config value not found", services.KindConfiguration},
		{"connection reset by peer", services.KindTransient},
		{"429 too many requests", services.KindTransient},
	}
	for _, tc := range cases {
		t.Run(tc.message, func(t *testing.T) {
			if got := services.ClassifyError(errors.New(tc.message)); got != tc.want {
				t.Fatalf("ClassifyError(%q) = %s, want %s", tc.message, got, tc.want)
			}
		})
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("boom")
	err := services.Wrap(services.ErrTransient, "mail", "fetch", "request failed", cause)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatal("expected marker to survive wrapping")
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected cause to survive wrapping")
	}
	want := fmt.Sprintf("%s: mail: fetch: request failed: boom", services.ErrTransient)
	if err.Error() != want {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

func TestRetryableOnlyTransient(t *testing.T) {
	if !services.Retryable(services.KindTransient) {
		t.Fatal("transient must be retryable")
	}
	for _, kind := range []services.Kind{services.KindAuth, services.KindParse, services.KindConfiguration} {
		if services.Retryable(kind) {
			t.Fatalf("%s must not be retryable", kind)
		}
	}
}
