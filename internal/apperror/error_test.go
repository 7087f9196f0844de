package apperror

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestIsMatchesByCode(t *testing.T) {
	err := New(CodeServiceTimeout, WithContext("feed"))

	if !errors.Is(err, New(CodeServiceTimeout)) {
		t.Error("same code should match")
	}
	if errors.Is(err, New(CodeServiceUnavailable)) {
		t.Error("different code should not match")
	}
}

func TestWrapKeepsExistingCode(t *testing.T) {
	inner := New(CodeNodeNotSynced)
	wrapped := Wrap(fmt.Errorf("poll: %w", inner), CodeInternalError, "")

	if wrapped.Code != CodeNodeNotSynced {
		t.Fatalf("code = %s, want %s", wrapped.Code, CodeNodeNotSynced)
	}
}

func TestWrapDoesNotMutateShared(t *testing.T) {
	sentinel := New(CodeChainRead)

	wrapped := Wrap(sentinel, CodeInternalError, "balance poll")

	if sentinel.Context != "" {
		t.Fatalf("shared error mutated, context = %q", sentinel.Context)
	}
	if wrapped.Context != "balance poll" {
		t.Fatalf("context = %q, want backfilled", wrapped.Context)
	}
	if wrapped.Code != CodeChainRead {
		t.Fatalf("code = %s, want original", wrapped.Code)
	}
}

func TestWrapNil(t *testing.T) {
	if got := Wrap(nil, CodeInternalError, "x"); got != nil {
		t.Fatalf("Wrap(nil) = %v", got)
	}
}

func TestGetCodeFallsBack(t *testing.T) {
	if got := GetCode(errors.New("plain")); got != CodeUnknownError {
		t.Fatalf("code = %s, want %s", got, CodeUnknownError)
	}
}

func TestLogAttrs(t *testing.T) {
	attrs := LogAttrs(New(CodeGasEstimationFailed, WithContext("pair WETH/DAI")))

	kv := map[string]any{}
	for i := 0; i+1 < len(attrs); i += 2 {
		kv[attrs[i].(string)] = attrs[i+1]
	}

	if kv["code"] != CodeGasEstimationFailed {
		t.Errorf("code attr = %v", kv["code"])
	}
	if kv["error_context"] != "pair WETH/DAI" {
		t.Errorf("error_context attr = %v", kv["error_context"])
	}
	// The capture site is outside this package, so from a test in the
	// package itself the first reported frame is the test runner.
	origin, ok := kv["origin"].(string)
	if !ok || origin == "" {
		t.Errorf("origin attr = %v, want a call site", kv["origin"])
	}
	if strings.Contains(origin, "apperror.") {
		t.Errorf("origin %q points inside the package", origin)
	}
}

func TestLogAttrsPlainError(t *testing.T) {
	attrs := LogAttrs(errors.New("boom"))

	if len(attrs) != 4 {
		t.Fatalf("attrs = %v, want only code and error", attrs)
	}
}
