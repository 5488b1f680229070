package result

import (
	"errors"
	"testing"
)

func TestOkIsOk(t *testing.T) {
	r := Ok(42)
	if !r.IsOk() {
		t.Fatal("expected Ok result to report IsOk")
	}
	if r.Value != 42 {
		t.Fatalf("expected value 42, got %d", r.Value)
	}
}

func TestSkippedIsNotOk(t *testing.T) {
	r := Skipped[int]("no anchors")
	if r.IsOk() {
		t.Fatal("expected Skipped result to report !IsOk")
	}
	if r.Reason != "no anchors" {
		t.Fatalf("expected reason to be preserved, got %q", r.Reason)
	}
}

func TestErrIsNotOk(t *testing.T) {
	cause := errors.New("boom")
	r := Err[int](KindTransientNetwork, cause)
	if r.IsOk() {
		t.Fatal("expected Err result to report !IsOk")
	}
	if r.Err.Kind != KindTransientNetwork {
		t.Fatalf("expected kind %v, got %v", KindTransientNetwork, r.Err.Kind)
	}
	if !errors.Is(r.Err, cause) {
		t.Fatal("expected Err to wrap the original cause")
	}
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		KindNone:              "none",
		KindTransientNetwork:  "transient_network",
		KindRateLimited:       "rate_limited",
		KindParseFailure:      "parse_failure",
		KindValidationFailure: "validation_failure",
		KindResourceMissing:   "resource_missing",
		KindFatal:             "fatal",
	}
	for kind, want := range cases {
		if got := kind.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", kind, got, want)
		}
	}
}
