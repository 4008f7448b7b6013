package errs

import (
	"errors"
	"strings"
	"testing"
)

func TestErrorFormattingIncludesCanonicalAndVenue(t *testing.T) {
	err := New(
		"venue.meteora",
		CodeValidation,
		WithHTTP(400),
		WithMessage("invalid order payload"),
		WithRawCode("-2013"),
		WithRawMessage("order does not exist"),
		WithCanonicalCode(CanonicalOrderNotFound),
		WithVenueMetadata(map[string]string{
			"tokenIn":  "SOL",
			"endpoint": "/quote",
		}),
		WithVenueField("request_id", "req-123"),
		WithRemediation("verify order id before retrying"),
		WithCause(errors.New("meteora http 400")),
	)

	out := err.Error()
	if !strings.Contains(out, "component=venue.meteora") {
		t.Fatalf("expected component marker in error string: %s", out)
	}
	if !strings.Contains(out, "code=validation") {
		t.Fatalf("expected code in error string: %s", out)
	}
	if !strings.Contains(out, "canonical=order_not_found") {
		t.Fatalf("expected canonical classification in error string: %s", out)
	}
	expectedVenue := "venue=endpoint=\"/quote\",request_id=\"req-123\",tokenIn=\"SOL\""
	if !strings.Contains(out, expectedVenue) {
		t.Fatalf("expected venue metadata %q in error string: %s", expectedVenue, out)
	}
	if !strings.Contains(out, "remediation=\"verify order id before retrying\"") {
		t.Fatalf("expected remediation guidance in error string: %s", out)
	}
	if !strings.Contains(out, "cause=\"meteora http 400\"") {
		t.Fatalf("expected wrapped cause in error string: %s", out)
	}
}

func TestWithCanonicalCodeEmptyDefaultsToUnknown(t *testing.T) {
	err := New("venue.meteora", CodeValidation, WithCanonicalCode("   "))
	if err.Canonical != CanonicalUnknown {
		t.Fatalf("expected canonical code to default to unknown, got %q", err.Canonical)
	}
	if strings.Contains(err.Error(), "canonical=") {
		t.Fatalf("canonical marker should be omitted when code is unknown: %s", err.Error())
	}
}

func TestWithVenueMetadataMerge(t *testing.T) {
	err := New(
		"venue.raydium",
		CodeUnavailable,
		WithVenueMetadata(map[string]string{"tokenIn": "SOL"}),
		WithVenueMetadata(map[string]string{"tokenIn": "USDC", "endpoint": "/swap"}),
	)

	if got := err.VenueMetadata["tokenIn"]; got != "USDC" {
		t.Fatalf("expected latest metadata to win, got %q", got)
	}
	if got := err.VenueMetadata["endpoint"]; got != "/swap" {
		t.Fatalf("expected endpoint metadata to be present, got %q", got)
	}
}

func TestNilErrorString(t *testing.T) {
	var e *E
	if got := e.Error(); got != "<nil>" {
		t.Fatalf("expected <nil> string for nil error, got %q", got)
	}
}

func TestDefaultHTTPStatusPerCode(t *testing.T) {
	cases := map[Code]int{
		CodeValidation:  400,
		CodeNotFound:    404,
		CodeConflict:    409,
		CodeUnavailable: 503,
		CodeBadRequest:  400,
		CodeInternal:    500,
	}
	for code, want := range cases {
		got := New("order", code).HTTP
		if got != want {
			t.Errorf("code %q: expected default HTTP %d, got %d", code, want, got)
		}
	}
}

func TestIsRetriableClassifiesTerminalCanonicalCodes(t *testing.T) {
	terminal := []CanonicalCode{CanonicalOrderNotFound, CanonicalTerminalState, CanonicalInvalid}
	for _, cc := range terminal {
		err := New("orchestrator", CodeConflict, WithCanonicalCode(cc))
		if IsRetriable(err) {
			t.Errorf("canonical %q: expected non-retriable", cc)
		}
	}

	retriable := New("venue.meteora", CodeUnavailable, WithCanonicalCode(CanonicalVenueUnavailable))
	if !IsRetriable(retriable) {
		t.Fatalf("expected venue_unavailable to be retriable")
	}

	if !IsRetriable(errors.New("plain network error")) {
		t.Fatalf("expected unclassified errors to default to retriable")
	}
}
