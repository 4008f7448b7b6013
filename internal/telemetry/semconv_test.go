package telemetry

import "testing"

func TestEnvironmentDefaultsAndOverrides(t *testing.T) {
	if Environment() != "dev" {
		t.Fatalf("expected default environment dev, got %s", Environment())
	}
	SetEnvironment("prod")
	defer SetEnvironment("dev")
	if Environment() != "prod" {
		t.Fatalf("expected overridden environment prod, got %s", Environment())
	}
}

func TestOrderAttributesIncludesEnvironment(t *testing.T) {
	attrs := OrderAttributes("meteora", "SOL", "USDC", "completed")
	found := false
	for _, a := range attrs {
		if string(a.Key) == AttrVenue && a.Value.AsString() == "meteora" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected venue attribute in %v", attrs)
	}
}
