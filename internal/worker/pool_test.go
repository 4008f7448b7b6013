package worker

import (
	"testing"
	"time"
)

func TestOptionsWithDefaults(t *testing.T) {
	opts := Options{}.withDefaults()
	if opts.Concurrency != DefaultConcurrency {
		t.Fatalf("expected default concurrency %d, got %d", DefaultConcurrency, opts.Concurrency)
	}
	if opts.StartRate != DefaultStartRate {
		t.Fatalf("expected default start rate %v, got %v", DefaultStartRate, opts.StartRate)
	}
	if opts.MaintenanceInterval != DefaultMaintenanceInterval {
		t.Fatalf("expected default maintenance interval %v, got %v", DefaultMaintenanceInterval, opts.MaintenanceInterval)
	}
}

func TestOptionsWithDefaultsPreservesExplicitValues(t *testing.T) {
	opts := Options{Concurrency: 5, StartRate: 50, MaintenanceInterval: 250 * time.Millisecond}.withDefaults()
	if opts.Concurrency != 5 || opts.StartRate != 50 || opts.MaintenanceInterval != 250*time.Millisecond {
		t.Fatalf("expected explicit values preserved, got %+v", opts)
	}
}
