// Package telemetry carries shared OpenTelemetry attribute keys and
// helpers for the engine's metrics and traces.
package telemetry

import (
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared across the engine's OTel instrumentation.
const (
	AttrEnvironment = "environment"
	AttrVenue       = "venue"
	AttrTokenIn     = "token_in"
	AttrTokenOut    = "token_out"
	AttrOrderStatus = "order_status"
	AttrJobID       = "job_id"
	AttrOrderID     = "order_id"
	AttrPoolName    = "db_pool"
	AttrObjectType  = "object_type"
	AttrOperation   = "operation"
	AttrResult      = "result"
	AttrErrorType   = "error_type"
	AttrReason      = "reason"
	AttrQueueStream = "stream"
)

var environment atomic.Value

func init() {
	environment.Store("dev")
}

// SetEnvironment records the deployment environment (dev/staging/prod)
// used to tag every metric the engine emits. Call once during startup
// from the resolved config.
func SetEnvironment(env string) {
	if env == "" {
		return
	}
	environment.Store(env)
}

// Environment returns the deployment environment tag set by
// SetEnvironment, defaulting to "dev" if never called.
func Environment() string {
	return environment.Load().(string)
}

// OrderAttributes tags a metric event with an order's venue, token pair,
// and lifecycle status.
func OrderAttributes(venue, tokenIn, tokenOut, status string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrEnvironment, Environment()),
		attribute.String(AttrVenue, venue),
		attribute.String(AttrTokenIn, tokenIn),
		attribute.String(AttrTokenOut, tokenOut),
		attribute.String(AttrOrderStatus, status),
	}
}

// PoolAttributes tags a connection-pool gauge with the pool's logical
// name and the current environment.
func PoolAttributes(poolName string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrEnvironment, Environment()),
		attribute.String(AttrPoolName, poolName),
	}
}

// ErrorAttributes tags an error counter with its operation, error type,
// and canonical reason.
func ErrorAttributes(operation, errorType, reason string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrEnvironment, Environment()),
		attribute.String(AttrOperation, operation),
		attribute.String(AttrErrorType, errorType),
		attribute.String(AttrReason, reason),
	}
}

// OperationResultAttributes tags a counter with an operation's outcome
// (ok/error) on some object type.
func OperationResultAttributes(objectType, operation, result string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrEnvironment, Environment()),
		attribute.String(AttrObjectType, objectType),
		attribute.String(AttrOperation, operation),
		attribute.String(AttrResult, result),
	}
}

// QueueAttributes tags a job-queue metric with its stream key.
func QueueAttributes(stream string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrEnvironment, Environment()),
		attribute.String(AttrQueueStream, stream),
	}
}
