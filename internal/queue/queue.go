// Package queue implements the durable, retryable execution job queue
// on top of Redis Streams: at-least-once delivery via consumer groups,
// exponential backoff for nacked jobs via a delayed-retry sorted set,
// stall reclamation, and dead-lettering on attempt exhaustion.
package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/swaprouter/engine/errs"
	"github.com/swaprouter/engine/internal/observability"
)

// Job is an execution job leased from the queue, referencing an order.
type Job struct {
	ID         string // Redis stream entry ID, used to ack/claim.
	OrderID    uuid.UUID
	Attempt    int // 1-based, set by the queue.
	EnqueuedAt time.Time
}

// Options configures a Queue instance (spec §4.4/§6).
type Options struct {
	Stream       string
	Group        string
	Consumer     string
	MaxAttempts  int
	BaseDelay    time.Duration
	Multiplier   float64
	StallTimeout time.Duration
	DedupTTL     time.Duration
}

func (o Options) withDefaults() Options {
	if o.Stream == "" {
		o.Stream = "engine:execution-jobs"
	}
	if o.Group == "" {
		o.Group = "engine-workers"
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = 5 * time.Second
	}
	if o.Multiplier <= 0 {
		o.Multiplier = 2
	}
	if o.StallTimeout <= 0 {
		o.StallTimeout = 60 * time.Second
	}
	if o.DedupTTL <= 0 {
		o.DedupTTL = time.Hour
	}
	return o
}

// ErrAlreadyEnqueued is returned by Enqueue when a job for the same
// order is already pending, enforcing per-order serial execution
// (spec §5).
var ErrAlreadyEnqueued = errors.New("queue: order already has a pending job")

// Queue is a Redis-Streams-backed execution job queue.
type Queue struct {
	client *redis.Client
	opts   Options
	dlq    *observability.DeadLetterQueue
	stream string
	delayedKey string
}

// New constructs a Queue and ensures its consumer group exists.
func New(ctx context.Context, client *redis.Client, opts Options, dlq *observability.DeadLetterQueue) (*Queue, error) {
	opts = opts.withDefaults()
	q := &Queue{
		client:     client,
		opts:       opts,
		dlq:        dlq,
		stream:     opts.Stream,
		delayedKey: opts.Stream + ":delayed",
	}
	err := client.XGroupCreateMkStream(ctx, q.stream, q.opts.Group, "0").Err()
	if err != nil && !isBusyGroup(err) {
		return nil, fmt.Errorf("create consumer group: %w", err)
	}
	return q, nil
}

func isBusyGroup(err error) bool {
	return err != nil && (err.Error() == "BUSYGROUP Consumer Group name already exists")
}

func lockKey(orderID uuid.UUID) string {
	return "engine:order-lock:" + orderID.String()
}

// Enqueue durably accepts a job for orderID, rejecting a second enqueue
// while one is already outstanding for the same order.
func (q *Queue) Enqueue(ctx context.Context, orderID uuid.UUID) (Job, error) {
	ok, err := q.client.SetNX(ctx, lockKey(orderID), q.opts.Consumer, q.opts.DedupTTL).Result()
	if err != nil {
		return Job{}, fmt.Errorf("acquire order lock: %w", err)
	}
	if !ok {
		return Job{}, ErrAlreadyEnqueued
	}

	now := time.Now().UTC()
	id, err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: map[string]any{
			"orderId":    orderID.String(),
			"attempt":    "1",
			"enqueuedAt": now.Format(time.RFC3339Nano),
		},
	}).Result()
	if err != nil {
		q.client.Del(ctx, lockKey(orderID))
		return Job{}, fmt.Errorf("xadd job: %w", err)
	}
	return Job{ID: id, OrderID: orderID, Attempt: 1, EnqueuedAt: now}, nil
}

// Lease blocks up to timeout for the next undelivered job.
func (q *Queue) Lease(ctx context.Context, timeout time.Duration) (*Job, error) {
	res, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.opts.Group,
		Consumer: q.opts.Consumer,
		Streams:  []string{q.stream, ">"},
		Count:    1,
		Block:    timeout,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("xreadgroup: %w", err)
	}
	for _, stream := range res {
		for _, msg := range stream.Messages {
			job, err := jobFromMessage(msg)
			if err != nil {
				return nil, err
			}
			return job, nil
		}
	}
	return nil, nil
}

func jobFromMessage(msg redis.XMessage) (*Job, error) {
	orderIDRaw, _ := msg.Values["orderId"].(string)
	orderID, err := uuid.Parse(orderIDRaw)
	if err != nil {
		return nil, fmt.Errorf("parse job orderId: %w", err)
	}
	attempt := 1
	if raw, ok := msg.Values["attempt"].(string); ok {
		if parsed, err := strconv.Atoi(raw); err == nil {
			attempt = parsed
		}
	}
	enqueuedAt := time.Now().UTC()
	if raw, ok := msg.Values["enqueuedAt"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			enqueuedAt = parsed
		}
	}
	return &Job{ID: msg.ID, OrderID: orderID, Attempt: attempt, EnqueuedAt: enqueuedAt}, nil
}

// Ack marks job as durably processed and releases its dedup lock.
func (q *Queue) Ack(ctx context.Context, job Job) error {
	if err := q.client.XAck(ctx, q.stream, q.opts.Group, job.ID).Err(); err != nil {
		return fmt.Errorf("xack: %w", err)
	}
	if err := q.client.Del(ctx, lockKey(job.OrderID)).Err(); err != nil {
		return fmt.Errorf("release order lock: %w", err)
	}
	return nil
}

// Nack reports a failed attempt. Below MaxAttempts the job is scheduled
// for redelivery after an exponential backoff delay; at MaxAttempts it
// is moved to the dead-letter queue and the lock released.
func (q *Queue) Nack(ctx context.Context, job Job, cause error) error {
	if job.Attempt >= q.opts.MaxAttempts {
		q.dlq.Offer(observability.DeadLetterRecord{
			OrderID:   job.OrderID.String(),
			JobID:     job.ID,
			Attempts:  job.Attempt,
			LastError: errMessage(cause),
			FailedAt:  time.Now().UTC(),
		})
		return q.Ack(ctx, job)
	}

	if err := q.client.XAck(ctx, q.stream, q.opts.Group, job.ID).Err(); err != nil {
		return fmt.Errorf("xack before requeue: %w", err)
	}

	next := job
	next.Attempt++
	payload, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("marshal delayed job: %w", err)
	}
	delay := computeBackoff(job.Attempt, q.opts.BaseDelay, q.opts.Multiplier)
	score := float64(time.Now().Add(delay).UnixMilli())
	if err := q.client.ZAdd(ctx, q.delayedKey, redis.Z{Score: score, Member: payload}).Err(); err != nil {
		return fmt.Errorf("schedule delayed retry: %w", err)
	}
	return nil
}

// PromoteDue re-adds delayed retries whose backoff has elapsed back
// onto the stream for delivery. Call periodically from a background
// loop (the worker pool runs one per queue instance).
func (q *Queue) PromoteDue(ctx context.Context) (int, error) {
	now := float64(time.Now().UnixMilli())
	entries, err := q.client.ZRangeByScore(ctx, q.delayedKey, &redis.ZRangeBy{Min: "0", Max: strconv.FormatFloat(now, 'f', 0, 64)}).Result()
	if err != nil {
		return 0, fmt.Errorf("scan delayed retries: %w", err)
	}
	promoted := 0
	for _, raw := range entries {
		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			q.client.ZRem(ctx, q.delayedKey, raw)
			continue
		}
		if _, err := q.client.XAdd(ctx, &redis.XAddArgs{
			Stream: q.stream,
			Values: map[string]any{
				"orderId":    job.OrderID.String(),
				"attempt":    strconv.Itoa(job.Attempt),
				"enqueuedAt": job.EnqueuedAt.Format(time.RFC3339Nano),
			},
		}).Result(); err != nil {
			return promoted, fmt.Errorf("promote delayed retry: %w", err)
		}
		q.client.ZRem(ctx, q.delayedKey, raw)
		promoted++
	}
	return promoted, nil
}

// ReclaimStalled claims pending entries idle longer than StallTimeout,
// handing them back out for another attempt (spec §4.4 stall detection).
func (q *Queue) ReclaimStalled(ctx context.Context) ([]*Job, error) {
	msgs, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.stream,
		Group:    q.opts.Group,
		Consumer: q.opts.Consumer,
		MinIdle:  q.opts.StallTimeout,
		Start:    "0-0",
		Count:    50,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("xautoclaim: %w", err)
	}
	jobs := make([]*Job, 0, len(msgs))
	for _, msg := range msgs {
		job, err := jobFromMessage(msg)
		if err != nil {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func computeBackoff(attempt int, base time.Duration, multiplier float64) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.Multiplier = multiplier
	b.RandomizationFactor = 0
	b.MaxInterval = time.Duration(1<<63 - 1) // uncapped
	var delay time.Duration
	for i := 0; i < attempt; i++ {
		delay = b.NextBackOff()
	}
	return delay
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	if e, ok := err.(*errs.E); ok {
		return e.Error()
	}
	return err.Error()
}
