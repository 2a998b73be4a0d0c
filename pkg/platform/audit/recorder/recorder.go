// Package recorder writes one audit record for every mutating request
// without changing what the caller receives or how long it waits.
//
// Records are built synchronously (classification, masking) and persisted
// asynchronously by a small worker pool reading a bounded queue. Nothing
// that goes wrong on the audit path is returned to the caller: failures are
// logged and counted.
package recorder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	audit "github.com/niksbanna/ehr-portal-sub000/pkg/platform/audit"
	"github.com/niksbanna/ehr-portal-sub000/pkg/platform/audit/masking"
	"github.com/niksbanna/ehr-portal-sub000/pkg/requestcontext"
)

const (
	defaultQueueSize    = 1024
	defaultWorkers      = 4
	defaultWriteTimeout = 5 * time.Second
	defaultMaxBodyBytes = 1 << 20
	tracerName          = "github.com/niksbanna/ehr-portal-sub000/pkg/platform/audit/recorder"
)

// Request is the audited view of one mutating operation.
type Request struct {
	Method         string
	Path           string
	Body           []byte
	ActorID        string
	ActorRole      string
	SourceAddress  string
	UserAgent      string
	ClientPlatform string
	RequestID      string
}

// RequestFromContext builds a Request, taking actor and provenance from
// values the auth and metadata middleware placed in ctx.
func RequestFromContext(ctx context.Context, method, path string, body []byte) Request {
	actor, _ := requestcontext.Actor(ctx)
	return Request{
		Method:         method,
		Path:           path,
		Body:           body,
		ActorID:        actor.ID,
		ActorRole:      actor.Role,
		SourceAddress:  requestcontext.ClientIP(ctx),
		UserAgent:      requestcontext.UserAgent(ctx),
		ClientPlatform: requestcontext.ClientPlatform(ctx),
		RequestID:      requestcontext.RequestID(ctx),
	}
}

// Recorder captures audit records and persists them in the background.
type Recorder struct {
	appender audit.Appender
	masker   *masking.Masker
	logger   *slog.Logger
	metrics  *Metrics
	tracer   trace.Tracer
	clock    func() time.Time
	newID    func() string

	apiPrefix        string
	queueSize        int
	workers          int
	policy           OverflowPolicy
	writeTimeout     time.Duration
	maxBodyBytes     int64
	breakerThreshold int
	breakerCooldown  time.Duration

	buffer  *ringBuffer
	breaker *circuitBreaker
	notify  chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup

	intakeMu sync.RWMutex
	closed   bool
}

// Option configures a Recorder.
type Option func(*Recorder)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		r.logger = logger
	}
}

func WithMasker(m *masking.Masker) Option {
	return func(r *Recorder) {
		r.masker = m
	}
}

func WithMetrics(m *Metrics) Option {
	return func(r *Recorder) {
		r.metrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(r *Recorder) {
		r.tracer = t
	}
}

// WithClock sets the clock used for OccurredAt and the circuit breaker.
func WithClock(clock func() time.Time) Option {
	return func(r *Recorder) {
		r.clock = clock
	}
}

// WithIDGenerator replaces the UUID generator for record IDs.
func WithIDGenerator(fn func() string) Option {
	return func(r *Recorder) {
		r.newID = fn
	}
}

// WithAPIPrefix sets the prefix stripped before classification, e.g. "/api/v1".
func WithAPIPrefix(prefix string) Option {
	return func(r *Recorder) {
		r.apiPrefix = prefix
	}
}

func WithQueueSize(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.queueSize = n
		}
	}
}

func WithWorkers(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.workers = n
		}
	}
}

func WithOverflowPolicy(p OverflowPolicy) Option {
	return func(r *Recorder) {
		if p != "" {
			r.policy = p
		}
	}
}

// WithWriteTimeout bounds each audit store write.
func WithWriteTimeout(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.writeTimeout = d
		}
	}
}

// WithMaxBodyBytes caps how much of a request body is buffered for the
// payload snapshot. Larger bodies are still forwarded in full but recorded
// with a null snapshot.
func WithMaxBodyBytes(n int64) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.maxBodyBytes = n
		}
	}
}

// WithCircuitBreaker opens the breaker after threshold consecutive store
// failures and keeps it open for cooldown.
func WithCircuitBreaker(threshold int, cooldown time.Duration) Option {
	return func(r *Recorder) {
		r.breakerThreshold = threshold
		r.breakerCooldown = cooldown
	}
}

// New creates a Recorder and starts its workers. Call Close to drain them.
func New(appender audit.Appender, opts ...Option) (*Recorder, error) {
	if appender == nil {
		return nil, errors.New("audit appender is required")
	}
	r := &Recorder{
		appender:     appender,
		queueSize:    defaultQueueSize,
		workers:      defaultWorkers,
		policy:       DropOldest,
		writeTimeout: defaultWriteTimeout,
		maxBodyBytes: defaultMaxBodyBytes,
		clock:        time.Now,
		newID:        uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.masker == nil {
		r.masker = masking.Default()
	}
	if r.metrics == nil {
		r.metrics = NewMetrics(nil)
	}
	if r.tracer == nil {
		r.tracer = otel.Tracer(tracerName)
	}
	if _, ok := ParseOverflowPolicy(string(r.policy)); !ok {
		return nil, fmt.Errorf("unknown audit overflow policy %q", r.policy)
	}

	r.buffer = newRingBuffer(r.queueSize, r.policy)
	r.breaker = newCircuitBreaker(r.breakerThreshold, r.breakerCooldown, r.clock)
	r.notify = make(chan struct{}, 1)
	r.done = make(chan struct{})

	r.wg.Add(r.workers)
	for i := 0; i < r.workers; i++ {
		go r.work()
	}
	return r, nil
}

// Do runs fn and records exactly one audit entry describing its real
// outcome. fn's error is returned unchanged and a panic in fn is re-raised
// after the record is captured.
func (r *Recorder) Do(ctx context.Context, req Request, fn func(context.Context) error) error {
	completed := false
	defer func() {
		if completed {
			return
		}
		p := recover()
		r.capture(ctx, req, audit.OutcomeFailure, abortReason(p))
		if p != nil {
			panic(p)
		}
	}()

	err := fn(ctx)
	completed = true

	if err != nil {
		r.capture(ctx, req, audit.OutcomeFailure, err.Error())
	} else {
		r.capture(ctx, req, audit.OutcomeSuccess, "")
	}
	return err
}

// abortReason describes a panic value, or a runtime.Goexit when p is nil.
func abortReason(p any) string {
	if p == nil {
		return "operation aborted"
	}
	return fmt.Sprintf("panic: %v", p)
}

// Pending returns the number of records waiting to be persisted.
func (r *Recorder) Pending() int {
	return r.buffer.len()
}

// Close stops accepting records, persists what is queued and waits for the
// workers. If ctx ends first the remaining records are abandoned.
func (r *Recorder) Close(ctx context.Context) error {
	r.intakeMu.Lock()
	if !r.closed {
		r.closed = true
		close(r.done)
	}
	r.intakeMu.Unlock()

	finished := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain audit queue (%d pending): %w", r.buffer.len(), ctx.Err())
	}
}

// capture builds and enqueues a record. It never panics and never blocks
// on the store.
func (r *Recorder) capture(ctx context.Context, req Request, outcome audit.Outcome, reason string) {
	defer func() {
		if p := recover(); p != nil {
			r.metrics.incDropped(dropBuildFailed)
			r.logger.ErrorContext(ctx, "failed to build audit record",
				"panic", p,
				"request_id", req.RequestID,
			)
		}
	}()

	record := r.build(req, outcome, reason)
	r.enqueue(ctx, record)
}

func (r *Recorder) build(req Request, outcome audit.Outcome, reason string) audit.Record {
	c := audit.Classify(req.Method, audit.StripPrefix(req.Path, r.apiPrefix))

	record := audit.Record{
		ID:              r.newID(),
		ActorID:         audit.StringPtr(req.ActorID),
		ActorRole:       audit.StringPtr(req.ActorRole),
		Action:          c.Action,
		EntityType:      c.EntityType,
		EntityID:        c.EntityID,
		PayloadSnapshot: r.snapshot(req.Body),
		SourceAddress:   req.SourceAddress,
		UserAgent:       req.UserAgent,
		ClientPlatform:  req.ClientPlatform,
		RequestID:       req.RequestID,
		Outcome:         outcome,
		OccurredAt:      r.clock().UTC(),
	}
	if outcome == audit.OutcomeFailure {
		if reason == "" {
			reason = "unknown failure"
		}
		record.FailureReason = &reason
	}
	return record
}

// snapshot masks a JSON body. Empty and unparseable bodies become null so
// that raw text never reaches the store unmasked.
func (r *Recorder) snapshot(body []byte) masking.Value {
	if len(bytes.TrimSpace(body)) == 0 {
		return masking.Null()
	}
	v, err := masking.Parse(body)
	if err != nil {
		return masking.Null()
	}
	return r.masker.Mask(v)
}

func (r *Recorder) enqueue(ctx context.Context, record audit.Record) {
	r.intakeMu.RLock()
	defer r.intakeMu.RUnlock()

	if r.closed {
		r.metrics.incDropped(dropClosed)
		r.logger.WarnContext(ctx, "audit recorder closed, record dropped",
			"record_id", record.ID,
			"request_id", record.RequestID,
		)
		return
	}

	if lost, dropped := r.buffer.enqueue(record); dropped {
		r.metrics.incDropped(dropOverflow)
		r.logger.WarnContext(ctx, "audit queue full, record dropped",
			"policy", string(r.policy),
			"record_id", lost.ID,
			"request_id", lost.RequestID,
		)
	}
	r.metrics.Enqueued.Inc()
	r.metrics.QueueDepth.Set(float64(r.buffer.len()))

	select {
	case r.notify <- struct{}{}:
	default:
	}
}

func (r *Recorder) work() {
	defer r.wg.Done()
	for {
		if record, ok := r.buffer.dequeue(); ok {
			r.metrics.QueueDepth.Set(float64(r.buffer.len()))
			r.persist(record)
			continue
		}
		select {
		case <-r.notify:
		case <-r.done:
			for {
				record, ok := r.buffer.dequeue()
				if !ok {
					return
				}
				r.persist(record)
			}
		}
	}
}

// persist writes one record on a context detached from the request.
func (r *Recorder) persist(record audit.Record) {
	ctx, cancel := context.WithTimeout(context.Background(), r.writeTimeout)
	defer cancel()

	ctx, span := r.tracer.Start(ctx, "audit.persist",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("audit.record_id", record.ID),
			attribute.String("audit.entity_type", record.EntityType),
			attribute.String("audit.action", string(record.Action)),
			attribute.String("audit.outcome", string(record.Outcome)),
		),
	)
	defer span.End()

	if !r.breaker.allow() {
		r.metrics.incDropped(dropCircuitOpen)
		span.SetStatus(codes.Error, "circuit open")
		r.logger.WarnContext(ctx, "audit circuit open, record dropped",
			"record_id", record.ID,
			"request_id", record.RequestID,
		)
		return
	}

	start := time.Now()
	err := r.append(ctx, record)
	r.metrics.PersistDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		r.metrics.PersistFailures.Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "audit write failed")
		if r.breaker.recordFailure() {
			r.logger.ErrorContext(ctx, "audit store unhealthy, circuit opened")
		}
		r.metrics.setCircuitBreakerState(r.breaker.open())
		r.logger.ErrorContext(ctx, "failed to persist audit record",
			"error", err,
			"record_id", record.ID,
			"request_id", record.RequestID,
		)
		return
	}

	r.breaker.recordSuccess()
	r.metrics.setCircuitBreakerState(false)
	r.metrics.Persisted.Inc()
}

// append calls the store, converting a panic into an error.
func (r *Recorder) append(ctx context.Context, record audit.Record) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("audit appender panicked: %v", p)
		}
	}()
	return r.appender.Append(ctx, record)
}
