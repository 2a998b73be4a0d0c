package recorder

//go:generate mockgen -source=../store.go -destination=../mocks/mocks.go -package=mocks Appender,Store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	audit "github.com/niksbanna/ehr-portal-sub000/pkg/platform/audit"
	"github.com/niksbanna/ehr-portal-sub000/pkg/platform/audit/mocks"
	"github.com/niksbanna/ehr-portal-sub000/pkg/platform/audit/store/memory"
)

var fixedNow = time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)

func newTestRecorder(t *testing.T, appender audit.Appender, opts ...Option) (*Recorder, *Metrics) {
	t.Helper()
	metrics := NewMetrics(prometheus.NewRegistry())
	base := []Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(metrics),
		WithClock(func() time.Time { return fixedNow }),
		WithAPIPrefix("/api/v1"),
	}
	r, err := New(appender, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close(context.Background()) })
	return r, metrics
}

func drain(t *testing.T, r *Recorder) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Close(ctx))
}

func sequentialIDs() func() string {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("r%d", n.Add(1))
	}
}

func TestNewRequiresAppender(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audit appender is required")
}

func TestNewRejectsUnknownPolicy(t *testing.T) {
	_, err := New(memory.NewInMemoryStore(), WithOverflowPolicy("drop-random"), WithMetrics(NewMetrics(prometheus.NewRegistry())))
	require.Error(t, err)
}

func TestDoRecordsSuccessfulCreate(t *testing.T) {
	store := memory.NewInMemoryStore()
	r, _ := newTestRecorder(t, store)

	req := Request{
		Method:        "POST",
		Path:          "/api/v1/patients",
		Body:          []byte(`{"firstName":"Amit","aadhaar":"123456789012"}`),
		ActorID:       "doc-7",
		ActorRole:     "doctor",
		SourceAddress: "10.1.2.3",
		UserAgent:     "curl/8.0",
		RequestID:     "req-1",
	}
	err := r.Do(context.Background(), req, func(context.Context) error { return nil })
	require.NoError(t, err)
	drain(t, r)

	records, total, err := store.List(context.Background(), audit.Filter{}, audit.Page{Page: 1, Limit: 10})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	rec := records[0]

	assert.Equal(t, "Patients", rec.EntityType)
	assert.Nil(t, rec.EntityID)
	assert.Equal(t, audit.ActionCreate, rec.Action)
	assert.Equal(t, audit.OutcomeSuccess, rec.Outcome)
	assert.Nil(t, rec.FailureReason)
	require.NotNil(t, rec.ActorID)
	assert.Equal(t, "doc-7", *rec.ActorID)
	assert.Equal(t, "doctor", *rec.ActorRole)
	assert.Equal(t, "10.1.2.3", rec.SourceAddress)
	assert.Equal(t, "req-1", rec.RequestID)
	assert.True(t, fixedNow.Equal(rec.OccurredAt))
	assert.NotEmpty(t, rec.ID)

	aadhaar, ok := rec.PayloadSnapshot.Get("aadhaar")
	require.True(t, ok)
	assert.Equal(t, "XXXX-XXXX-9012", aadhaar.Text())
	name, ok := rec.PayloadSnapshot.Get("firstName")
	require.True(t, ok)
	assert.Equal(t, "Amit", name.Text())
}

func TestDoRecordsFailureAndReturnsOriginalError(t *testing.T) {
	store := memory.NewInMemoryStore()
	r, _ := newTestRecorder(t, store)

	notFound := errors.New("encounter 3fa85f64-5717-4562-b3fc-2c963f66afa6 not found")
	req := Request{Method: "DELETE", Path: "/api/v1/encounters/3fa85f64-5717-4562-b3fc-2c963f66afa6"}

	err := r.Do(context.Background(), req, func(context.Context) error { return notFound })
	assert.Same(t, notFound, err)
	drain(t, r)

	records, _, err := store.List(context.Background(), audit.Filter{}, audit.Page{Page: 1, Limit: 10})
	require.NoError(t, err)
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, "Encounters", rec.EntityType)
	require.NotNil(t, rec.EntityID)
	assert.Equal(t, "3fa85f64-5717-4562-b3fc-2c963f66afa6", *rec.EntityID)
	assert.Equal(t, audit.ActionDelete, rec.Action)
	assert.Equal(t, audit.OutcomeFailure, rec.Outcome)
	require.NotNil(t, rec.FailureReason)
	assert.Contains(t, *rec.FailureReason, "not found")
	assert.True(t, rec.PayloadSnapshot.IsNull())
	assert.Nil(t, rec.ActorID)
}

func TestDoRepanicsAfterRecording(t *testing.T) {
	store := memory.NewInMemoryStore()
	r, _ := newTestRecorder(t, store)

	assert.PanicsWithValue(t, "boom", func() {
		_ = r.Do(context.Background(), Request{Method: "PUT", Path: "/patients/42"}, func(context.Context) error {
			panic("boom")
		})
	})
	drain(t, r)

	records, _, err := store.List(context.Background(), audit.Filter{}, audit.Page{Page: 1, Limit: 10})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, audit.ActionUpdate, records[0].Action)
	assert.Equal(t, "42", *records[0].EntityID)
	assert.Equal(t, audit.OutcomeFailure, records[0].Outcome)
	assert.Equal(t, "panic: boom", *records[0].FailureReason)
}

func TestDoUnparseableBodyStoredAsNull(t *testing.T) {
	store := memory.NewInMemoryStore()
	r, _ := newTestRecorder(t, store)

	req := Request{Method: "POST", Path: "/patients", Body: []byte(`aadhaar=123456789012`)}
	require.NoError(t, r.Do(context.Background(), req, func(context.Context) error { return nil }))
	drain(t, r)

	rec, err := firstRecord(store)
	require.NoError(t, err)
	assert.True(t, rec.PayloadSnapshot.IsNull())
}

func TestStoreFailureNeverReachesCaller(t *testing.T) {
	ctrl := gomock.NewController(t)
	appender := mocks.NewMockAppender(ctrl)
	appender.EXPECT().Append(gomock.Any(), gomock.Any()).Return(errors.New("db down"))

	r, metrics := newTestRecorder(t, appender)

	err := r.Do(context.Background(), Request{Method: "POST", Path: "/patients"}, func(context.Context) error { return nil })
	assert.NoError(t, err)
	drain(t, r)

	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.PersistFailures))
	assert.Equal(t, 0.0, promtest.ToFloat64(metrics.Persisted))
}

func TestAppenderPanicIsContained(t *testing.T) {
	ctrl := gomock.NewController(t)
	appender := mocks.NewMockAppender(ctrl)
	appender.EXPECT().Append(gomock.Any(), gomock.Any()).DoAndReturn(func(context.Context, audit.Record) error {
		panic("driver bug")
	})

	r, metrics := newTestRecorder(t, appender)

	assert.NotPanics(t, func() {
		_ = r.Do(context.Background(), Request{Method: "POST", Path: "/patients"}, func(context.Context) error { return nil })
	})
	drain(t, r)
	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.PersistFailures))
}

func TestWriteUsesDetachedContextWithTimeout(t *testing.T) {
	ctrl := gomock.NewController(t)
	appender := mocks.NewMockAppender(ctrl)
	appender.EXPECT().Append(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, _ audit.Record) error {
		assert.NoError(t, ctx.Err())
		deadline, ok := ctx.Deadline()
		assert.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(2*time.Second), deadline, time.Second)
		return nil
	})

	r, _ := newTestRecorder(t, appender, WithWriteTimeout(2*time.Second))

	reqCtx, cancel := context.WithCancel(context.Background())
	require.NoError(t, r.Do(reqCtx, Request{Method: "POST", Path: "/patients"}, func(context.Context) error { return nil }))
	cancel()
	drain(t, r)
}

func TestCircuitBreakerSkipsWritesWhileOpen(t *testing.T) {
	ctrl := gomock.NewController(t)
	appender := mocks.NewMockAppender(ctrl)
	appender.EXPECT().Append(gomock.Any(), gomock.Any()).Return(errors.New("db down")).Times(2)

	r, metrics := newTestRecorder(t, appender, WithWorkers(1), WithCircuitBreaker(2, time.Hour))

	for i := 0; i < 4; i++ {
		require.NoError(t, r.Do(context.Background(), Request{Method: "POST", Path: "/patients"}, func(context.Context) error { return nil }))
	}
	drain(t, r)

	assert.Equal(t, 2.0, promtest.ToFloat64(metrics.Dropped.WithLabelValues(dropCircuitOpen)))
	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.CircuitBreakerState))
}

// blockingAppender holds its first write until released so the queue can be
// filled deterministically behind it.
type blockingAppender struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once

	mu  sync.Mutex
	ids []string
}

func newBlockingAppender() *blockingAppender {
	return &blockingAppender{started: make(chan struct{}), release: make(chan struct{})}
}

func (b *blockingAppender) Append(_ context.Context, record audit.Record) error {
	b.once.Do(func() {
		close(b.started)
		<-b.release
	})
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ids = append(b.ids, record.ID)
	return nil
}

func TestOverflowPolicies(t *testing.T) {
	tests := []struct {
		policy OverflowPolicy
		want   []string
	}{
		{policy: DropOldest, want: []string{"r1", "r4", "r5"}},
		{policy: DropNewest, want: []string{"r1", "r2", "r3"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			appender := newBlockingAppender()
			r, metrics := newTestRecorder(t, appender,
				WithWorkers(1),
				WithQueueSize(2),
				WithOverflowPolicy(tt.policy),
				WithIDGenerator(sequentialIDs()),
			)
			do := func() {
				require.NoError(t, r.Do(context.Background(), Request{Method: "POST", Path: "/patients"}, func(context.Context) error { return nil }))
			}

			do()
			<-appender.started
			for i := 0; i < 4; i++ {
				do()
			}
			assert.Equal(t, 2, r.Pending())

			close(appender.release)
			drain(t, r)

			assert.Equal(t, tt.want, appender.ids)
			assert.Equal(t, 2.0, promtest.ToFloat64(metrics.Dropped.WithLabelValues(dropOverflow)))
		})
	}
}

func TestExactlyOneRecordPerOperationUnderConcurrency(t *testing.T) {
	store := memory.NewInMemoryStore()
	r, _ := newTestRecorder(t, store, WithQueueSize(500))

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := Request{Method: "PATCH", Path: fmt.Sprintf("/patients/%d", i)}
			_ = r.Do(context.Background(), req, func(context.Context) error {
				if i%3 == 0 {
					return errors.New("conflict")
				}
				return nil
			})
		}(i)
	}
	wg.Wait()
	drain(t, r)

	assert.Equal(t, 100, store.Len())
	_, failures, err := store.List(context.Background(), audit.Filter{Outcome: audit.OutcomeFailure}, audit.Page{Page: 1, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 34, failures)
}

func TestRecordsAfterCloseAreDropped(t *testing.T) {
	store := memory.NewInMemoryStore()
	r, metrics := newTestRecorder(t, store)
	drain(t, r)

	err := r.Do(context.Background(), Request{Method: "POST", Path: "/patients"}, func(context.Context) error { return nil })
	assert.NoError(t, err)
	assert.Equal(t, 0, store.Len())
	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.Dropped.WithLabelValues(dropClosed)))
}

func firstRecord(store *memory.InMemoryStore) (audit.Record, error) {
	records, _, err := store.List(context.Background(), audit.Filter{}, audit.Page{Page: 1, Limit: 1})
	if err != nil {
		return audit.Record{}, err
	}
	if len(records) == 0 {
		return audit.Record{}, errors.New("no records")
	}
	return records[0], nil
}
