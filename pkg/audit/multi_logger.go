package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/platinummonkey/tenantgate/pkg/observability"
	"golang.org/x/sync/semaphore"
)

const (
	// maxInFlight bounds asynchronous writes; past it Log writes inline
	maxInFlight = 256

	maxRetainedErrors = 64
)

// MultiLogger fans each event out to several sinks. In async mode the
// request does not wait for the sinks, but no event is dropped: when too
// many writes are pending the caller writes inline instead.
type MultiLogger struct {
	loggers  []Logger
	async    bool
	inFlight *semaphore.Weighted
	wg       sync.WaitGroup

	mu   sync.Mutex
	errs []error
}

// NewMultiLogger creates a synchronous multi-logger
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{
		loggers:  loggers,
		inFlight: semaphore.NewWeighted(maxInFlight),
	}
}

// SetAsync sets whether Log returns before the sinks have written
func (m *MultiLogger) SetAsync(async bool) {
	m.async = async
}

// Log writes event to every sink. In sync mode a failing sink does not stop
// the others and all failures are returned joined.
func (m *MultiLogger) Log(ctx context.Context, event *AuditEvent) error {
	if len(m.loggers) == 0 {
		return nil
	}
	if !m.async {
		return m.write(ctx, event)
	}

	// Events outlive the request
	ctx = context.WithoutCancel(ctx)
	if !m.inFlight.TryAcquire(1) {
		m.record(ctx, m.write(ctx, event))
		return nil
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.inFlight.Release(1)
		defer observability.RecoverPanic(observability.FromContext(ctx), "audit write")
		m.record(ctx, m.write(ctx, event))
	}()
	return nil
}

func (m *MultiLogger) write(ctx context.Context, event *AuditEvent) error {
	var errs []error
	for _, logger := range m.loggers {
		if err := logger.Log(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiLogger) record(ctx context.Context, err error) {
	if err == nil {
		return
	}
	observability.FromContext(ctx).WithError(err).Warn("Asynchronous audit write failed")

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.errs) < maxRetainedErrors {
		m.errs = append(m.errs, err)
	}
}

// Wait blocks until pending asynchronous writes finish
func (m *MultiLogger) Wait() {
	m.wg.Wait()
}

// GetErrors returns and clears the failures of asynchronous writes
func (m *MultiLogger) GetErrors() []error {
	m.mu.Lock()
	defer m.mu.Unlock()
	errs := m.errs
	m.errs = nil
	return errs
}

// Close waits for pending writes, then closes every sink
func (m *MultiLogger) Close() error {
	m.wg.Wait()

	var errs []error
	for _, logger := range m.loggers {
		if err := logger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close audit logger: %w", err))
		}
	}
	return errors.Join(errs...)
}
