package boardlink

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jpalmerr/boardlink/internal/dispatch"
	"github.com/jpalmerr/boardlink/internal/store"
)

// componentJob is the unit of work of one component. It is created once
// and resubmitted for every poll, timed or manual.
//
// GenerateCommand and ProcessResponse are only called by the dispatch
// worker, one ticket at a time, so sentAt needs no lock. The reading is
// read concurrently by the controller and is guarded by mu.
type componentJob struct {
	component Component
	parser    ResponseParser
	store     store.Store
	callbacks []func(Reading)
	logger    *slog.Logger

	sentAt time.Time

	mu      sync.RWMutex
	reading Reading
}

func newComponentJob(c Component, st store.Store, callbacks []func(Reading), logger *slog.Logger) *componentJob {
	parser := c.Parser()
	if parser == nil {
		parser = FloatParser
	}
	return &componentJob{
		component: c,
		parser:    parser,
		store:     st,
		callbacks: callbacks,
		logger:    logger,
	}
}

func (j *componentJob) GenerateCommand() string {
	j.sentAt = time.Now()
	return j.component.Command()
}

// ProcessResponse parses the response and, only if it parses, replaces the
// reading, publishes it and runs the callbacks.
func (j *componentJob) ProcessResponse(response string) error {
	value, err := j.parser(response)
	if err != nil {
		return fmt.Errorf("component %q: %w", j.component.Name(), err)
	}

	now := time.Now()
	j.mu.Lock()
	r := Reading{
		Component: j.component.Name(),
		Command:   j.component.Command(),
		Value:     value,
		Raw:       response,
		Labels:    j.component.Labels(),
		Latency:   now.Sub(j.sentAt),
		UpdatedAt: now,
		Seq:       j.reading.Seq + 1,
	}
	j.reading = r
	j.mu.Unlock()

	j.store.Modify(r.Component, func(rec *store.Record) {
		v := r.Value
		rec.Value = &v
		rec.Raw = r.Raw
		rec.LatencyMs = r.Latency.Milliseconds()
		rec.UpdatedAt = r.UpdatedAt
		rec.Seq = r.Seq
	})

	for _, cb := range j.callbacks {
		invokeCallbackSafe(cb, copyReading(r), j.logger)
	}
	return nil
}

// Reading returns a copy of the latest reading.
func (j *componentJob) Reading() Reading {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return copyReading(j.reading)
}

// rawJob carries a one-off command and keeps the response for the caller.
type rawJob struct {
	command  string
	response string
}

func (j *rawJob) GenerateCommand() string {
	return j.command
}

func (j *rawJob) ProcessResponse(response string) error {
	j.response = response
	return nil
}

// copyReading returns r with its own copy of the labels.
func copyReading(r Reading) Reading {
	r.Labels = copyMap(r.Labels)
	return r
}

// invokeCallbackSafe calls a reading callback with panic recovery.
// Panics are logged but do not propagate.
func invokeCallbackSafe(cb func(Reading), r Reading, logger *slog.Logger) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error("reading callback panicked",
				"panic", p,
				"component", r.Component,
			)
		}
	}()
	cb(r)
}

var _ dispatch.Job = (*componentJob)(nil)
