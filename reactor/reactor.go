/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package reactor implements the shared I/O runtime of spec.md §4.1: a
// single worker pool on which any number of reactors run to completion,
// with centralized register/stop/wait_all bookkeeping.
package reactor

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	libctx "github.com/nabbar/nettransport/context"
	liberr "github.com/nabbar/nettransport/errors"
)

// MinWorkers is the floor spec.md §4.1 sets for the shared pool size:
// max(32, 4·hardware-concurrency).
const MinWorkers = 32

// DefaultWaitAllCeiling bounds wait_all's polling of weak references.
const DefaultWaitAllCeiling = 10 * time.Second

// Reactor is anything whose Run loop can be submitted to the Manager.
// Run must return when ctx is canceled.
type Reactor interface {
	Run(ctx context.Context) error
}

// Metrics is the snapshot returned by Manager.Metrics.
type Metrics struct {
	Active         int64
	TotalStarted   int64
	TotalCompleted int64
}

// entry is the weak-reference-like bookkeeping record kept per registered
// reactor: a cancel func to stop it and a done channel closed on exit.
type entry struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error
	mu     sync.Mutex
}

func (e *entry) setErr(err error) {
	e.mu.Lock()
	e.err = err
	e.mu.Unlock()
}

func (e *entry) getErr() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// Manager owns the shared worker pool sized per spec.md §4.1 and the
// entry table of currently-running reactors.
type Manager struct {
	sem *semaphore.Weighted

	table libctx.Config[string]

	totalStarted   atomic.Int64
	totalCompleted atomic.Int64

	mu   sync.Mutex
	next uint64
}

// New builds a Manager whose worker pool is sized to
// max(MinWorkers, 4*runtime.NumCPU()), or to workers if workers > 0.
func New(ctx context.Context, workers int) *Manager {
	if workers <= 0 {
		workers = 4 * runtime.NumCPU()
		if workers < MinWorkers {
			workers = MinWorkers
		}
	}

	return &Manager{
		sem:   semaphore.NewWeighted(int64(workers)),
		table: libctx.New[string](ctx),
	}
}

// Future is returned by Register; it completes when the reactor's Run
// loop returns, surfacing any error on Wait, matching spec.md §4.1's
// "future that completes when the reactor's run-loop returns". Key
// identifies this registration for a later call to Manager.Stop.
type Future struct {
	Key string
	e   *entry
}

// Wait blocks until the reactor's Run has returned and yields its error.
func (f *Future) Wait() error {
	<-f.e.done
	return f.e.getErr()
}

// Done returns a channel closed when the reactor's Run has returned.
func (f *Future) Done() <-chan struct{} {
	return f.e.done
}

// Register submits r's Run loop as a task on the shared pool under the
// given label, blocking until a worker slot is available (the pool acts
// as the global backpressure point spec.md §4.1 centralizes), and returns
// a completion future.
func (m *Manager) Register(ctx context.Context, label string, r Reactor) (*Future, error) {
	if r == nil {
		return nil, liberr.New(uint16(ErrorParamsEmpty), getMessage(ErrorParamsEmpty))
	}

	if err := m.sem.Acquire(ctx, 1); err != nil {
		return nil, liberr.New(uint16(ErrorPoolSaturated), getMessage(ErrorPoolSaturated), err)
	}

	rctx, cancel := context.WithCancel(ctx)
	e := &entry{cancel: cancel, done: make(chan struct{})}

	key := m.keyFor(label)
	m.table.Store(key, e)
	m.totalStarted.Add(1)

	go func() {
		defer m.sem.Release(1)
		defer close(e.done)
		defer m.totalCompleted.Add(1)

		e.setErr(r.Run(rctx))
	}()

	return &Future{Key: key, e: e}, nil
}

func (m *Manager) keyFor(label string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	if label == "" {
		label = "reactor"
	}
	return fmt.Sprintf("%s#%d", label, m.next)
}

// Stop cancels the registered reactor found at key (Future.Key),
// signaling it to exit its run loop. It is a no-op if the key is unknown.
func (m *Manager) Stop(key string) {
	if v, ok := m.table.Load(key); ok {
		if e, ok := v.(*entry); ok {
			e.cancel()
		}
	}
}

// StopAll signals every currently-registered reactor to exit.
func (m *Manager) StopAll() {
	m.table.Walk(func(_ string, val interface{}) bool {
		if e, ok := val.(*entry); ok {
			e.cancel()
		}
		return true
	})
}

// WaitAll polls every registered reactor's completion up to
// DefaultWaitAllCeiling, then performs a short final drain poll and
// clears the table — mirroring spec.md §4.1's
// "wait_all polls weak references with a 10s ceiling, then clears the
// table. A short final poll() on each reactor drains pending handlers".
func (m *Manager) WaitAll() {
	deadline := time.Now().Add(DefaultWaitAllCeiling)

	var pending []*entry
	m.table.Walk(func(_ string, val interface{}) bool {
		if e, ok := val.(*entry); ok {
			pending = append(pending, e)
		}
		return true
	})

	for _, e := range pending {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		select {
		case <-e.done:
		case <-time.After(remaining):
		}
	}

	// Final short poll: give any already-signaled-done reactor's deferred
	// cleanup goroutines a moment to finish before the table is cleared.
	time.Sleep(time.Millisecond)

	m.table.Clean()
}

// Metrics returns the active/total-started/total-completed snapshot of
// spec.md §4.1's metrics() operation.
func (m *Manager) Metrics() Metrics {
	started := m.totalStarted.Load()
	completed := m.totalCompleted.Load()
	return Metrics{
		Active:         started - completed,
		TotalStarted:   started,
		TotalCompleted: completed,
	}
}
