/*
 * Copyright 2025 SREDiag Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package watch

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	queuepkg "github.com/Workiva/go-datastructures/queue"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/panjf2000/ants/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/srediag/shm-watch/internal/logging"
)

// Source is the poll surface a Poller needs from a watcher. Watcher[T]
// implements it for any T.
type Source interface {
	HasChanged() (bool, error)
}

const (
	defaultPollInterval = 10 * time.Millisecond
	pendingQueueHint    = 64
)

// PollerConfig configures a Poller. Zero values pick defaults.
type PollerConfig struct {
	// Interval between poll sweeps. Defaults to 10ms.
	Interval time.Duration
	// Workers sizes the dispatch pool. Defaults to the CPU count.
	Workers int
	// OnGone is called once when a source reports the publisher closed;
	// the source is dropped from the poller. May be nil.
	OnGone func(name string)
	// Meter and Tracer instrument dispatches. Noop when nil.
	Meter  metric.Meter
	Tracer trace.Tracer
}

// Poller polls registered change sources at a fixed interval and runs
// their callbacks on a worker pool. It exists for processes observing
// many regions; a single watcher is simpler to poll inline.
type Poller struct {
	entries    cmap.ConcurrentMap[string, *pollEntry]
	pending    *queuepkg.Queue
	pool       *ants.Pool
	interval   time.Duration
	onGone     func(string)
	tracer     trace.Tracer
	dispatches metric.Int64Counter
	stop       chan struct{}
	done       chan struct{}
}

type pollEntry struct {
	name     string
	src      Source
	onChange func()
}

// NewPoller starts a poller. Stop releases its goroutines and pool.
func NewPoller(cfg PollerConfig) (*Poller, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultPollInterval
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Meter == nil {
		cfg.Meter = metricnoop.NewMeterProvider().Meter("shmwatch")
	}
	if cfg.Tracer == nil {
		cfg.Tracer = tracenoop.NewTracerProvider().Tracer("shmwatch")
	}

	pool, err := ants.NewPool(cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("dispatch pool: %w", err)
	}
	dispatches, err := cfg.Meter.Int64Counter("shmwatch.poller.dispatches")
	if err != nil {
		pool.Release()
		return nil, err
	}

	p := &Poller{
		entries:    cmap.New[*pollEntry](),
		pending:    queuepkg.New(pendingQueueHint),
		pool:       pool,
		interval:   cfg.Interval,
		onGone:     cfg.OnGone,
		tracer:     cfg.Tracer,
		dispatches: dispatches,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	go p.pollLoop()
	go p.dispatchLoop()
	return p, nil
}

// Watch registers src under name; onChange runs on the worker pool every
// time src reports a change. Re-registering a name replaces the entry.
func (p *Poller) Watch(name string, src Source, onChange func()) {
	p.entries.Set(name, &pollEntry{name: name, src: src, onChange: onChange})
}

// Forget drops a registered source.
func (p *Poller) Forget(name string) {
	p.entries.Remove(name)
}

// Stop shuts the poller down. Registered sources are not closed; pending
// dispatches are dropped.
func (p *Poller) Stop() {
	close(p.stop)
	<-p.done
	p.pending.Dispose()
	p.pool.Release()
}

func (p *Poller) pollLoop() {
	defer close(p.done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
		}
		for item := range p.entries.IterBuffered() {
			e := item.Val
			changed, err := e.src.HasChanged()
			if err != nil {
				if errors.Is(err, ErrWatchedGone) {
					p.entries.Remove(e.name)
					logging.Infof("source %s is gone, dropping", e.name)
					if p.onGone != nil {
						p.onGone(e.name)
					}
					continue
				}
				logging.Errorf("poll %s: %v", e.name, err)
				continue
			}
			if changed {
				if err := p.pending.Put(e); err != nil {
					return
				}
			}
		}
	}
}

func (p *Poller) dispatchLoop() {
	for {
		items, err := p.pending.Get(1)
		if err != nil {
			return
		}
		for _, item := range items {
			e := item.(*pollEntry)
			if err := p.pool.Submit(func() {
				ctx, span := p.tracer.Start(context.Background(), "shmwatch.dispatch")
				e.onChange()
				p.dispatches.Add(ctx, 1, metric.WithAttributes(attribute.String("source", e.name)))
				span.End()
			}); err != nil {
				logging.Warnf("dispatch %s: %v", e.name, err)
			}
		}
	}
}
