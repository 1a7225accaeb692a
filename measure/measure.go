// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package measure provides the opaque measurement sink spec.md §6
// describes: the core emits tagged (phase, key, value) events and
// the sink decides what to do with them. No metrics framework is
// introduced — the teacher's own stack has none, and per spec.md §5
// "Global measurement singleton" the sink is threaded through as a
// context value, not a process-wide singleton.
package measure

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

// Event is one tagged measurement.
type Event struct {
	Phase string
	Key   string
	Value float64
}

// Sink receives events. Implementations may discard, aggregate, or
// print them; the core never inspects a Sink's internal state.
type Sink interface {
	Record(e Event)
}

type sinkKey struct{}

// WithSink returns a context carrying sink, retrievable by From.
func WithSink(ctx context.Context, sink Sink) context.Context {
	return context.WithValue(ctx, sinkKey{}, sink)
}

// From returns the Sink attached to ctx, or a Discard sink if none
// was attached.
func From(ctx context.Context) Sink {
	if s, ok := ctx.Value(sinkKey{}).(Sink); ok {
		return s
	}
	return Discard{}
}

// Discard drops every event; the default when no sink is configured.
type Discard struct{}

func (Discard) Record(Event) {}

// Counting aggregates events by (phase, key): a running sum, count,
// and min/max, safe for concurrent Record calls from multiple ranks'
// goroutines in the in-process communicator backend.
type Counting struct {
	mu   sync.Mutex
	aggs map[[2]string]*aggregate
}

type aggregate struct {
	sum, min, max float64
	count         int64
}

// NewCounting builds an empty Counting sink.
func NewCounting() *Counting {
	return &Counting{aggs: make(map[[2]string]*aggregate)}
}

func (c *Counting) Record(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := [2]string{e.Phase, e.Key}
	a, ok := c.aggs[k]
	if !ok {
		a = &aggregate{min: e.Value, max: e.Value}
		c.aggs[k] = a
	}
	a.sum += e.Value
	a.count++
	if e.Value < a.min {
		a.min = e.Value
	}
	if e.Value > a.max {
		a.max = e.Value
	}
}

// Summary is one (phase, key) aggregate's snapshot.
type Summary struct {
	Phase, Key     string
	Count          int64
	Sum, Min, Max  float64
}

// Summaries returns every aggregate recorded so far, sorted by
// (phase, key) for deterministic output.
func (c *Counting) Summaries() []Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Summary, 0, len(c.aggs))
	for k, a := range c.aggs {
		out = append(out, Summary{Phase: k[0], Key: k[1], Count: a.count, Sum: a.sum, Min: a.min, Max: a.max})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Phase != out[j].Phase {
			return out[i].Phase < out[j].Phase
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// WriteSummary writes a human-readable summary table, the form the
// CLI's -t flag prints to stderr.
func (c *Counting) WriteSummary(w io.Writer) {
	for _, s := range c.Summaries() {
		avg := 0.0
		if s.Count > 0 {
			avg = s.Sum / float64(s.Count)
		}
		fmt.Fprintf(w, "%-16s %-24s n=%-8d sum=%-12.3f avg=%-12.3f min=%-12.3f max=%-12.3f\n",
			s.Phase, s.Key, s.Count, s.Sum, avg, s.Min, s.Max)
	}
}

// Timer records the elapsed time of one phase/key as a single Event
// in seconds when Stop is called.
type Timer struct {
	sink  Sink
	phase string
	key   string
	start time.Time
}

// StartTimer begins timing phase/key against sink.
func StartTimer(sink Sink, phase, key string) *Timer {
	return &Timer{sink: sink, phase: phase, key: key, start: time.Now()}
}

// Stop records the elapsed duration in seconds.
func (t *Timer) Stop() {
	t.sink.Record(Event{Phase: t.phase, Key: t.key, Value: time.Since(t.start).Seconds()})
}
