package core

// bulk.go runs per-record suboperations of a bulk request in parallel and
// collects one outcome per record. Nothing fails fast: a task records its
// own error and returns nil to the group, so one bad id never cancels or
// hides the others.

import (
	"context"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// DefaultBulkConcurrency is used when no limit is configured.
const DefaultBulkConcurrency = 8

// Outcome is the result of one item of a bulk operation.
type Outcome[T any] struct {
	Index int // position in the request
	ID    uuid.UUID
	Value T
	Err   error
}

// OK reports whether the item succeeded.
func (o Outcome[T]) OK() bool { return o.Err == nil }

// BulkResult holds per-item outcomes in request order.
type BulkResult[T any] struct {
	Outcomes []Outcome[T]
}

// Succeeded returns the number of successful items.
func (r BulkResult[T]) Succeeded() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Err == nil {
			n++
		}
	}
	return n
}

// Failed returns the number of failed items.
func (r BulkResult[T]) Failed() int {
	return len(r.Outcomes) - r.Succeeded()
}

// Values returns the values of successful items.
func (r BulkResult[T]) Values() []T {
	out := make([]T, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		if o.Err == nil {
			out = append(out, o.Value)
		}
	}
	return out
}

// Failures returns the failed outcomes.
func (r BulkResult[T]) Failures() []Outcome[T] {
	var out []Outcome[T]
	for _, o := range r.Outcomes {
		if o.Err != nil {
			out = append(out, o)
		}
	}
	return out
}

// SucceededIDs returns the ids of successful items.
func (r BulkResult[T]) SucceededIDs() []uuid.UUID {
	var ids []uuid.UUID
	for _, o := range r.Outcomes {
		if o.Err == nil {
			ids = append(ids, o.ID)
		}
	}
	return ids
}

// RunBulk calls fn for every item with at most limit calls in flight and
// returns their outcomes in input order. id labels each outcome and may be
// nil. Items not yet started when ctx is done fail with ctx.Err().
func RunBulk[In, Out any](
	ctx context.Context,
	limit int,
	items []In,
	id func(In) uuid.UUID,
	fn func(context.Context, In) (Out, error),
) BulkResult[Out] {
	outcomes := make([]Outcome[Out], len(items))
	if limit <= 0 {
		limit = DefaultBulkConcurrency
	}

	var g errgroup.Group
	g.SetLimit(limit)

	for i, item := range items {
		i, item := i, item
		outcomes[i].Index = i
		if id != nil {
			outcomes[i].ID = id(item)
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				outcomes[i].Err = err
				return nil
			}
			v, err := fn(ctx, item)
			outcomes[i].Value = v
			outcomes[i].Err = err
			return nil
		})
	}
	_ = g.Wait()

	return BulkResult[Out]{Outcomes: outcomes}
}

// dedupeIDs drops repeated ids, keeping first occurrences in order.
func dedupeIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func identity(id uuid.UUID) uuid.UUID { return id }
