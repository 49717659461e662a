package store

import (
	"context"
	"database/sql"
	"iter"
	"log/slog"
)

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// ScanFunc decodes the current row. A non-nil error marks only that row as
// bad: it is logged and skipped.
type ScanFunc[T any] func(*sql.Rows) (T, error)

// Stream returns a lazy sequence over query.
//
// Each range over the sequence runs the query afresh and pulls rows from a
// live cursor one at a time, so the sequence can be restarted but any
// single pass is single-use. The cursor is closed on every exit path:
// normal completion, an early break in the consumer, or an error. Callers
// that need explicit control can use iter.Pull2 and call its stop
// function.
//
// Query and iteration failures are yielded as errors and end the pass.
// Rows that fail to scan are logged and skipped, so one bad row never fails
// a bulk read.
func Stream[T any](ctx context.Context, q Querier, logger *slog.Logger, query string, args []any, scan ScanFunc[T]) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		rows, err := q.QueryContext(ctx, query, args...)
		if err != nil {
			yield(zero, err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			v, err := scan(rows)
			if err != nil {
				logger.Warn("skipping undecodable row", "error", err)
				continue
			}
			if !yield(v, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(zero, err)
		}
	}
}

// Concat chains sequences, stopping at the first error or early break.
func Concat[T any](seqs ...iter.Seq2[T, error]) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for _, seq := range seqs {
			for v, err := range seq {
				if !yield(v, err) {
					return
				}
				if err != nil {
					return
				}
			}
		}
	}
}

// Collect drains a sequence into a slice, returning the first error.
// Returns an empty slice, not nil, when the sequence is empty.
func Collect[T any](seq iter.Seq2[T, error]) ([]T, error) {
	out := []T{}
	for v, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Empty is a sequence that yields nothing.
func Empty[T any]() iter.Seq2[T, error] {
	return func(func(T, error) bool) {}
}

// Chunk splits items into consecutive slices of at most size elements.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = len(items)
	}
	var chunks [][]T
	for len(items) > 0 {
		n := min(size, len(items))
		chunks = append(chunks, items[:n:n])
		items = items[n:]
	}
	return chunks
}
