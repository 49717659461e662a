package querysql

import (
	"fmt"
	"strings"
	"time"
)

// Builder accumulates SQL text and its bind parameters.
type Builder struct {
	d    Dialect
	sb   strings.Builder
	args []any
}

// NewBuilder creates a builder for d.
func NewBuilder(d Dialect) *Builder {
	return &Builder{d: d}
}

// Dialect returns the builder's dialect.
func (b *Builder) Dialect() Dialect {
	return b.d
}

// Arg binds v and returns its placeholder.
func (b *Builder) Arg(v any) string {
	b.args = append(b.args, v)
	return b.d.Placeholder(len(b.args))
}

// List binds every value and returns a parenthesized placeholder list.
// An empty list renders as (NULL), which matches nothing.
func List[T any](b *Builder, vs []T) string {
	if len(vs) == 0 {
		return "(NULL)"
	}
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = b.Arg(v)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// Time binds a system timestamp.
func (b *Builder) Time(t time.Time) string {
	return b.Arg(b.d.TimeArg(t))
}

// Write appends formatted SQL text.
func (b *Builder) Write(format string, a ...any) *Builder {
	if len(a) == 0 {
		b.sb.WriteString(format)
	} else {
		fmt.Fprintf(&b.sb, format, a...)
	}
	return b
}

// SQL returns the accumulated statement.
func (b *Builder) SQL() string {
	return b.sb.String()
}

// Args returns the bound parameters in placeholder order.
func (b *Builder) Args() []any {
	return b.args
}
