package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	op      string
	success bool
}

type fakeRecorder struct {
	calls []recorded
}

func (f *fakeRecorder) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	f.calls = append(f.calls, recorded{op, success})
}

func TestTrack(t *testing.T) {
	rec := &fakeRecorder{}
	ctx := context.Background()

	Track(ctx, rec, "write")(nil)
	Track(ctx, rec, "write")(errors.New("boom"))

	assert.Equal(t, []recorded{{"write", true}, {"write", false}}, rec.calls)
}

func TestPrometheus_Observe(t *testing.T) {
	p := NewPrometheus()
	ctx := context.Background()

	p.Observe(ctx, "get_entity", true, 10*time.Millisecond)
	p.Observe(ctx, "get_entity", true, 20*time.Millisecond)
	p.Observe(ctx, "get_entity", false, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(p.total.WithLabelValues("get_entity", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.total.WithLabelValues("get_entity", OutcomeError)))
	assert.Equal(t, 1, testutil.CollectAndCount(p.duration))
}

func TestPrometheus_Handler(t *testing.T) {
	p := NewPrometheus()
	p.Observe(context.Background(), "create_edges", true, time.Millisecond)

	rr := httptest.NewRecorder()
	p.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.True(t, strings.Contains(body, `lattice_operations_total{op="create_edges",outcome="success"} 1`))
	assert.True(t, strings.Contains(body, "lattice_operation_duration_seconds_bucket"))
}

func TestNoop(t *testing.T) {
	var r Recorder = Noop{}
	r.Observe(context.Background(), "x", true, time.Second)
}
