package singleton

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := newGatedFetcher("/fail.js")
	rt := newTestRuntime(t, f, WithReady(), WithMetrics(reg))

	failing := rt.Singleton(func(s *Instance) {
		s.Declare(Descriptor{
			Stylesheets: map[string]string{"a": "/a.css"},
			Javascripts: map[string]string{"Fail": "/fail.js"},
		})
	})
	rt.Singleton(func(s *Instance) {
		s.Declare(Descriptor{Javascripts: map[string]string{"Ok": "/ok.js"}})
	})
	assert.Equal(t, float64(1), testutil.ToFloat64(rt.metrics.pending))

	f.release("/fail.js", errors.New("boom"))
	require.Error(t, waitSettled(t, failing))
	err := rt.Wait(testContext(t))
	require.Error(t, err)

	assert.Equal(t, float64(2), testutil.ToFloat64(rt.metrics.admitted))
	assert.Equal(t, float64(0), testutil.ToFloat64(rt.metrics.pending))
	assert.Equal(t, float64(1), testutil.ToFloat64(rt.metrics.stylesheets))
	assert.Equal(t, float64(1), testutil.ToFloat64(rt.metrics.fetches.WithLabelValues(resultSuccess)))
	assert.Equal(t, float64(1), testutil.ToFloat64(rt.metrics.fetches.WithLabelValues(resultFailure)))

	// A second runtime on the same registerer shares the collectors.
	other := newTestRuntime(t, newGatedFetcher(), WithReady(), WithMetrics(reg))
	other.Singleton(nil)
	assert.Equal(t, float64(3), testutil.ToFloat64(rt.metrics.admitted))

	count, err := testutil.GatherAndCount(reg, "singleton_admitted_instances_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMetricsPendingSumsRuntimes(t *testing.T) {
	reg := prometheus.NewRegistry()
	fa := newGatedFetcher("/a.js")
	fb := newGatedFetcher("/b.js")
	a := newTestRuntime(t, fa, WithReady(), WithMetrics(reg))
	b := newTestRuntime(t, fb, WithReady(), WithMetrics(reg))

	blocker := func(name, url string) func(*Instance) {
		return func(s *Instance) {
			s.Declare(Descriptor{Javascripts: map[string]string{name: url}})
		}
	}

	a.Singleton(blocker("A", "/a.js"))
	a.Singleton(nil)
	a.Singleton(nil)
	require.Len(t, a.Pending(), 2)
	assert.Equal(t, float64(2), testutil.ToFloat64(a.metrics.pending))

	// Admitted at once, so the shared depth is unchanged.
	b.Singleton(nil)
	assert.Equal(t, float64(2), testutil.ToFloat64(a.metrics.pending))

	b.Singleton(blocker("B", "/b.js"))
	b.Singleton(nil)
	require.Len(t, b.Pending(), 1)
	assert.Equal(t, float64(3), testutil.ToFloat64(b.metrics.pending))

	fa.release("/a.js", nil)
	require.NoError(t, a.Wait(testContext(t)))
	assert.Equal(t, float64(1), testutil.ToFloat64(a.metrics.pending))

	fb.release("/b.js", nil)
	require.NoError(t, b.Wait(testContext(t)))
	assert.Equal(t, float64(0), testutil.ToFloat64(b.metrics.pending))
}
