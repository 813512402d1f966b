package singleton

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var fixedNow = time.UnixMilli(1700000000000)

// gatedFetcher serves every URL immediately unless a gate was opened for it;
// gated URLs block until release or ctx is done.
type gatedFetcher struct {
	mu    sync.Mutex
	calls []string
	gates map[string]chan error
}

func newGatedFetcher(gated ...string) *gatedFetcher {
	f := &gatedFetcher{gates: make(map[string]chan error, len(gated))}
	for _, u := range gated {
		f.gates[u] = make(chan error, 1)
	}
	return f
}

func (f *gatedFetcher) Fetch(ctx context.Context, target string) ([]byte, error) {
	base := strings.SplitN(target, "?", 2)[0]
	f.mu.Lock()
	f.calls = append(f.calls, target)
	gate := f.gates[base]
	f.mu.Unlock()

	if gate != nil {
		select {
		case err := <-gate:
			if err != nil {
				return nil, err
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return []byte("// " + base), nil
}

func (f *gatedFetcher) release(url string, err error) {
	f.gates[url] <- err
}

func (f *gatedFetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *gatedFetcher) calledBase(url string) bool {
	for _, c := range f.Calls() {
		if strings.SplitN(c, "?", 2)[0] == url {
			return true
		}
	}
	return false
}

func newTestRuntime(t *testing.T, f Fetcher, opts ...Option) *Runtime {
	t.Helper()
	base := []Option{
		WithFetcher(f),
		WithContext(testContext(t)),
		WithClock(func() time.Time { return fixedNow }),
	}
	return New(append(base, opts...)...)
}

func scriptLoaded(rt *Runtime, name string) func() bool {
	return func() bool {
		return rt.Snapshot().Javascripts[name]
	}
}

func waitSettled(t *testing.T, inst *Instance) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := inst.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded, "instance %s did not settle", inst.label())
	return err
}

func contains(list []*Instance, inst *Instance) bool {
	for _, v := range list {
		if v == inst {
			return true
		}
	}
	return false
}

// testContext stands in for testing.T.Context (Go 1.24+): it returns a
// context that is canceled when the test finishes.
func testContext(t testing.TB) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
