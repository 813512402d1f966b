package singleton

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/chenyanchen/singleton/dom"
)

// Runtime owns the dependency registry and the admission queues.
// It provides:
// 1) an instance factory that enqueues instances as pending or active
// 2) per-instance dependency loading into a Document
// 3) fan-out of one-shot hooks and admission of pending instances
type Runtime struct {
	ctx        context.Context
	doc        Document
	fetcher    Fetcher
	logger     *zap.Logger
	registerer prometheus.Registerer
	metrics    *metrics
	now        func() time.Time
	admission  Admission

	mu        sync.Mutex
	ready     bool
	reg       registry
	pending   []*Instance
	active    []*Instance
	instances []*Instance
	roots     map[string]*Instance

	sf singleflight.Group
}

func New(opts ...Option) *Runtime {
	r := &Runtime{
		ctx:       context.Background(),
		logger:    zap.NewNop(),
		now:       time.Now,
		admission: DefaultAdmission,
		reg:       newRegistry(),
		roots:     make(map[string]*Instance),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.doc == nil {
		r.doc = dom.New()
	}
	if r.fetcher == nil {
		r.fetcher = HTTPFetcher{Client: http.DefaultClient}
	}
	r.metrics = newMetrics(r.registerer)
	return r
}

// Document returns the document elements are injected into.
func (r *Runtime) Document() Document {
	return r.doc
}

// Singleton builds an anonymous instance: it runs init against a new
// instance, then enqueues it. When the runtime is ready the instance joins the
// pending queue, the coordinator runs, and OnReady fires synchronously.
// Otherwise it joins the active queue and OnReady waits for Ready.
func (r *Runtime) Singleton(init func(*Instance)) *Instance {
	return r.build(nil, "", init)
}

// Define builds a named root instance that Lookup can find later.
// Defining a name again replaces the earlier root.
func (r *Runtime) Define(name string, init func(*Instance)) (*Instance, error) {
	if name == "" {
		return nil, EmptyNameError{}
	}
	return r.build(nil, name, init), nil
}

// MustDefine panics on error; intended for bootstrap code paths.
func (r *Runtime) MustDefine(name string, init func(*Instance)) *Instance {
	inst, err := r.Define(name, init)
	if err != nil {
		panic(err)
	}
	return inst
}

// Lookup returns the root instance defined under name.
func (r *Runtime) Lookup(name string) (*Instance, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.roots[name]
	return inst, ok
}

// Resolve walks a dotted path such as "World.Cars" from a defined root.
func (r *Runtime) Resolve(path string) (*Instance, bool) {
	parts := strings.Split(path, ".")
	cur, ok := r.Lookup(parts[0])
	if !ok {
		return nil, false
	}
	for _, part := range parts[1:] {
		if cur, ok = cur.Child(part); !ok {
			return nil, false
		}
	}
	return cur, true
}

func (r *Runtime) build(parent *Instance, name string, init func(*Instance)) *Instance {
	inst := newInstance(r, parent, name)
	if init != nil {
		init(inst)
	}
	if parent != nil {
		parent.Set(name, inst)
	}

	log := r.logger.With(zap.String("instance", inst.label()))

	r.mu.Lock()
	r.instances = append(r.instances, inst)
	if parent == nil && name != "" {
		r.roots[name] = inst
	}
	if !r.ready {
		r.active = append(r.active, inst)
		r.mu.Unlock()
		log.Debug("instance queued until ready")
		return inst
	}
	r.pending = append(r.pending, inst)
	r.metrics.pending.Inc()
	r.mu.Unlock()

	log.Debug("instance pending")
	r.fanOut()
	inst.fireReady()
	return inst
}

// Ready marks the document ready. Loaders of instances queued before ready
// start at once, then their OnReady hooks fire, then the coordinator runs.
// Later calls do nothing.
func (r *Runtime) Ready() {
	r.mu.Lock()
	if r.ready {
		r.mu.Unlock()
		return
	}
	r.ready = true
	started := append([]*Instance(nil), r.active...)
	var effects []func()
	for _, inst := range started {
		effects = append(effects, r.startLocked(inst)...)
	}
	r.mu.Unlock()

	r.logger.Debug("runtime ready", zap.Int("instances", len(started)))
	for _, fn := range effects {
		fn()
	}
	for _, inst := range started {
		inst.fireReady()
	}
	r.fanOut()
}

func (r *Runtime) IsReady() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ready
}

// Provide marks script names as present. Loaders that start afterwards treat
// them as loaded without fetching.
func (r *Runtime) Provide(names ...string) {
	r.mu.Lock()
	for _, name := range names {
		r.reg.provided[name] = true
	}
	r.mu.Unlock()
}

// Snapshot returns a copy of the dependency registry.
func (r *Runtime) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reg.snapshot()
}

// Pending returns the instances awaiting admission, oldest first.
func (r *Runtime) Pending() []*Instance {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Instance(nil), r.pending...)
}

// Active returns the admitted instances in admission order.
func (r *Runtime) Active() []*Instance {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Instance(nil), r.active...)
}

// Instances returns every instance in creation order.
func (r *Runtime) Instances() []*Instance {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Instance(nil), r.instances...)
}

// Wait blocks until every instance created so far has settled, and returns
// the failures joined. Instances still pending or idle keep it waiting.
func (r *Runtime) Wait(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var errs []error
	for _, inst := range r.Instances() {
		if err := inst.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Runtime) isLoaded(inst *Instance) bool {
	d := inst.descriptor()
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reg.scriptsLoaded(d)
}

// fanOut is the coordinator. Each round fires the hooks of newly settled
// active instances and admits at most one pending instance; rounds repeat
// until nothing is admitted.
func (r *Runtime) fanOut() {
	for {
		r.mu.Lock()
		var settledNow []*Instance
		for _, inst := range r.active {
			if r.settleLocked(inst) {
				settledNow = append(settledNow, inst)
			}
		}
		admitted, effects := r.admitLocked()
		r.mu.Unlock()

		for _, inst := range settledNow {
			inst.finish(inst.err)
		}
		for _, fn := range effects {
			fn()
		}
		if admitted == nil {
			return
		}
	}
}

// settleLocked moves a running instance to loaded or failed.
func (r *Runtime) settleLocked(inst *Instance) bool {
	if inst.status != StatusRunning {
		return false
	}
	d := inst.descriptor()
	if err := r.reg.scriptFailure(d); err != nil {
		inst.status = StatusFailed
		inst.err = err
		r.logger.Warn("instance dependencies failed", zap.String("instance", inst.label()), zap.Error(err))
		return true
	}
	if !r.reg.scriptsLoaded(d) {
		return false
	}
	inst.status = StatusLoaded
	r.logger.Debug("instance dependencies loaded", zap.String("instance", inst.label()))
	return true
}

func (r *Runtime) admitLocked() (*Instance, []func()) {
	if !r.ready || len(r.pending) == 0 {
		return nil, nil
	}
	if limit := r.admission.MaxUnsettled; limit > 0 && r.unsettledLocked() >= limit {
		return nil, nil
	}
	inst := r.pending[0]
	r.pending[0] = nil
	r.pending = r.pending[1:]
	r.active = append(r.active, inst)
	r.metrics.pending.Dec()
	r.metrics.admitted.Inc()
	r.logger.Debug("instance admitted", zap.String("instance", inst.label()))
	return inst, r.startLocked(inst)
}

func (r *Runtime) unsettledLocked() int {
	n := 0
	for _, inst := range r.active {
		if !inst.status.settled() {
			n++
		}
	}
	return n
}
