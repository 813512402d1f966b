package singleton

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Instance is one singleton namespace object.
//
// Properties, methods and child namespaces share one member table; a later
// write under the same name shadows the earlier member.
type Instance struct {
	rt     *Runtime
	id     uuid.UUID
	name   string
	parent *Instance

	mu         sync.RWMutex
	deps       *Descriptor
	members    map[string]any
	onReady    func(*Instance)
	onLoaded   func(*Instance)
	onFailed   func(*Instance, error)
	readyFired bool
	done       bool
	doneErr    error

	// status and err are guarded by rt.mu.
	status Status
	err    error

	settled *Future
}

func newInstance(rt *Runtime, parent *Instance, name string) *Instance {
	return &Instance{
		rt:      rt,
		id:      uuid.New(),
		name:    name,
		parent:  parent,
		members: make(map[string]any),
		settled: newFuture(),
	}
}

func (i *Instance) ID() uuid.UUID {
	return i.id
}

// Name is the namespace name, or the name given to Runtime.Define. Anonymous singletons have none.
func (i *Instance) Name() string {
	return i.name
}

// Parent returns the instance this namespace was created on, or nil for a root singleton.
func (i *Instance) Parent() *Instance {
	return i.parent
}

func (i *Instance) Runtime() *Runtime {
	return i.rt
}

// Path joins the names from the root down to i with dots, for example "World.Cars".
func (i *Instance) Path() string {
	var parts []string
	for cur := i; cur != nil; cur = cur.parent {
		if cur.name != "" {
			parts = append(parts, cur.name)
		}
	}
	for l, r := 0, len(parts)-1; l < r; l, r = l+1, r-1 {
		parts[l], parts[r] = parts[r], parts[l]
	}
	return strings.Join(parts, ".")
}

func (i *Instance) label() string {
	if p := i.Path(); p != "" {
		return p
	}
	return i.id.String()
}

// Declare records the dependency descriptor. The loader reads it when the
// instance is admitted, so it is normally called from the initializer.
// Once the loader has started the descriptor is fixed: later calls are
// dropped with a warning.
func (i *Instance) Declare(d Descriptor) {
	cloned := d.clone()

	i.rt.mu.Lock()
	defer i.rt.mu.Unlock()
	if i.status != StatusIdle {
		i.rt.logger.Warn("declare after loader started is ignored",
			zap.String("instance", i.label()),
			zap.Stringer("status", i.status),
		)
		return
	}
	i.mu.Lock()
	i.deps = &cloned
	i.mu.Unlock()
}

// Dependencies returns the declared descriptor and whether one was declared.
func (i *Instance) Dependencies() (Descriptor, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.deps == nil {
		return Descriptor{}, false
	}
	return i.deps.clone(), true
}

func (i *Instance) descriptor() Descriptor {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.deps == nil {
		return Descriptor{}
	}
	return *i.deps
}

// Namespace builds a child instance through the same factory and stores it
// under name. The child's parent is set before init runs.
func (i *Instance) Namespace(name string, init func(*Instance)) (*Instance, error) {
	if name == "" {
		return nil, EmptyNameError{Parent: i.label()}
	}
	return i.rt.build(i, name, init), nil
}

// MustNamespace panics on error; intended for initializer code paths.
func (i *Instance) MustNamespace(name string, init func(*Instance)) *Instance {
	child, err := i.Namespace(name, init)
	if err != nil {
		panic(err)
	}
	return child
}

// Methods copies methods into the member table, shadowing existing members.
func (i *Instance) Methods(methods map[string]Method) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for name, m := range methods {
		i.members[name] = m
	}
}

// Call invokes the method stored under name with i as receiver.
func (i *Instance) Call(name string, args ...any) (any, error) {
	i.mu.RLock()
	member, ok := i.members[name]
	i.mu.RUnlock()
	if !ok {
		return nil, MethodNotFoundError{Path: i.label(), Name: name}
	}
	m, ok := member.(Method)
	if !ok {
		return nil, NotAMethodError{Path: i.label(), Name: name, Actual: fmt.Sprintf("%T", member)}
	}
	return m(i, args...)
}

// Use applies m with self as receiver.
func Use(self *Instance, m Method, args ...any) (any, error) {
	return m(self, args...)
}

// Set stores a member, shadowing any existing member of the same name.
func (i *Instance) Set(name string, value any) {
	i.mu.Lock()
	i.members[name] = value
	i.mu.Unlock()
}

func (i *Instance) Get(name string) (any, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	v, ok := i.members[name]
	return v, ok
}

// Child returns the namespace stored under name.
func (i *Instance) Child(name string) (*Instance, bool) {
	v, ok := i.Get(name)
	if !ok {
		return nil, false
	}
	child, ok := v.(*Instance)
	return child, ok
}

// Children returns the child namespaces sorted by name.
func (i *Instance) Children() []*Instance {
	i.mu.RLock()
	defer i.mu.RUnlock()
	var out []*Instance
	for _, name := range sortedKeys(i.members) {
		if child, ok := i.members[name].(*Instance); ok && child.parent == i {
			out = append(out, child)
		}
	}
	return out
}

// Members returns the member names in sorted order.
func (i *Instance) Members() []string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	names := make([]string, 0, len(i.members))
	for name := range i.members {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsLoaded reports whether every declared script has loaded.
func (i *Instance) IsLoaded() bool {
	return i.rt.isLoaded(i)
}

func (i *Instance) Status() Status {
	i.rt.mu.Lock()
	defer i.rt.mu.Unlock()
	return i.status
}

// Err returns the load failure, if any.
func (i *Instance) Err() error {
	i.rt.mu.Lock()
	defer i.rt.mu.Unlock()
	return i.err
}

// Loaded resolves once the instance settles: nil when its scripts loaded,
// the load error when one failed.
func (i *Instance) Loaded() *Future {
	return i.settled
}

// Wait blocks until the instance settles or ctx is done.
func (i *Instance) Wait(ctx context.Context) error {
	return i.settled.Wait(ctx)
}

// OnReady registers the hook fired once the runtime is ready.
// If it already fired for this instance, fn runs immediately.
func (i *Instance) OnReady(fn func(*Instance)) {
	i.mu.Lock()
	if i.readyFired {
		i.mu.Unlock()
		fn(i)
		return
	}
	i.onReady = fn
	i.mu.Unlock()
}

// OnDependenciesLoaded registers the hook fired once, after the declared
// scripts have loaded. If the instance already loaded, fn runs immediately.
func (i *Instance) OnDependenciesLoaded(fn func(*Instance)) {
	i.mu.Lock()
	if i.done {
		err := i.doneErr
		i.mu.Unlock()
		if err == nil {
			fn(i)
		}
		return
	}
	i.onLoaded = fn
	i.mu.Unlock()
}

// OnDependenciesFailed registers the hook fired once if a declared script fails.
func (i *Instance) OnDependenciesFailed(fn func(*Instance, error)) {
	i.mu.Lock()
	if i.done {
		err := i.doneErr
		i.mu.Unlock()
		if err != nil {
			fn(i, err)
		}
		return
	}
	i.onFailed = fn
	i.mu.Unlock()
}

func (i *Instance) fireReady() {
	i.mu.Lock()
	if i.readyFired {
		i.mu.Unlock()
		return
	}
	i.readyFired = true
	fn := i.onReady
	i.onReady = nil
	i.mu.Unlock()
	if fn != nil {
		fn(i)
	}
}

// finish takes the settle hooks so each fires at most once, runs them, then
// resolves the Loaded future.
func (i *Instance) finish(err error) {
	i.mu.Lock()
	if i.done {
		i.mu.Unlock()
		return
	}
	i.done, i.doneErr = true, err
	loaded, failed := i.onLoaded, i.onFailed
	i.onLoaded, i.onFailed = nil, nil
	i.mu.Unlock()

	if err != nil {
		if failed != nil {
			failed(i, err)
		}
	} else if loaded != nil {
		loaded(i)
	}
	i.settled.resolve(err)
}
