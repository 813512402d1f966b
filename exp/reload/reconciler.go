package reload

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/chenyanchen/singleton"
	"github.com/chenyanchen/singleton/manifest"
)

type snapshotNode struct {
	path string
	hash string
	ns   manifest.Namespace
}

// Result describes the namespace changes of one reconciliation.
type Result struct {
	Added     []string // Namespace exists only in the new manifest and was built.
	Removed   []string // Namespace exists only in the old manifest; its instance stays.
	Changed   []string // Declaration changed; the instance keeps the declaration it was built with.
	Unchanged []string
}

// Reconciler tracks the manifest applied to one runtime and applies additions on new manifests.
//
// Semantics:
// 1. instances are never torn down, so removals and changes are only reported
// 2. added namespaces are built in manifest order, parents before children
// 3. when a build fails, the snapshot keeps the previous manifest plus the
// namespaces already built, so the next reconciliation does not build them twice
type Reconciler struct {
	rt *singleton.Runtime

	mu       sync.Mutex
	snapshot map[string]snapshotNode
	order    []string
}

func New(rt *singleton.Runtime, initial *manifest.Manifest) (*Reconciler, error) {
	if rt == nil {
		return nil, fmt.Errorf("new reconciler: runtime is nil")
	}
	r := &Reconciler{
		rt:       rt,
		snapshot: make(map[string]snapshotNode),
	}
	if initial == nil {
		return r, nil
	}
	if _, err := r.Reconcile(initial); err != nil {
		return nil, err
	}
	return r, nil
}

// Reconcile brings the runtime in line with m as far as additions allow.
func (r *Reconciler) Reconcile(m *manifest.Manifest) (Result, error) {
	if err := m.Validate(); err != nil {
		return Result{}, fmt.Errorf("validate manifest: %w", err)
	}
	next, order, err := buildSnapshot(m)
	if err != nil {
		return Result{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	diff := diffSnapshots(r.snapshot, r.order, next, order)
	r.rt.Provide(m.Provided...)

	added := make(map[string]bool, len(diff.Added))
	for _, path := range diff.Added {
		added[path] = true
	}
	for _, path := range diff.Added {
		parentPath := parentOf(path)
		if added[parentPath] {
			// Built with its parent's subtree.
			continue
		}
		var parent *singleton.Instance
		if parentPath != "" {
			var ok bool
			if parent, ok = r.rt.Resolve(parentPath); !ok {
				r.recordBuilt(diff.Added, next)
				return Result{}, fmt.Errorf("build namespace %s: parent %s not found", path, parentPath)
			}
		}
		if _, err := next[path].ns.Apply(r.rt, parent); err != nil {
			r.recordBuilt(diff.Added, next)
			return Result{}, fmt.Errorf("build namespace %s: %w", path, err)
		}
	}

	r.snapshot = next
	r.order = order
	return diff, nil
}

// recordBuilt adds the added namespaces that now resolve in the runtime to the
// current snapshot. Callers hold r.mu.
func (r *Reconciler) recordBuilt(added []string, next map[string]snapshotNode) {
	for _, path := range added {
		if _, ok := r.rt.Resolve(path); !ok {
			continue
		}
		if _, ok := r.snapshot[path]; !ok {
			r.order = append(r.order, path)
		}
		r.snapshot[path] = next[path]
	}
}

func buildSnapshot(m *manifest.Manifest) (map[string]snapshotNode, []string, error) {
	out := make(map[string]snapshotNode)
	var order []string
	var hashErr error
	m.Walk(func(path string, ns manifest.Namespace) {
		if hashErr != nil {
			return
		}
		hash, err := hashNamespace(ns)
		if err != nil {
			hashErr = fmt.Errorf("build snapshot hash for %s: %w", path, err)
			return
		}
		out[path] = snapshotNode{path: path, hash: hash, ns: ns}
		order = append(order, path)
	})
	if hashErr != nil {
		return nil, nil, hashErr
	}
	return out, order, nil
}

// hashNamespace covers the namespace's own declaration; children are hashed separately.
func hashNamespace(ns manifest.Namespace) (string, error) {
	own := struct {
		Name        string            `json:"name"`
		Stylesheets map[string]string `json:"stylesheets"`
		Javascripts map[string]string `json:"javascripts"`
		Properties  map[string]any    `json:"properties"`
	}{ns.Name, ns.Stylesheets, ns.Javascripts, ns.Properties}

	// encoding/json sorts map keys, which makes the encoding canonical.
	payload, err := json.Marshal(own)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

func diffSnapshots(
	oldSnap map[string]snapshotNode,
	oldOrder []string,
	newSnap map[string]snapshotNode,
	newOrder []string,
) Result {
	var result Result
	for _, path := range newOrder {
		oldNode, ok := oldSnap[path]
		switch {
		case !ok:
			result.Added = append(result.Added, path)
		case oldNode.hash != newSnap[path].hash:
			result.Changed = append(result.Changed, path)
		default:
			result.Unchanged = append(result.Unchanged, path)
		}
	}
	for _, path := range oldOrder {
		if _, ok := newSnap[path]; !ok {
			result.Removed = append(result.Removed, path)
		}
	}
	return result
}

func parentOf(path string) string {
	i := strings.LastIndex(path, ".")
	if i < 0 {
		return ""
	}
	return path[:i]
}
