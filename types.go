package singleton

import (
	"context"
	"sort"
)

// Descriptor declares the stylesheets and scripts an instance depends on.
// Keys are symbolic names, values are URLs. A nil map skips that phase.
type Descriptor struct {
	Stylesheets map[string]string `json:"stylesheets,omitempty" yaml:"stylesheets,omitempty"`
	Javascripts map[string]string `json:"javascripts,omitempty" yaml:"javascripts,omitempty"`
}

func (d Descriptor) clone() Descriptor {
	out := Descriptor{}
	if d.Stylesheets != nil {
		out.Stylesheets = make(map[string]string, len(d.Stylesheets))
		for k, v := range d.Stylesheets {
			out.Stylesheets[k] = v
		}
	}
	if d.Javascripts != nil {
		out.Javascripts = make(map[string]string, len(d.Javascripts))
		for k, v := range d.Javascripts {
			out.Javascripts[k] = v
		}
	}
	return out
}

// Method is a function stored in an instance's member table.
// Self is the instance the method was called on.
type Method func(self *Instance, args ...any) (any, error)

// Status is the state of an instance's dependency loader.
type Status int

const (
	// StatusIdle means the loader has not started.
	StatusIdle Status = iota
	// StatusRunning means stylesheets were injected and scripts may still be in flight.
	StatusRunning
	// StatusLoaded means every declared script has loaded.
	StatusLoaded
	// StatusFailed means at least one declared script failed to load.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusRunning:
		return "running"
	case StatusLoaded:
		return "loaded"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s Status) settled() bool {
	return s == StatusLoaded || s == StatusFailed
}

// Admission bounds how many admitted instances may be unsettled at once.
//
// MaxUnsettled is the limit. Zero or less means no limit. One admits a pending
// instance only when every active instance is loaded or failed.
type Admission struct {
	MaxUnsettled int
}

// DefaultAdmission admits one pending instance at a time.
var DefaultAdmission = Admission{MaxUnsettled: 1}

// Document receives the elements injected by the dependency loader.
// Implementations must be safe for concurrent use.
type Document interface {
	AppendStylesheet(href string) error
	AppendScript(name string, src []byte) error
}

// Fetcher retrieves a script body.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, url string) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, url string) ([]byte, error) {
	return f(ctx, url)
}

// Snapshot is a copy of the dependency registry.
type Snapshot struct {
	Loading     map[string]bool  `json:"loading"`
	Stylesheets map[string]bool  `json:"stylesheets"`
	Javascripts map[string]bool  `json:"javascripts"`
	Failed      map[string]error `json:"-"`
	Provided    []string         `json:"provided"`
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
