// Package manifest declares singleton namespaces and their dependencies in YAML.
//
//	provided: [jQuery]
//	namespaces:
//	  - name: World
//	    stylesheets:
//	      file_manager: /stylesheets/file_manager.css
//	    javascripts:
//	      Session: /javascripts/session_data.js
//	    properties:
//	      title: Files
//	    namespaces:
//	      - name: Cars
package manifest

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/chenyanchen/singleton"
)

type Manifest struct {
	// Provided lists script names already present in the document.
	Provided   []string    `yaml:"provided,omitempty"`
	Namespaces []Namespace `yaml:"namespaces"`
}

type Namespace struct {
	Name        string            `yaml:"name"`
	Stylesheets map[string]string `yaml:"stylesheets,omitempty"`
	Javascripts map[string]string `yaml:"javascripts,omitempty"`
	Properties  map[string]any    `yaml:"properties,omitempty"`
	Namespaces  []Namespace       `yaml:"namespaces,omitempty"`
}

// Descriptor returns the dependency descriptor and whether the namespace declares any dependency.
func (ns Namespace) Descriptor() (singleton.Descriptor, bool) {
	if ns.Stylesheets == nil && ns.Javascripts == nil {
		return singleton.Descriptor{}, false
	}
	return singleton.Descriptor{Stylesheets: ns.Stylesheets, Javascripts: ns.Javascripts}, true
}

func Load(path string) (*Manifest, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	m, err := Parse(payload)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

func Parse(payload []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(payload, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate reports every empty, dotted or duplicate sibling name.
func (m *Manifest) Validate() error {
	var errs []error
	var check func(parent string, list []Namespace)
	check = func(parent string, list []Namespace) {
		seen := make(map[string]bool, len(list))
		for _, ns := range list {
			where := joinPath(parent, ns.Name)
			switch {
			case ns.Name == "":
				errs = append(errs, fmt.Errorf("namespace under %q: name is empty", parent))
				continue
			case strings.Contains(ns.Name, "."):
				errs = append(errs, fmt.Errorf("namespace %q: name must not contain dots", where))
			case seen[ns.Name]:
				errs = append(errs, fmt.Errorf("namespace %q: declared twice", where))
			}
			seen[ns.Name] = true
			for name, url := range ns.Javascripts {
				if url == "" {
					errs = append(errs, fmt.Errorf("namespace %q: script %q has no url", where, name))
				}
			}
			for name, url := range ns.Stylesheets {
				if url == "" {
					errs = append(errs, fmt.Errorf("namespace %q: stylesheet %q has no url", where, name))
				}
			}
			check(where, ns.Namespaces)
		}
	}
	check("", m.Namespaces)
	return errors.Join(errs...)
}

// Walk visits every namespace depth-first, parents before children.
func (m *Manifest) Walk(fn func(path string, ns Namespace)) {
	var walk func(parent string, list []Namespace)
	walk = func(parent string, list []Namespace) {
		for _, ns := range list {
			path := joinPath(parent, ns.Name)
			fn(path, ns)
			walk(path, ns.Namespaces)
		}
	}
	walk("", m.Namespaces)
}

// Apply provides the declared names and builds every root namespace with its subtree.
func (m *Manifest) Apply(rt *singleton.Runtime) ([]*singleton.Instance, error) {
	if rt == nil {
		return nil, errors.New("apply manifest: runtime is nil")
	}
	rt.Provide(m.Provided...)
	roots := make([]*singleton.Instance, 0, len(m.Namespaces))
	for _, ns := range m.Namespaces {
		inst, err := ns.Apply(rt, nil)
		if err != nil {
			return roots, fmt.Errorf("apply namespace %q: %w", ns.Name, err)
		}
		roots = append(roots, inst)
	}
	return roots, nil
}

// Apply builds ns under parent, or as a defined root when parent is nil, and then its children.
func (ns Namespace) Apply(rt *singleton.Runtime, parent *singleton.Instance) (*singleton.Instance, error) {
	init := func(s *singleton.Instance) {
		if d, ok := ns.Descriptor(); ok {
			s.Declare(d)
		}
		for k, v := range ns.Properties {
			s.Set(k, v)
		}
	}

	var (
		inst *singleton.Instance
		err  error
	)
	if parent == nil {
		inst, err = rt.Define(ns.Name, init)
	} else {
		inst, err = parent.Namespace(ns.Name, init)
	}
	if err != nil {
		return nil, err
	}
	for _, child := range ns.Namespaces {
		if _, err := child.Apply(rt, inst); err != nil {
			return inst, fmt.Errorf("apply namespace %q: %w", joinPath(inst.Path(), child.Name), err)
		}
	}
	return inst, nil
}

func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}
