package singleton

// registry is the dependency state of one Runtime.
// Entries are only added or set to true, never removed.
// All fields are guarded by Runtime.mu.
type registry struct {
	loading     map[string]bool
	stylesheets map[string]bool
	javascripts map[string]bool
	failed      map[string]error
	provided    map[string]bool
}

func newRegistry() registry {
	return registry{
		loading:     make(map[string]bool),
		stylesheets: make(map[string]bool),
		javascripts: make(map[string]bool),
		failed:      make(map[string]error),
		provided:    make(map[string]bool),
	}
}

// scriptsLoaded reports whether every script in d has loaded.
// Stylesheets are recorded at injection time and never gate completion.
func (r *registry) scriptsLoaded(d Descriptor) bool {
	for name := range d.Javascripts {
		if !r.javascripts[name] {
			return false
		}
	}
	return true
}

// scriptFailure returns the first recorded failure among the scripts in d.
func (r *registry) scriptFailure(d Descriptor) error {
	for _, name := range sortedKeys(d.Javascripts) {
		if r.javascripts[name] {
			continue
		}
		if err, ok := r.failed[name]; ok {
			return err
		}
	}
	return nil
}

func (r *registry) snapshot() Snapshot {
	s := Snapshot{
		Loading:     make(map[string]bool, len(r.loading)),
		Stylesheets: make(map[string]bool, len(r.stylesheets)),
		Javascripts: make(map[string]bool, len(r.javascripts)),
		Failed:      make(map[string]error, len(r.failed)),
		Provided:    sortedKeys(r.provided),
	}
	for k, v := range r.loading {
		s.Loading[k] = v
	}
	for k, v := range r.stylesheets {
		s.Stylesheets[k] = v
	}
	for k, v := range r.javascripts {
		s.Javascripts[k] = v
	}
	for k, v := range r.failed {
		s.Failed[k] = v
	}
	return s
}
