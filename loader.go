package singleton

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// startLocked moves inst from idle to running. Stylesheets not seen before
// are recorded loaded now and injected by the returned effects. Scripts that
// are provided are recorded loaded; scripts not yet in flight are fetched on
// their own goroutine.
func (r *Runtime) startLocked(inst *Instance) []func() {
	if inst.status != StatusIdle {
		return nil
	}
	inst.status = StatusRunning
	d := inst.descriptor()

	var effects []func()
	for _, name := range sortedKeys(d.Stylesheets) {
		if r.reg.stylesheets[name] {
			continue
		}
		r.reg.stylesheets[name] = true
		name, href := name, d.Stylesheets[name]
		effects = append(effects, func() { r.injectStylesheet(inst, name, href) })
	}

	for _, name := range sortedKeys(d.Javascripts) {
		switch {
		case r.reg.javascripts[name]:
		case r.reg.provided[name]:
			r.reg.javascripts[name] = true
			r.logger.Debug("script provided", zap.String("instance", inst.label()), zap.String("script", name))
		case r.reg.failed[name] != nil, r.reg.loading[name]:
			// Settlement picks the recorded failure or the pending result up.
		default:
			r.reg.loading[name] = true
			go r.loadScript(inst, name, d.Javascripts[name])
		}
	}
	return effects
}

func (r *Runtime) injectStylesheet(inst *Instance, name, href string) {
	log := r.logger.With(
		zap.String("instance", inst.label()),
		zap.String("stylesheet", name),
		zap.String("href", href),
	)
	if err := r.doc.AppendStylesheet(href); err != nil {
		log.Warn("append stylesheet", zap.Error(err))
		return
	}
	r.metrics.stylesheets.Inc()
	log.Debug("stylesheet appended")
}

// loadScript fetches one script and reports the outcome to the coordinator.
// Concurrent fetches of the same URL under different names share one request.
func (r *Runtime) loadScript(inst *Instance, name, rawURL string) {
	log := r.logger.With(
		zap.String("instance", inst.label()),
		zap.String("script", name),
		zap.String("url", rawURL),
	)

	v, err, shared := r.sf.Do(rawURL, func() (any, error) {
		return r.fetcher.Fetch(r.ctx, cacheBust(rawURL, r.now()))
	})
	if err == nil {
		src, _ := v.([]byte)
		err = r.doc.AppendScript(name, src)
	}

	r.mu.Lock()
	if err != nil {
		r.reg.failed[name] = &FetchError{Name: name, URL: rawURL, Err: err}
	} else {
		r.reg.javascripts[name] = true
	}
	r.mu.Unlock()

	if err != nil {
		r.metrics.fetches.WithLabelValues(resultFailure).Inc()
		log.Warn("script load failed", zap.Error(err))
	} else {
		r.metrics.fetches.WithLabelValues(resultSuccess).Inc()
		log.Debug("script loaded", zap.Bool("shared", shared))
	}
	r.fanOut()
}

// cacheBust appends the millisecond timestamp as a bare query value, keeping
// any existing query and fragment.
func cacheBust(rawURL string, now time.Time) string {
	stamp := strconv.FormatInt(now.UnixMilli(), 10)
	u, err := url.Parse(rawURL)
	if err != nil {
		sep := "?"
		if strings.Contains(rawURL, "?") {
			sep = "&"
		}
		return rawURL + sep + stamp
	}
	if u.RawQuery == "" {
		u.RawQuery = stamp
	} else {
		u.RawQuery += "&" + stamp
	}
	return u.String()
}
