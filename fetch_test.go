package singleton

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chenyanchen/singleton/dom"
)

func TestCacheBust(t *testing.T) {
	cases := map[string]string{
		"/javascripts/session_data.js":     "/javascripts/session_data.js?1700000000000",
		"/app.js?v=2":                      "/app.js?v=2&1700000000000",
		"https://cdn.example.com/x.js#top": "https://cdn.example.com/x.js?1700000000000#top",
	}
	for in, want := range cases {
		assert.Equal(t, want, cacheBust(in, fixedNow), in)
	}
}

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/javascripts/session_data.js":
			_, _ = w.Write([]byte("var Session = {q: '" + r.URL.RawQuery + "'};"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := HTTPFetcher{Client: srv.Client(), BaseURL: srv.URL}
	body, err := f.Fetch(context.Background(), "/javascripts/session_data.js?42")
	require.NoError(t, err)
	assert.Equal(t, "var Session = {q: '42'};", string(body))

	_, err = f.Fetch(context.Background(), "/missing.js")
	var statusErr HTTPStatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)

	_, err = HTTPFetcher{BaseURL: "://bad"}.Fetch(context.Background(), "/x.js")
	require.Error(t, err)
}

func TestRuntimeLoadsOverHTTP(t *testing.T) {
	var mu sync.Mutex
	var queries []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		queries = append(queries, r.URL.RawQuery)
		mu.Unlock()
		if r.URL.Path == "/gone.js" {
			w.WriteHeader(http.StatusGone)
			return
		}
		_, _ = w.Write([]byte("window.ok = true;"))
	}))
	defer srv.Close()

	doc := dom.New()
	rt := newTestRuntime(t, HTTPFetcher{Client: srv.Client(), BaseURL: srv.URL}, WithReady(), WithDocument(doc))

	inst := rt.Singleton(func(s *Instance) {
		s.Declare(Descriptor{
			Stylesheets: map[string]string{"app": "/app.css"},
			Javascripts: map[string]string{"App": "/app.js"},
		})
	})
	require.NoError(t, waitSettled(t, inst))
	mu.Lock()
	assert.Equal(t, []string{"1700000000000"}, queries)
	mu.Unlock()
	assert.Equal(t, []string{"/app.css"}, doc.Links())
	require.Len(t, doc.Scripts(), 1)
	assert.Equal(t, "window.ok = true;", doc.Scripts()[0].Source)

	gone := rt.Singleton(func(s *Instance) {
		s.Declare(Descriptor{Javascripts: map[string]string{"Gone": "/gone.js"}})
	})
	err := waitSettled(t, gone)
	var statusErr HTTPStatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusGone, statusErr.StatusCode)
}
