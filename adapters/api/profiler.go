package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewProfiler returns the pprof and expvar handlers under /debug, for the
// listener started when PROFILING_ENABLED is set. It is kept off the API
// router so profiles are never exposed on the public port.
func NewProfiler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Mount("/debug", middleware.Profiler())
	return r
}
