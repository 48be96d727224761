// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

/*
Package response shapes handler results into a standard response envelope.

Routes are identified by a RouteKey of controller and handler name. At
startup, their response metadata is declared in a Registry:

	registry := response.NewRegistry()
	registry.MustDeclare(response.Key("user", "list"), response.Standard(response.Options{
		IsPaginated:   true,
		MaxPageSize:   100,
		IsSorted:      true,
		SortingFields: []string{"name", "date"},
	}))

A Pipeline turns a HandlerFunc into a http.Handler. For each request it
parses the query parameters of the enabled features into Params, calls the
handler and runs the handler's result through the interceptors, by default
just StandardResponse(), which wraps it as

	{"success":true,"isArray":true,"isPaginated":true,"pagination":{...},"data":[...]}

Handler errors are passed to the ErrorWriter untouched.
*/
package response

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/relabs-tech/pret/core/logger"
)

// HandlerFunc handles a request and returns the value to send. The params
// hold the parsed list parameters and may be amended by the handler.
type HandlerFunc func(r *http.Request, params *Params) (interface{}, error)

// Builder is a builder helper for the Pipeline
type Builder struct {
	// Registry holds the route declarations. Mandatory.
	Registry *Registry
	// Interceptors run in order on every handler result. Defaults to
	// StandardResponse() alone.
	Interceptors []Interceptor
	// ErrorWriter writes errors. Defaults to WriteError.
	ErrorWriter ErrorWriter
}

// Pipeline creates http handlers which shape their responses
type Pipeline struct {
	registry     *Registry
	interceptors []Interceptor
	errorWriter  ErrorWriter
}

// New creates a new pipeline
func New(bb *Builder) *Pipeline {
	if bb.Registry == nil {
		panic("response pipeline needs a registry")
	}
	p := &Pipeline{
		registry:     bb.Registry,
		interceptors: bb.Interceptors,
		errorWriter:  bb.ErrorWriter,
	}
	if p.interceptors == nil {
		p.interceptors = []Interceptor{StandardResponse()}
	}
	if p.errorWriter == nil {
		p.errorWriter = WriteError
	}
	return p
}

// Registry returns the pipeline's registry
func (p *Pipeline) Registry() *Registry {
	return p.registry
}

// Handler returns the http handler for the route. The route is resolved
// immediately; a configuration error is a programming error and panics.
func (p *Pipeline) Handler(key RouteKey, handler HandlerFunc) http.Handler {
	route, err := p.registry.Resolve(key)
	if err != nil {
		panic(err)
	}
	return &routeHandler{pipeline: p, route: route, handler: handler}
}

// Handle registers the handler for the route on the router
func (p *Pipeline) Handle(router *mux.Router, path string, key RouteKey, handler HandlerFunc) *mux.Route {
	rlog := logger.Default()
	rlog.Debugf("  handle route: %s (%s)", path, key)
	return router.Handle(path, p.Handler(key, handler))
}

type routeHandler struct {
	pipeline *Pipeline
	route    *Route
	handler  HandlerFunc
}

func (h *routeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := ContextWithRoute(r.Context(), h.route)
	rlog := logger.FromContext(ctx)

	params, err := ParseParams(h.route, r.URL.Query())
	if err != nil {
		h.fail(w, r.WithContext(ctx), err, start)
		return
	}
	ctx = ContextWithParams(ctx, params)
	r = r.WithContext(ctx)

	value, err := h.handler(r, params)
	if ctx.Err() != nil {
		// the client is gone, nobody is going to read the result
		rlog.Debugf("request %s aborted: %v", h.route.Key, ctx.Err())
		observe(h.route, "aborted", start)
		return
	}
	if err != nil {
		h.fail(w, r, err, start)
		return
	}

	for _, interceptor := range h.pipeline.interceptors {
		value, err = interceptor.Intercept(r, value)
		if err != nil {
			h.fail(w, r, err, start)
			return
		}
	}
	if e, ok := value.(error); ok {
		h.fail(w, r, e, start)
		return
	}

	if value == nil && h.route.Kind == KindRaw {
		w.WriteHeader(http.StatusNoContent)
		observe(h.route, statusLabel(http.StatusNoContent), start)
		return
	}

	body, err := json.MarshalNoEscape(value)
	if err != nil {
		rlog.WithError(err).Errorf("cannot encode response of %s", h.route.Key)
		h.fail(w, r, err, start)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(h.route.Status)
	w.Write(body)
	observe(h.route, statusLabel(h.route.Status), start)
}

func (h *routeHandler) fail(w http.ResponseWriter, r *http.Request, err error, start time.Time) {
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	h.pipeline.errorWriter(rec, r, err)
	observe(h.route, statusLabel(rec.status), start)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}
