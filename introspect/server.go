// Package introspect embeds the operator-facing HTTP control plane: the
// home page, the Snh_<Request> dispatch surface, static assets, and the
// buffer where Response sandeshs addressed to an http context land.
/*
 * Copyright (c) 2024-2026, NVIDIA CORPORATION. All rights reserved.
 */
package introspect

import (
	"embed"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/NVIDIA/sandesh/nlog"

	"github.com/pkg/errors"
)

//go:embed static
var staticFS embed.FS

const xslHeader = `<?xml-stylesheet type="text/xsl" href="/universal_parse.xsl"?>`

type (
	// Hooks connect the server to the generator without an import cycle.
	Hooks struct {
		// Invoke dispatches a named request with query-bound fields; the
		// handler responds through the ctx response buffer. A false
		// return means no such handler is registered.
		Invoke func(name string, fields map[string]string, ctx string) bool
		// Metrics serves /metrics (prometheus).
		Metrics http.Handler
	}

	respBuf struct {
		parts [][]byte
		done  bool
	}

	// Server is the embedded introspect HTTP server.
	Server struct {
		module string
		hooks  Hooks

		mu        sync.Mutex
		responses map[string]*respBuf
		nextCtx   uint64

		ln   net.Listener
		srv  *http.Server
		port int
	}
)

func NewServer(module string, hooks Hooks) *Server {
	return &Server{
		module:    module,
		hooks:     hooks,
		responses: make(map[string]*respBuf, 8),
	}
}

// Start binds 0.0.0.0:port (0 picks an ephemeral port) and serves in the
// background. Returns the bound port.
func (s *Server) Start(port int) (int, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	if s.hooks.Metrics != nil {
		mux.Handle("/metrics", s.hooks.Metrics)
	}
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return 0, errors.Wrapf(err, "introspect: bind port %d", port)
	}
	s.ln = ln
	s.port = ln.Addr().(*net.TCPAddr).Port
	s.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			nlog.Errorf("introspect: serve: %v", err)
		}
	}()
	nlog.Infof("starting introspect on http port %d", s.port)
	return s.port, nil
}

func (s *Server) Port() int { return s.port }

// Stop shuts the listener down; idempotent.
func (s *Server) Stop() {
	if s.srv != nil {
		_ = s.srv.Close()
		s.srv = nil
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	switch {
	case path == "/" || path == "/index.html":
		s.homePage(w)
	case strings.HasPrefix(path, "/Snh_"):
		s.handleSnh(w, r)
	case strings.HasPrefix(path, "/css/") || strings.HasPrefix(path, "/js/") ||
		path == "/universal_parse.xsl":
		http.FileServer(http.FS(mustSub())).ServeHTTP(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) homePage(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, "<html><head><title>%s</title>"+
		`<link href="/css/style.css" rel="stylesheet"/></head><body>`, s.module)
	fmt.Fprintf(w, "<h2>Module: %s</h2><ul>", s.module)
	for _, req := range wellKnownRequests {
		fmt.Fprintf(w, `<li><a href="/Snh_%s">%s</a></li>`, req, req)
	}
	fmt.Fprint(w, "</ul></body></html>")
}

// wellKnownRequests populate the home page; dispatch itself is open-ended.
var wellKnownRequests = []string{
	"SandeshLoggingParamsStatus",
	"SandeshSendQueueStatus",
	"CollectorInfoRequest",
	"SandeshMessageStatsReq",
	"SandeshTraceBufferListRequest",
	"SandeshUVETypesReq",
}

// handleSnh binds query parameters to fields by name and invokes the
// registered handler. An empty query value means "field not provided".
// Unknown handlers return an HTML error body with HTTP 200.
func (s *Server) handleSnh(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/Snh_")
	fields := make(map[string]string, len(r.URL.Query()))
	for k, vs := range r.URL.Query() {
		if len(vs) > 0 && vs[0] != "" {
			fields[k] = vs[0]
		}
	}
	ctx := s.newContext()
	defer s.dropContext(ctx)

	if s.hooks.Invoke == nil || !s.hooks.Invoke(name, fields, ctx) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, "<h3>Invalid sandesh request %q</h3>", name)
		return
	}
	body := s.collect(ctx)
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	fmt.Fprint(w, xslHeader)
	fmt.Fprintf(w, "<__%s_list type=\"slist\">", name)
	for _, part := range body {
		w.Write(part)
	}
	fmt.Fprintf(w, "</__%s_list>", name)
}

// response buffers; Response sandeshs whose context begins with http://
// are delivered here instead of the collector

const ctxPrefix = "http://introspect/"

func (s *Server) newContext() string {
	s.mu.Lock()
	s.nextCtx++
	ctx := ctxPrefix + strconv.FormatUint(s.nextCtx, 10)
	s.responses[ctx] = &respBuf{}
	s.mu.Unlock()
	return ctx
}

func (s *Server) dropContext(ctx string) {
	s.mu.Lock()
	delete(s.responses, ctx)
	s.mu.Unlock()
}

// WriteResponse appends one rendered response body to the ctx buffer;
// more=false marks the final part.
func (s *Server) WriteResponse(ctx string, body []byte, more bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rb, ok := s.responses[ctx]
	if !ok || rb.done {
		return false
	}
	rb.parts = append(rb.parts, body)
	rb.done = !more
	return true
}

func (s *Server) collect(ctx string) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rb, ok := s.responses[ctx]; ok {
		return rb.parts
	}
	return nil
}

// mustSub reroots the embedded tree so URL paths match the legacy UI.
func mustSub() fs.FS {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return sub
}
