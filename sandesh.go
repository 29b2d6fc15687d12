// Package sandesh is a telemetry generator client: it encodes structured
// diagnostic records into a framed XML wire format, maintains a resilient
// session to a collector with primary/backup failover, caches the latest
// value of keyed UVE records for sync replay, keeps trace ring buffers,
// and embeds an HTTP introspect surface.
/*
 * Copyright (c) 2024-2026, NVIDIA CORPORATION. All rights reserved.
 */
package sandesh

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/NVIDIA/sandesh/client"
	"github.com/NVIDIA/sandesh/cmn"
	"github.com/NVIDIA/sandesh/conninfo"
	"github.com/NVIDIA/sandesh/introspect"
	"github.com/NVIDIA/sandesh/nlog"
	"github.com/NVIDIA/sandesh/ratelimit"
	"github.com/NVIDIA/sandesh/stats"
	"github.com/NVIDIA/sandesh/trace"
	"github.com/NVIDIA/sandesh/uve"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

type (
	// RequestHandler serves one named request, for both the collector and
	// introspect paths. Fields are bound by name; a missing key means the
	// field was not provided. Responses go back through
	// (*Generator).SendResponse with the same ctx.
	RequestHandler func(g *Generator, ctx string, fields map[string]string)

	// TypePackage bundles the types one generated package registers.
	TypePackage struct {
		Name     string
		UVETypes []uve.TypeDesc
		Requests map[string]RequestHandler
	}

	// Options parameterize InitGenerator.
	Options struct {
		Module     string
		Source     string // host name
		NodeType   string
		InstanceID string
		Collectors []string // primary first, optional secondary
		HTTPPort   int      // -1 disables introspect, 0 picks a port
		Packages   []TypePackage
		ConfigFile string      // optional YAML overriding defaults
		Config     *cmn.Config // optional, wins over ConfigFile
		// ConnectToCollector false keeps the client down; submissions are
		// logged locally instead of transmitted.
		ConnectToCollector bool
		// UnitTest short-circuits delivery for every submission.
		UnitTest bool
	}

	// Generator is the public surface; construct with InitGenerator.
	Generator struct {
		cfg        *cmn.Config
		module     string
		source     string
		nodeType   string
		instanceID string

		connectToCollector bool
		unitTest           bool
		startTime          int64 // usec

		stats    *stats.Registry
		tracer   *trace.Tracer
		typeMaps *uve.TypeMaps
		conn     *conninfo.State
		client   *client.Client
		http     *introspect.Server

		hmu      sync.RWMutex
		handlers map[string]RequestHandler

		lmu      sync.Mutex
		limiters map[string]*ratelimit.Limiter
		rateCap  int

		dropLogLim *ratelimit.Limiter

		seqnum    atomic.Uint64
		sendLevel atomic.Int32
		sendQueue atomic.Bool

		uninited atomic.Bool
	}
)

// interface guard
var _ client.Env = (*Generator)(nil)

// InitGenerator wires the whole generator up: logging, type registration,
// the introspect server, and (when a collector is configured) the
// connection state machine. Setup failures other than the HTTP bind are
// logged, not returned; the bind failure is fatal.
func InitGenerator(opts Options) *Generator {
	cfg := opts.Config
	if cfg == nil {
		var err error
		cfg, err = cmn.LoadConfig(opts.ConfigFile)
		if err != nil {
			nlog.Errorf("config %q: %v, using defaults", opts.ConfigFile, err)
			cfg = cmn.DefaultConfig()
		}
	}
	g := &Generator{
		cfg:                cfg,
		module:             opts.Module,
		source:             opts.Source,
		nodeType:           opts.NodeType,
		instanceID:         opts.InstanceID,
		connectToCollector: opts.ConnectToCollector,
		unitTest:           opts.UnitTest,
		startTime:          cmn.UTCTimestampUsec(),
		stats:              stats.NewRegistry(),
		tracer:             trace.NewTracer(),
		typeMaps:           uve.NewTypeMaps(),
		handlers:           make(map[string]RequestHandler, 32),
		limiters:           make(map[string]*ratelimit.Limiter, 8),
		rateCap:            cfg.SystemLogsPerSec,
		dropLogLim:         ratelimit.New("drop-log", 10),
	}
	g.sendLevel.Store(int32(cmn.LevelInvalid))
	g.sendQueue.Store(true)

	nlog.Init(fmt.Sprintf("%s:%s:%s:%s",
		opts.Source, opts.Module, opts.NodeType, opts.InstanceID))
	nlog.Infof("SANDESH: connect to collector: %v", opts.ConnectToCollector)

	// built-in types first, then the caller's packages; the registered
	// set is immutable afterwards
	g.registerBuiltins()
	for _, pkg := range opts.Packages {
		for _, desc := range pkg.UVETypes {
			if err := g.typeMaps.Register(desc); err != nil {
				nlog.Errorf("package %s: %v", pkg.Name, err)
			}
		}
		for name, h := range pkg.Requests {
			g.RegisterHandler(name, h)
		}
	}
	g.typeMaps.Seal()

	g.conn = conninfo.New(opts.Source, opts.Module, opts.InstanceID, g.sendNodeStatus)

	if opts.HTTPPort != -1 {
		g.http = introspect.NewServer(opts.Module, introspect.Hooks{
			Invoke:  g.invokeHandler,
			Metrics: promhttp.HandlerFor(g.stats.Prometheus(), promhttp.HandlerOpts{}),
		})
		port, err := g.http.Start(opts.HTTPPort)
		if err != nil {
			// the only fatal condition in the core
			nlog.Errorf("%v", err)
			nlog.Flush()
			os.Exit(1)
		}
		g.RecordPort("http", port)
	}

	var primary, secondary string
	if len(opts.Collectors) > 0 {
		primary = opts.Collectors[0]
	}
	if len(opts.Collectors) > 1 {
		secondary = opts.Collectors[1]
	}
	if opts.ConnectToCollector {
		g.client = client.New(cfg, g, g.stats, g.typeMaps, primary, secondary,
			g.SendQueueEnabled)
		g.client.Initiate()
	}
	return g
}

// Uninit tears down the HTTP server and the collector client; idempotent.
func (g *Generator) Uninit() {
	if !g.uninited.CompareAndSwap(false, true) {
		return
	}
	eg := &errgroup.Group{}
	if g.http != nil {
		eg.Go(func() error { g.http.Stop(); return nil })
	}
	if g.client != nil {
		eg.Go(func() error { g.client.Shutdown(); return nil })
	}
	_ = eg.Wait()
	nlog.Flush()
}

// accessors

func (g *Generator) Module() string           { return g.module }
func (g *Generator) Source() string           { return g.source }
func (g *Generator) NodeType() string         { return g.nodeType }
func (g *Generator) InstanceID() string       { return g.instanceID }
func (g *Generator) Config() *cmn.Config      { return g.cfg }
func (g *Generator) Stats() *stats.Registry   { return g.stats }
func (g *Generator) Tracer() *trace.Tracer    { return g.tracer }
func (g *Generator) TypeMaps() *uve.TypeMaps  { return g.typeMaps }
func (g *Generator) ConnState() *conninfo.State { return g.conn }
func (g *Generator) StartTime() int64         { return g.startTime }

// Client returns the collector client, nil when ConnectToCollector is off.
func (g *Generator) Client() *client.Client { return g.client }

// HTTPPort returns the bound introspect port, 0 when disabled.
func (g *Generator) HTTPPort() int {
	if g.http == nil {
		return 0
	}
	return g.http.Port()
}

// send level and send queue

func (g *Generator) SendLevel() cmn.Level { return cmn.Level(g.sendLevel.Load()) }

// SetSendLevel installs the minimum severity accepted for transmission;
// LevelInvalid removes the gate. Driven by queue watermarks and operators.
func (g *Generator) SetSendLevel(level cmn.Level) {
	old := cmn.Level(g.sendLevel.Swap(int32(level)))
	if old != level {
		nlog.Infof("SANDESH: send level %s -> %s", old, level)
	}
}

func (g *Generator) SendQueueEnabled() bool { return g.sendQueue.Load() }

// SetSendQueue gates transmission without blocking submission; re-enabling
// kicks the session queue runner.
func (g *Generator) SetSendQueue(enable bool) {
	if g.sendQueue.Swap(enable) == enable {
		return
	}
	nlog.Infof("SANDESH: client: send queue %v", enable)
	if enable && g.client != nil {
		g.client.KickSendQueue()
	}
}

// SetAdminState drives the connection state machine down (true) or up.
func (g *Generator) SetAdminState(down bool) {
	if g.client != nil {
		g.client.SetAdminState(down)
	}
}

// ReconfigCollectors installs a new primary/secondary pair; the state
// machine observes it as a CollectorChange event.
func (g *Generator) ReconfigCollectors(collectors []string) {
	if g.client == nil {
		return
	}
	var primary, secondary string
	if len(collectors) > 0 {
		primary = collectors[0]
	}
	if len(collectors) > 1 {
		secondary = collectors[1]
	}
	g.client.ReconfigCollectors(primary, secondary)
}

// logging params

// SetLoggingParams reconfigures local logging in one shot.
func (g *Generator) SetLoggingParams(p nlog.Params) { nlog.SetParams(p) }

func (g *Generator) SetLocalLogging(enable bool)  { nlog.SetLocalLogging(enable) }
func (g *Generator) SetLoggingLevel(l cmn.Level)  { nlog.SetLevel(l) }
func (g *Generator) SetLoggingCategory(c string)  { nlog.SetCategory(c) }
func (g *Generator) SetLoggingFile(file string)   { nlog.SetFile(file) }

// rate limiter

// SetSendRateLimit updates the per-second cap for system messages at
// runtime, resizing every live window.
func (g *Generator) SetSendRateLimit(n int) {
	if n <= 0 {
		return
	}
	g.lmu.Lock()
	g.rateCap = n
	for _, lim := range g.limiters {
		lim.SetCapacity(n)
	}
	g.lmu.Unlock()
}

func (g *Generator) limiter(msgName string) *ratelimit.Limiter {
	g.lmu.Lock()
	defer g.lmu.Unlock()
	lim, ok := g.limiters[msgName]
	if !ok {
		lim = ratelimit.New(msgName, g.rateCap)
		g.limiters[msgName] = lim
	}
	return lim
}

// handler registry

// RegisterHandler binds a request name to its handler; later
// registrations of the same name win (the last package loaded owns it).
func (g *Generator) RegisterHandler(name string, h RequestHandler) {
	g.hmu.Lock()
	g.handlers[name] = h
	g.hmu.Unlock()
}

// HasHandler is part of the client Env contract.
func (g *Generator) HasHandler(name string) bool {
	g.hmu.RLock()
	defer g.hmu.RUnlock()
	_, ok := g.handlers[name]
	return ok
}

func (g *Generator) invokeHandler(name string, fields map[string]string, ctx string) bool {
	g.hmu.RLock()
	h, ok := g.handlers[name]
	g.hmu.RUnlock()
	if !ok {
		return false
	}
	h(g, ctx, fields)
	return true
}

// RecordPort writes "<port>\n" to the named pipe
// /tmp/<module>.<ppid>.<name>_port when the pipe already exists.
func (g *Generator) RecordPort(name string, port int) {
	pipe := fmt.Sprintf("/tmp/%s.%d.%s_port", g.module, os.Getppid(), name)
	f, err := os.OpenFile(pipe, os.O_WRONLY, 0)
	if err != nil {
		nlog.Errorf("cannot write %s_port %d to %s: %v", name, port, pipe, err)
		return
	}
	fmt.Fprintf(f, "%d\n", port)
	_ = f.Close()
}

// DropLogAllowed rate-limits operational drop logging to avoid log storms.
func (g *Generator) DropLogAllowed() bool {
	if !g.cfg.DoRateLimitDropLog {
		return true
	}
	return g.dropLogLim.Allow(timeNow())
}
