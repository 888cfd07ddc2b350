package server

import (
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loykin/duelr/internal/manager"
	"github.com/loykin/duelr/internal/metrics"
	"github.com/loykin/duelr/internal/series"
)

// Router provides read-only HTTP handlers for a running series.
// Endpoints:
//
//	GET {basePath}/status   series progress and engine processes
//	GET {basePath}/healthz  liveness of the orchestrator itself
//	GET {basePath}/metrics  Prometheus metrics
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	progress ProgressSource
	engines  EngineSource
	basePath string
}

// ProgressSource yields the current series progress.
type ProgressSource interface {
	Snapshot() series.Snapshot
}

// EngineSource yields engine process statuses. It may be nil.
type EngineSource interface {
	Statuses() []manager.Status
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	series.Snapshot
	Engines []manager.Status `json:"engines"`
}

func NewRouter(progress ProgressSource, engines EngineSource, basePath string) *Router {
	return &Router{progress: progress, engines: engines, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.GET("/healthz", func(c *gin.Context) { writeJSON(c, http.StatusOK, okResp{OK: true}) })
	group.GET("/metrics", gin.WrapH(metrics.Handler()))
	return g
}

// NewServer binds addr and serves the router in the background. Bind errors
// are returned; later serve errors are dropped. Shut it down with
// http.Server.Shutdown or Close.
func NewServer(addr string, r *Router) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	server := &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			_ = ln.Close()
		}
	}()
	return server, nil
}

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

func (r *Router) handleStatus(c *gin.Context) {
	if r.progress == nil {
		writeJSON(c, http.StatusServiceUnavailable, errorResp{Error: "no series running"})
		return
	}
	resp := StatusResponse{Snapshot: r.progress.Snapshot(), Engines: []manager.Status{}}
	if r.engines != nil {
		resp.Engines = r.engines.Statuses()
	}
	writeJSON(c, http.StatusOK, resp)
}
