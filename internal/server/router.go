package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/seolyn/vigil/internal/metrics"
	"github.com/seolyn/vigil/internal/snapshot"
	"github.com/seolyn/vigil/internal/supervisor"
)

// StatusSource is the read-only loop view the router serves. Implemented by
// supervisor.Loop.
type StatusSource interface {
	Latest() (snapshot.Document, bool)
	State() supervisor.State
	LastTick() time.Time
}

// Router provides embeddable HTTP handlers for the status surface.
// Endpoints:
//
//	GET {basePath}/status   latest published snapshot
//	GET {basePath}/healthz  loop liveness (state + last tick age)
//	GET {basePath}/metrics  Prometheus metrics
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	src      StatusSource
	basePath string
	maxAge   time.Duration // tick staleness bound for healthz
}

// NewRouter constructs a Router. maxAge bounds how old the last completed
// tick may be before healthz reports the loop unhealthy; pass a few tick
// intervals.
func NewRouter(src StatusSource, basePath string, maxAge time.Duration) *Router {
	return &Router{src: src, basePath: sanitizeBase(basePath), maxAge: maxAge}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.GET("/healthz", r.handleHealthz)
	group.GET("/metrics", gin.WrapH(metrics.Handler()))
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr, basePath string, src StatusSource, maxAge time.Duration) (*http.Server, error) {
	r := NewRouter(src, basePath, maxAge)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server, nil
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type healthResp struct {
	State    string    `json:"state"`
	LastTick time.Time `json:"last_tick"`
	Healthy  bool      `json:"healthy"`
}

func (r *Router) handleStatus(c *gin.Context) {
	doc, ok := r.src.Latest()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, errorResp{Error: "no snapshot published yet"})
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (r *Router) handleHealthz(c *gin.Context) {
	state := r.src.State()
	last := r.src.LastTick()
	healthy := state == supervisor.Running && !last.IsZero() && time.Since(last) <= r.maxAge
	resp := healthResp{State: state.String(), LastTick: last, Healthy: healthy}
	if !healthy {
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}
