// Package health tracks relay readiness and serves the liveness and
// readiness endpoints.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Readiness states.
const (
	stateStarting int32 = iota
	stateReady
	stateDraining
)

const defaultProbeTimeout = 2 * time.Second

// Probe checks one dependency. A nil error means healthy.
type Probe func(ctx context.Context) error

// Checker tracks readiness and the dependencies readiness depends on.
// It is safe for concurrent use.
type Checker struct {
	state atomic.Int32

	mu      sync.RWMutex
	probes  map[string]Probe
	timeout time.Duration
}

// NewChecker creates a Checker in the starting state.
func NewChecker() *Checker {
	return &Checker{probes: make(map[string]Probe), timeout: defaultProbeTimeout}
}

// AddProbe registers a dependency check run on every readiness request.
func (c *Checker) AddProbe(name string, p Probe) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probes[name] = p
}

// SetReady marks the relay as accepting traffic.
func (c *Checker) SetReady() {
	c.state.Store(stateReady)
}

// SetDraining marks the relay as shutting down.
func (c *Checker) SetDraining() {
	c.state.Store(stateDraining)
}

// IsReady reports whether the relay has started and is not draining.
func (c *Checker) IsReady() bool {
	return c.state.Load() == stateReady
}

// State returns the readiness state name.
func (c *Checker) State() string {
	switch c.state.Load() {
	case stateReady:
		return "ready"
	case stateDraining:
		return "draining"
	default:
		return "starting"
	}
}

// Response is the JSON body of the health endpoints.
type Response struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Check runs every probe and returns the per-dependency results.
func (c *Checker) Check(ctx context.Context) (map[string]string, bool) {
	c.mu.RLock()
	names := make([]string, 0, len(c.probes))
	for name := range c.probes {
		names = append(names, name)
	}
	probes := make(map[string]Probe, len(c.probes))
	for k, v := range c.probes {
		probes[k] = v
	}
	c.mu.RUnlock()
	sort.Strings(names)

	results := make(map[string]string, len(names))
	healthy := true
	for _, name := range names {
		pctx, cancel := context.WithTimeout(ctx, c.timeout)
		err := probes[name](pctx)
		cancel()
		if err != nil {
			results[name] = err.Error()
			healthy = false
			continue
		}
		results[name] = "ok"
	}
	return results, healthy
}

// LivenessHandler always answers 200.
//
// @Summary      Liveness probe
// @Tags         health
// @Produce      json
// @Success      200  {object}  Response
// @Router       /healthz [get]
func (*Checker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, Response{Status: "ok"})
	}
}

// ReadinessHandler answers 200 when ready and every probe passes, 503
// otherwise.
//
// @Summary      Readiness probe
// @Tags         health
// @Produce      json
// @Success      200  {object}  Response
// @Failure      503  {object}  Response
// @Router       /readyz [get]
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !c.IsReady() {
			writeJSON(w, http.StatusServiceUnavailable, Response{Status: c.State()})
			return
		}
		checks, ok := c.Check(r.Context())
		if !ok {
			writeJSON(w, http.StatusServiceUnavailable, Response{Status: "degraded", Checks: checks})
			return
		}
		writeJSON(w, http.StatusOK, Response{Status: c.State(), Checks: checks})
	}
}

func writeJSON(w http.ResponseWriter, code int, v Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
