package collector

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/flowacctd/conntracct/internal/kernel"
	"github.com/flowacctd/conntracct/internal/ring"
	"github.com/flowacctd/conntracct/printer"
	"github.com/gorilla/mux"
)

// AdminServer exposes read-only introspection over the sampler's live
// state: ring capacity and drop counts, active stale-flow bookkeeping,
// and the cooldown and origin maps. The rate curve handed to
// NewAdminServer is held but not served by any route. It is the same
// httpHandler/mux.Router shape as
// daemon/run.go's learning-session endpoints, repurposed from mutating
// cloud-API calls to local read-only GETs.
type AdminServer struct {
	addr     string
	rings    *ring.Pair
	sweeper  *StaleFlowSweeper
	curve    *kernel.RateCurveMap
	cooldown *kernel.FlowCooldownMap
	origin   *kernel.FlowOriginMap
	server   *http.Server
}

// NewAdminServer builds (but does not start) an admin HTTP server
// listening on addr. cooldown and origin are the same maps the rate
// limiter reads and writes; the admin server only ever calls Snapshot on
// them.
func NewAdminServer(addr string, rings *ring.Pair, sweeper *StaleFlowSweeper, curve *kernel.RateCurveMap, cooldown *kernel.FlowCooldownMap, origin *kernel.FlowOriginMap) *AdminServer {
	a := &AdminServer{addr: addr, rings: rings, sweeper: sweeper, curve: curve, cooldown: cooldown, origin: origin}

	router := mux.NewRouter().StrictSlash(true)
	router.HandleFunc("/healthz", a.handleHealthz).Methods(http.MethodGet)
	router.HandleFunc("/stats/rings", a.handleRingStats).Methods(http.MethodGet)
	router.HandleFunc("/stats/flows", a.handleFlowStats).Methods(http.MethodGet)
	router.HandleFunc("/stats/cooldown", a.handleCooldownStats).Methods(http.MethodGet)
	router.HandleFunc("/stats/origin", a.handleOriginStats).Methods(http.MethodGet)

	a.server = &http.Server{Addr: addr, Handler: router}
	return a
}

// Start begins serving in a background goroutine; a listen failure is
// logged, matching daemon.Run's log.Fatal-on-bind-error behavior but
// without taking the whole process down, since the admin server is an
// optional convenience rather than the sampler's primary job.
func (a *AdminServer) Start() {
	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			printer.Errorf("admin server stopped: %v\n", err)
		}
	}()
}

func (a *AdminServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *AdminServer) handleRingStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"update_capacity": a.rings.Update.Capacity(),
		"update_dropped":  a.rings.Update.Dropped(),
		"end_capacity":    a.rings.End.Capacity(),
		"end_dropped":     a.rings.End.Dropped(),
	})
}

func (a *AdminServer) handleFlowStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"stale_sweeper_active": a.sweeper.ActiveCount(),
	})
}

func (a *AdminServer) handleCooldownStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.cooldown.Snapshot())
}

func (a *AdminServer) handleOriginStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.origin.Snapshot())
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		printer.Errorf("admin server: failed to encode response: %v\n", err)
	}
}

// Stop shuts the server down gracefully.
func (a *AdminServer) Stop() error {
	return a.server.Close()
}

func (a *AdminServer) String() string {
	return fmt.Sprintf("admin server on %s", a.addr)
}
