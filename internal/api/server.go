// Package api provides the node's HTTP debug and metrics surface: a
// middleware stack plus promhttp.Handler() wiring, with membership and
// identity debug endpoints in place of any application-specific routes.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/weftmesh/weft/internal/infra/identitystore"
	"github.com/weftmesh/weft/internal/infra/membership"
	"github.com/weftmesh/weft/internal/infra/refstore"
	"github.com/weftmesh/weft/internal/infra/transport"
)

// IdentityInfo is the JSON-serializable payload of whatever domain-specific
// identity T a running node stores; kept untyped here so the API package
// doesn't need to depend on any particular T.
type IdentityInfo = map[string]any

// Server is the node's debug/metrics HTTP server.
type Server struct {
	engine     *membership.Engine[transport.Addr]
	identities *identitystore.Store[IdentityInfo]
	registry   *prometheus.Registry
}

// NewServer constructs a Server over engine and identities, registering
// its own Prometheus collectors against reg.
func NewServer(engine *membership.Engine[transport.Addr], identities *identitystore.Store[IdentityInfo], reg *prometheus.Registry) *Server {
	return &Server{engine: engine, identities: identities, registry: reg}
}

// Handler returns the chi router with all debug/metrics routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if s.registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	r.Route("/debug", func(r chi.Router) {
		r.Get("/view", s.handleDebugView)
		r.Get("/peers", s.handleDebugPeers)
		r.Get("/identity/{urn}", s.handleDebugIdentity)
		r.Get("/identity", s.handleDebugIdentityRefs)
	})

	return r
}

func (s *Server) handleDebugView(w http.ResponseWriter, r *http.Request) {
	numActive, numPassive := s.engine.ViewStats()
	writeJSON(w, http.StatusOK, map[string]int{
		"num_active":  numActive,
		"num_passive": numPassive,
	})
}

func (s *Server) handleDebugPeers(w http.ResponseWriter, r *http.Request) {
	peers := s.engine.BroadcastRecipients()
	ids := make([]string, 0, len(peers))
	for _, p := range peers {
		ids = append(ids, string(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"active": ids})
}

func (s *Server) handleDebugIdentity(w http.ResponseWriter, r *http.Request) {
	urn := chi.URLParam(r, "urn")
	ent, err := s.identities.Get(urn)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"urn":         urn,
		"name":        ent.Name(),
		"revision":    ent.Revision(),
		"hash":        ent.Hash(),
		"parent_hash": ent.ParentHash(),
		"info":        ent.Info(),
	})
}

func (s *Server) handleDebugIdentityRefs(w http.ResponseWriter, r *http.Request) {
	var refs []refstore.Reference
	var errs []string
	for ref, err := range s.identities.Refs().Iter("refs/identities/*") {
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		refs = append(refs, ref)
	}
	writeJSON(w, http.StatusOK, map[string]any{"refs": refs, "errors": errs})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
