// Package api provides the HTTP server for Janus. It exposes the poll
// lifecycle, staking, shadow consensus, parameter registry, and rollback
// protocol as a JSON REST API.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/janus-network/janus/internal/app/consensus"
	"github.com/janus-network/janus/internal/app/ledger"
	"github.com/janus-network/janus/internal/app/params"
	"github.com/janus-network/janus/internal/app/poll"
	"github.com/janus-network/janus/internal/app/rollback"
	"github.com/janus-network/janus/internal/app/stake"
	"github.com/janus-network/janus/internal/domain"
	"github.com/janus-network/janus/internal/infra/sqlite"
)

// Server is the Janus HTTP API server.
type Server struct {
	db        *sqlite.DB
	polls     *poll.Service
	stakes    *stake.Service
	consensus *consensus.Analyzer
	registry  *params.Service
	rollback  *rollback.Service
	ledger    *ledger.Service

	version        string
	metricsEnabled bool
}

// NewServer creates a new API server over the wired services.
func NewServer(db *sqlite.DB, polls *poll.Service, stakes *stake.Service, cons *consensus.Analyzer, registry *params.Service, rb *rollback.Service, led *ledger.Service, version string) *Server {
	return &Server{
		db:        db,
		polls:     polls,
		stakes:    stakes,
		consensus: cons,
		registry:  registry,
		rollback:  rb,
		ledger:    led,
		version:   version,
	}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/api/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
	})

	r.Route("/api/polls", func(r chi.Router) {
		r.Post("/", s.handleCreatePoll)
		r.Get("/", s.handleListPolls)
		r.Get("/{id}", s.handleGetPoll)
		r.Post("/{id}/close", s.handleClosePoll)

		r.Post("/{id}/votes", s.handleCastVote)
		r.Put("/{id}/votes", s.handleChangeVote)
		r.Get("/{id}/votes", s.handleUserVotes)

		r.Post("/{id}/stakes", s.handleCreateStake)
		r.Get("/{id}/stakes/preview", s.handleStakePreview)
		r.Get("/{id}/pool", s.handleGetPool)
		r.Post("/{id}/distribute", s.handleDistribute)

		r.Post("/{id}/consensus", s.handleAnalyze)
		r.Get("/{id}/consensus", s.handleConsensusReport)
		r.Get("/{id}/demographics", s.handleDemographics)

		r.Post("/{id}/finalize-rollback", s.handleFinalizeRollback)
	})

	r.Route("/api/delegations", func(r chi.Router) {
		r.Post("/", s.handleDelegate)
		r.Delete("/", s.handleRevokeDelegation)
	})

	r.Route("/api/params", func(r chi.Router) {
		r.Get("/", s.handleListParams)
		r.Get("/{name}", s.handleGetParam)
	})
	r.Get("/api/constitution", s.handleConstitution)

	r.Route("/api/actions", func(r chi.Router) {
		r.Post("/process", s.handleProcessActions)
		r.Get("/{id}/eligibility", s.handleEligibility)
		r.Post("/{id}/rollback/founder", s.handleFounderRollback)
		r.Post("/{id}/rollback/auto", s.handleAutomaticCheck)
		r.Post("/{id}/petitions", s.handleCreatePetition)
	})
	r.Post("/api/petitions/{id}/signatures", s.handleSignPetition)

	r.Get("/api/users/{id}/balance", s.handleBalance)

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// ─── Response helpers ───────────────────────────────────────────────────────

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps a domain error to its HTTP status and writes it.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]interface{}{
		"error": map[string]interface{}{
			"message": err.Error(),
			"type":    kindFor(err),
		},
	})
}

var notFoundErrs = []error{
	domain.ErrPollNotFound, domain.ErrPoolNotFound, domain.ErrVoteNotFound,
	domain.ErrStakeNotFound, domain.ErrActionNotFound, domain.ErrUnknownParameter,
	domain.ErrPetitionNotFound, domain.ErrDelegationNotFound,
}

func statusFor(err error) int {
	for _, e := range notFoundErrs {
		if errors.Is(err, e) {
			return http.StatusNotFound
		}
	}
	switch {
	case domain.IsValidation(err):
		return http.StatusBadRequest
	case domain.IsEligibility(err):
		return http.StatusForbidden
	case domain.IsConstitutional(err):
		return http.StatusUnprocessableEntity
	case domain.IsState(err):
		return http.StatusConflict
	case domain.IsDependency(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func kindFor(err error) string {
	switch {
	case domain.IsValidation(err):
		return "validation"
	case domain.IsEligibility(err):
		return "eligibility"
	case domain.IsConstitutional(err):
		return "constitutional"
	case domain.IsState(err):
		return "state"
	case domain.IsDependency(err):
		return "dependency"
	default:
		return "internal"
	}
}

func decode(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// corsMiddleware adds CORS headers for local development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
