package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/janus-network/janus/internal/app/poll"
	"github.com/janus-network/janus/internal/app/stake"
	"github.com/janus-network/janus/internal/domain"
	"github.com/janus-network/janus/internal/infra/metrics"
	"github.com/janus-network/janus/internal/infra/sqlite"
)

// ─── Polls ──────────────────────────────────────────────────────────────────

func (s *Server) handleCreatePoll(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID string              `json:"user_id"`
		Mode   domain.IdentityMode `json:"mode"`
		poll.CreatePollRequest
	}
	if err := decode(r, &body); err != nil {
		writeError(w, domain.ErrInvalidPollType)
		return
	}
	p, err := s.polls.CreatePoll(body.UserID, body.Mode, body.CreatePollRequest)
	if err != nil {
		if domain.IsConstitutional(err) {
			metrics.ConstitutionalRejections.Inc()
		}
		writeError(w, err)
		return
	}
	metrics.PollsCreated.WithLabelValues(string(p.Type)).Inc()
	if cp, err := s.registry.Get("poll_creation_cost"); err == nil {
		if cost, err := strconv.ParseInt(cp.Value, 10, 64); err == nil {
			metrics.TokensBurned.Add(float64(cost / 100))
		}
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleListPolls(w http.ResponseWriter, r *http.Request) {
	status := domain.PollStatus(r.URL.Query().Get("status"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	out, err := s.polls.List(status, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"polls": out})
}

func (s *Server) handleGetPoll(w http.ResponseWriter, r *http.Request) {
	p, err := s.polls.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleClosePoll(w http.ResponseWriter, r *http.Request) {
	result, err := s.polls.ClosePoll(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	metrics.PollsClosed.WithLabelValues(string(result.Status)).Inc()
	writeJSON(w, http.StatusOK, result)
}

// ─── Votes ──────────────────────────────────────────────────────────────────

func (s *Server) handleCastVote(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID string `json:"user_id"`
		poll.CastVoteRequest
	}
	if err := decode(r, &body); err != nil {
		writeError(w, domain.ErrInvalidOption)
		return
	}
	body.PollID = chi.URLParam(r, "id")
	v, err := s.polls.CastVote(body.UserID, body.CastVoteRequest)
	if err != nil {
		writeError(w, err)
		return
	}
	metrics.VotesCast.WithLabelValues(string(v.Mode)).Inc()
	writeJSON(w, http.StatusCreated, v)
}

func (s *Server) handleChangeVote(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID string `json:"user_id"`
		poll.CastVoteRequest
	}
	if err := decode(r, &body); err != nil {
		writeError(w, domain.ErrInvalidOption)
		return
	}
	body.PollID = chi.URLParam(r, "id")
	v, err := s.polls.ChangeVote(body.UserID, body.CastVoteRequest)
	if err != nil {
		writeError(w, err)
		return
	}
	metrics.VotesChanged.Inc()
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleUserVotes(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user")
	votes, err := s.polls.UserVotes(chi.URLParam(r, "id"), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"votes": votes})
}

// ─── Delegations ────────────────────────────────────────────────────────────

func (s *Server) handleDelegate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DelegatorID string              `json:"delegator_id"`
		Mode        domain.IdentityMode `json:"mode"`
		DelegateID  string              `json:"delegate_id"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, domain.ErrInvalidIdentity)
		return
	}
	if err := s.polls.Delegate(body.DelegatorID, body.Mode, body.DelegateID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "delegated"})
}

func (s *Server) handleRevokeDelegation(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DelegatorID string              `json:"delegator_id"`
		Mode        domain.IdentityMode `json:"mode"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, domain.ErrInvalidIdentity)
		return
	}
	if err := s.polls.RevokeDelegation(body.DelegatorID, body.Mode); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

// ─── Stakes ─────────────────────────────────────────────────────────────────

func (s *Server) handleCreateStake(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID string `json:"user_id"`
		stake.CreateStakeRequest
	}
	if err := decode(r, &body); err != nil {
		writeError(w, domain.ErrInvalidPosition)
		return
	}
	body.PollID = chi.URLParam(r, "id")
	st, err := s.stakes.CreateStake(body.UserID, body.CreateStakeRequest)
	if err != nil {
		writeError(w, err)
		return
	}
	metrics.StakesPlaced.WithLabelValues(string(st.Position)).Inc()
	metrics.StakeVolume.Add(float64(st.Amount))
	writeJSON(w, http.StatusCreated, st)
}

func (s *Server) handleStakePreview(w http.ResponseWriter, r *http.Request) {
	position := domain.VoteOption(r.URL.Query().Get("position"))
	amount, _ := strconv.ParseInt(r.URL.Query().Get("amount"), 10, 64)
	reward, err := s.stakes.PotentialReward(chi.URLParam(r, "id"), position, amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"potential_reward": reward})
}

func (s *Server) handleGetPool(w http.ResponseWriter, r *http.Request) {
	pool, err := s.stakes.Pool(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pool)
}

func (s *Server) handleDistribute(w http.ResponseWriter, r *http.Request) {
	result, err := s.stakes.Distribute(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if result.Refunded {
		metrics.PoolsRefunded.Inc()
	} else {
		metrics.RewardsDistributed.Add(float64(result.Distributed))
		metrics.RemainderRetained.Add(float64(result.Retained))
	}
	writeJSON(w, http.StatusOK, result)
}

// ─── Consensus ──────────────────────────────────────────────────────────────

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	report, err := s.consensus.Analyze(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	metrics.ConsensusReports.WithLabelValues(string(report.Alignment)).Inc()
	metrics.ConsensusGap.Set(report.Gap)
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleConsensusReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.consensus.Report(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleDemographics(w http.ResponseWriter, r *http.Request) {
	report, err := s.consensus.Demographics(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// ─── Parameters ─────────────────────────────────────────────────────────────

func (s *Server) handleListParams(w http.ResponseWriter, r *http.Request) {
	out, err := s.registry.List()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"parameters": out})
}

func (s *Server) handleGetParam(w http.ResponseWriter, r *http.Request) {
	p, err := s.registry.Get(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleConstitution(w http.ResponseWriter, r *http.Request) {
	var articles []domain.ConstitutionalArticle
	err := s.db.Read(func(tx *sqlite.Tx) error {
		var err error
		articles, err = tx.ListArticles()
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"articles": articles})
}

// ─── Rollback protocol ──────────────────────────────────────────────────────

func (s *Server) handleProcessActions(w http.ResponseWriter, r *http.Request) {
	processed, err := s.rollback.ProcessDueActions()
	if err != nil {
		writeError(w, err)
		return
	}
	for _, a := range processed {
		metrics.ActionsProcessed.WithLabelValues(string(a.Status)).Inc()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"actions": processed})
}

func (s *Server) handleEligibility(w http.ResponseWriter, r *http.Request) {
	report, err := s.rollback.Eligibility(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleFounderRollback(w http.ResponseWriter, r *http.Request) {
	var body struct {
		FounderID string `json:"founder_id"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, domain.ErrInvalidIdentity)
		return
	}
	p, err := s.rollback.FounderRollback(body.FounderID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	metrics.RollbacksInitiated.WithLabelValues("founder").Inc()
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleAutomaticCheck(w http.ResponseWriter, r *http.Request) {
	p, err := s.rollback.AutomaticCheck(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if p == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "not_triggered"})
		return
	}
	metrics.RollbacksInitiated.WithLabelValues("automatic").Inc()
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleCreatePetition(w http.ResponseWriter, r *http.Request) {
	pet, err := s.rollback.CreatePetition(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, pet)
}

func (s *Server) handleSignPetition(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID string `json:"user_id"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, domain.ErrInvalidIdentity)
		return
	}
	pet, err := s.rollback.SignPetition(chi.URLParam(r, "id"), body.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	if pet.Status == domain.PetitionEscalated {
		metrics.RollbacksInitiated.WithLabelValues("petition").Inc()
	}
	writeJSON(w, http.StatusOK, pet)
}

func (s *Server) handleFinalizeRollback(w http.ResponseWriter, r *http.Request) {
	a, err := s.rollback.FinalizeEmergency(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	metrics.RollbacksExecuted.Inc()
	writeJSON(w, http.StatusOK, a)
}

// ─── Ledger ─────────────────────────────────────────────────────────────────

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	mode := domain.IdentityMode(r.URL.Query().Get("mode"))
	token := domain.TokenType(r.URL.Query().Get("token"))
	if token == "" {
		token = domain.TokenPollCoin
	}

	var balance, locked int64
	err := s.db.Read(func(tx *sqlite.Tx) error {
		var err error
		balance, locked, err = s.ledger.Balances(tx, userID, mode, token)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_id": userID,
		"mode":    mode,
		"token":   token,
		"balance": balance,
		"locked":  locked,
	})
}
