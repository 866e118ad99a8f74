package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/janus-network/janus/internal/app/consensus"
	"github.com/janus-network/janus/internal/app/ledger"
	"github.com/janus-network/janus/internal/app/params"
	"github.com/janus-network/janus/internal/app/poll"
	"github.com/janus-network/janus/internal/app/reputation"
	"github.com/janus-network/janus/internal/app/rollback"
	"github.com/janus-network/janus/internal/app/stake"
	"github.com/janus-network/janus/internal/domain"
	"github.com/janus-network/janus/internal/infra/sqlite"
)

func newTestServer(t *testing.T) (*httptest.Server, *sqlite.DB) {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	led := ledger.NewService()
	rep := reputation.NewService()
	registry := params.NewService(db)
	if err := registry.Seed(); err != nil {
		t.Fatalf("Seed() error: %v", err)
	}
	polls := poll.NewService(db, led, rep, rep, registry, params.NewGuard())
	stakes := stake.NewService(db, led)
	cons := consensus.NewAnalyzer(db)
	rb := rollback.NewService(db, rep, rep, "founder")

	srv := NewServer(db, polls, stakes, cons, registry, rb, led, "test")
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, db
}

func seedVoter(t *testing.T, db *sqlite.DB, id string, balance int64) {
	t.Helper()
	led := ledger.NewService()
	err := db.WithTx(func(tx *sqlite.Tx) error {
		if err := tx.UpsertUser(id, 80, true, time.Now().Unix()); err != nil {
			return err
		}
		if balance > 0 {
			return led.Credit(tx, id, domain.ModeTrueSelf, domain.TokenPollCoin, balance, "test grant")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seedVoter(%s) error: %v", id, err)
	}
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	buf, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("POST %s error: %v", url, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

// ─── Endpoints ──────────────────────────────────────────────────────────────

func TestHealthAndVersion(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/health status = %d", resp.StatusCode)
	}
	var health map[string]string
	decodeBody(t, resp, &health)
	if health["status"] != "ok" {
		t.Errorf("health = %v", health)
	}

	resp, err = http.Get(ts.URL + "/api/version")
	if err != nil {
		t.Fatalf("GET /api/version error: %v", err)
	}
	var ver map[string]string
	decodeBody(t, resp, &ver)
	if ver["version"] != "test" {
		t.Errorf("version = %v", ver)
	}
}

func TestCreatePollAndVote(t *testing.T) {
	ts, db := newTestServer(t)
	seedVoter(t, db, "alice", 5000)
	seedVoter(t, db, "bob", 0)

	resp := postJSON(t, ts.URL+"/api/polls", map[string]any{
		"user_id": "alice",
		"mode":    "true_self",
		"title":   "Adopt a dark theme",
		"type":    "general",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create poll status = %d", resp.StatusCode)
	}
	var created domain.Poll
	decodeBody(t, resp, &created)
	if created.ID == "" || created.Status != domain.PollActive {
		t.Fatalf("created poll = %+v", created)
	}

	resp = postJSON(t, ts.URL+"/api/polls/"+created.ID+"/votes", map[string]any{
		"user_id": "bob",
		"poll_id": created.ID,
		"mode":    "shadow",
		"option":  "yes",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("cast vote status = %d", resp.StatusCode)
	}
	var vote domain.Vote
	decodeBody(t, resp, &vote)
	if vote.Section < 1 || vote.Section > domain.SectionCount {
		t.Errorf("Section = %d", vote.Section)
	}
	if vote.FinalWeight <= 0 {
		t.Errorf("FinalWeight = %d", vote.FinalWeight)
	}

	resp, err := http.Get(ts.URL + "/api/polls/" + created.ID)
	if err != nil {
		t.Fatalf("GET poll error: %v", err)
	}
	var fetched domain.Poll
	decodeBody(t, resp, &fetched)
	if fetched.YesCount != 1 {
		t.Errorf("YesCount = %d, want 1", fetched.YesCount)
	}
}

func TestErrorMapping(t *testing.T) {
	ts, db := newTestServer(t)
	seedVoter(t, db, "alice", 5000)

	cases := []struct {
		name   string
		do     func() *http.Response
		status int
		kind   string
	}{
		{
			name: "poll not found",
			do: func() *http.Response {
				resp, err := http.Get(ts.URL + "/api/polls/nope")
				if err != nil {
					t.Fatalf("GET error: %v", err)
				}
				return resp
			},
			status: http.StatusNotFound,
			kind:   "state",
		},
		{
			name: "bad poll type",
			do: func() *http.Response {
				return postJSON(t, ts.URL+"/api/polls", map[string]any{
					"user_id": "alice", "mode": "true_self",
					"title": "x", "type": "plebiscite",
				})
			},
			status: http.StatusBadRequest,
			kind:   "validation",
		},
		{
			name: "broke creator",
			do: func() *http.Response {
				seedVoter(t, db, "pauper", 0)
				return postJSON(t, ts.URL+"/api/polls", map[string]any{
					"user_id": "pauper", "mode": "true_self",
					"title": "x", "type": "general",
				})
			},
			status: http.StatusForbidden,
			kind:   "eligibility",
		},
		{
			name: "constitutional violation",
			do: func() *http.Response {
				return postJSON(t, ts.URL+"/api/polls", map[string]any{
					"user_id": "alice", "mode": "true_self",
					"title": "Kill the shadow", "type": "parameter_change",
					"param_name": "shadow_voting_enabled", "param_value": "false",
				})
			},
			status: http.StatusUnprocessableEntity,
			kind:   "constitutional",
		},
		{
			name: "unknown parameter",
			do: func() *http.Response {
				resp, err := http.Get(ts.URL + "/api/params/no_such")
				if err != nil {
					t.Fatalf("GET error: %v", err)
				}
				return resp
			},
			status: http.StatusNotFound,
			kind:   "validation",
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			resp := c.do()
			if resp.StatusCode != c.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, c.status)
			}
			var body struct {
				Error struct {
					Message string `json:"message"`
					Type    string `json:"type"`
				} `json:"error"`
			}
			decodeBody(t, resp, &body)
			if body.Error.Type != c.kind {
				t.Errorf("error type = %q, want %q", body.Error.Type, c.kind)
			}
			if body.Error.Message == "" {
				t.Error("empty error message")
			}
		})
	}
}

func TestParamsAndConstitution(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/params")
	if err != nil {
		t.Fatalf("GET /api/params error: %v", err)
	}
	var list struct {
		Parameters []domain.Parameter `json:"parameters"`
	}
	decodeBody(t, resp, &list)
	if len(list.Parameters) != 13 {
		t.Errorf("params = %d, want 13", len(list.Parameters))
	}

	resp, err = http.Get(ts.URL + "/api/params/minimum_quorum")
	if err != nil {
		t.Fatalf("GET param error: %v", err)
	}
	var p domain.Parameter
	decodeBody(t, resp, &p)
	if p.Value != "20" || !p.SuperMajority {
		t.Errorf("minimum_quorum = %+v", p)
	}

	resp, err = http.Get(ts.URL + "/api/constitution")
	if err != nil {
		t.Fatalf("GET constitution error: %v", err)
	}
	var constitution struct {
		Articles []domain.ConstitutionalArticle `json:"articles"`
	}
	decodeBody(t, resp, &constitution)
	if len(constitution.Articles) != 4 {
		t.Errorf("articles = %d, want 4", len(constitution.Articles))
	}
}

func TestBalanceEndpoint(t *testing.T) {
	ts, db := newTestServer(t)
	seedVoter(t, db, "alice", 2500)

	resp, err := http.Get(ts.URL + "/api/users/alice/balance?mode=true_self")
	if err != nil {
		t.Fatalf("GET balance error: %v", err)
	}
	var body struct {
		Balance int64 `json:"balance"`
		Locked  int64 `json:"locked"`
	}
	decodeBody(t, resp, &body)
	if body.Balance != 2500 || body.Locked != 0 {
		t.Errorf("balance = %+v", body)
	}
}

func TestCORSPreflight(t *testing.T) {
	ts, _ := newTestServer(t)

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/api/polls", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("preflight status = %d", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS origin header")
	}
}
