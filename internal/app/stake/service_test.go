package stake

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/janus-network/janus/internal/app/ledger"
	"github.com/janus-network/janus/internal/domain"
	"github.com/janus-network/janus/internal/infra/sqlite"
)

func newTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	dir := t.TempDir()
	db, err := sqlite.Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

type fixture struct {
	db     *sqlite.DB
	svc    *Service
	ledger *ledger.Service
	clock  time.Time
	poll   *domain.Poll
}

// newFixture seeds an active poll with an open stake pool and a fixed
// clock one hour into the voting window.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)
	led := ledger.NewService()

	f := &fixture{
		db:     db,
		ledger: led,
		clock:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(db, led)
	f.svc.now = func() time.Time { return f.clock }

	f.poll = &domain.Poll{
		ID:        uuid.NewString(),
		Title:     "stake target",
		Type:      domain.PollGeneral,
		Status:    domain.PollActive,
		CreatorID: "alice",
		StartsAt:  f.clock.Add(-time.Hour),
		EndsAt:    f.clock.Add(24 * time.Hour),
		Quorum:    1,
		CreatedAt: f.clock.Add(-time.Hour),
	}
	err := db.WithTx(func(tx *sqlite.Tx) error {
		if err := tx.InsertPoll(f.poll); err != nil {
			return err
		}
		return tx.InsertStakePool(&domain.StakePool{
			PollID: f.poll.ID, Status: domain.PoolOpen, CreatedAt: f.clock,
		})
	})
	if err != nil {
		t.Fatalf("seed poll error: %v", err)
	}
	return f
}

func (f *fixture) fund(t *testing.T, user string, mode domain.IdentityMode, amount int64) {
	t.Helper()
	err := f.db.WithTx(func(tx *sqlite.Tx) error {
		return f.ledger.Credit(tx, user, mode, domain.TokenGratium, amount, "test grant")
	})
	if err != nil {
		t.Fatalf("fund(%s) error: %v", user, err)
	}
}

func (f *fixture) stake(t *testing.T, user string, mode domain.IdentityMode, position domain.VoteOption, amount int64) {
	t.Helper()
	f.fund(t, user, mode, amount)
	_, err := f.svc.CreateStake(user, CreateStakeRequest{
		PollID: f.poll.ID, Mode: mode, Position: position, Amount: amount,
	})
	if err != nil {
		t.Fatalf("CreateStake(%s, %s, %d) error: %v", user, position, amount, err)
	}
}

// closePoll marks the poll decided and the pool closed, mimicking the
// poll lifecycle without dragging the whole poll service into the test.
func (f *fixture) closePoll(t *testing.T, status domain.PollStatus, votes int) {
	t.Helper()
	err := f.db.WithTx(func(tx *sqlite.Tx) error {
		if err := tx.AdjustPollTally(f.poll.ID, domain.OptionYes, votes, int64(votes)*1000); err != nil {
			return err
		}
		if err := tx.UpdatePollStatus(f.poll.ID, status, sql.NullInt64{Int64: f.clock.Unix(), Valid: true}); err != nil {
			return err
		}
		return tx.UpdatePoolStatus(f.poll.ID, domain.PoolClosed, 0, sql.NullInt64{Int64: f.clock.Unix(), Valid: true})
	})
	if err != nil {
		t.Fatalf("closePoll error: %v", err)
	}
}

func (f *fixture) balance(t *testing.T, user string, mode domain.IdentityMode) int64 {
	t.Helper()
	var bal int64
	err := f.db.Read(func(tx *sqlite.Tx) error {
		var err error
		bal, _, err = f.ledger.Balances(tx, user, mode, domain.TokenGratium)
		return err
	})
	if err != nil {
		t.Fatalf("Balances(%s) error: %v", user, err)
	}
	return bal
}

// ─── Creation ───────────────────────────────────────────────────────────────

func TestCreateStake_LocksTokens(t *testing.T) {
	f := newFixture(t)
	f.stake(t, "bob", domain.ModeTrueSelf, domain.OptionYes, 100)

	err := f.db.Read(func(tx *sqlite.Tx) error {
		_, locked, err := f.ledger.Balances(tx, "bob", domain.ModeTrueSelf, domain.TokenGratium)
		if err != nil {
			return err
		}
		if locked != 100 {
			t.Errorf("locked = %d, want 100", locked)
		}
		// Stakes are denominated in Gratium; PollCoin stays untouched.
		pcBal, pcLocked, err := f.ledger.Balances(tx, "bob", domain.ModeTrueSelf, domain.TokenPollCoin)
		if err != nil {
			return err
		}
		if pcBal != 0 || pcLocked != 0 {
			t.Errorf("PollCoin = %d/%d locked, want untouched", pcBal, pcLocked)
		}
		pool, err := tx.GetStakePool(f.poll.ID)
		if err != nil {
			return err
		}
		if pool.YesTotal != 100 || pool.YesCount != 1 || pool.LargestStake != 100 {
			t.Errorf("pool = %+v, want yes 100/1 largest 100", pool)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("error: %v", err)
	}
}

func TestCreateStake_BelowMinimum(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "bob", domain.ModeTrueSelf, 100)

	_, err := f.svc.CreateStake("bob", CreateStakeRequest{
		PollID: f.poll.ID, Mode: domain.ModeTrueSelf, Position: domain.OptionYes, Amount: 9,
	})
	if !errors.Is(err, domain.ErrStakeBelowMinimum) {
		t.Fatalf("error = %v, want ErrStakeBelowMinimum", err)
	}
}

func TestCreateStake_AbstainRejected(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateStake("bob", CreateStakeRequest{
		PollID: f.poll.ID, Mode: domain.ModeTrueSelf, Position: domain.OptionAbstain, Amount: 50,
	})
	if !errors.Is(err, domain.ErrInvalidPosition) {
		t.Fatalf("error = %v, want ErrInvalidPosition", err)
	}
}

func TestCreateStake_OncePerPersona(t *testing.T) {
	f := newFixture(t)
	f.stake(t, "bob", domain.ModeTrueSelf, domain.OptionYes, 50)

	f.fund(t, "bob", domain.ModeTrueSelf, 50)
	_, err := f.svc.CreateStake("bob", CreateStakeRequest{
		PollID: f.poll.ID, Mode: domain.ModeTrueSelf, Position: domain.OptionNo, Amount: 50,
	})
	if !errors.Is(err, domain.ErrAlreadyStaked) {
		t.Fatalf("error = %v, want ErrAlreadyStaked", err)
	}

	// The shadow persona stakes independently, even on the other side.
	f.stake(t, "bob", domain.ModeShadow, domain.OptionNo, 50)
}

func TestCreateStake_InsufficientBalance(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "bob", domain.ModeTrueSelf, 30)

	_, err := f.svc.CreateStake("bob", CreateStakeRequest{
		PollID: f.poll.ID, Mode: domain.ModeTrueSelf, Position: domain.OptionYes, Amount: 50,
	})
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("error = %v, want ErrInsufficientBalance", err)
	}
}

// ─── Distribution ───────────────────────────────────────────────────────────

func TestDistribute_TwoSided(t *testing.T) {
	f := newFixture(t)
	f.stake(t, "ann", domain.ModeTrueSelf, domain.OptionYes, 600)
	f.stake(t, "bob", domain.ModeTrueSelf, domain.OptionNo, 400)
	f.closePoll(t, domain.PollApproved, 10)

	result, err := f.svc.Distribute(f.poll.ID)
	if err != nil {
		t.Fatalf("Distribute() error: %v", err)
	}
	if result.Winner != domain.OptionYes || result.Refunded {
		t.Fatalf("result = %+v, want yes winner", result)
	}
	if got := f.balance(t, "ann", domain.ModeTrueSelf); got != 1000 {
		t.Errorf("winner balance = %d, want 1000 (600 stake × 1000/600)", got)
	}
	if got := f.balance(t, "bob", domain.ModeTrueSelf); got != 0 {
		t.Errorf("loser balance = %d, want 0", got)
	}
	if result.Distributed != 1000 || result.Retained != 0 {
		t.Errorf("distributed/retained = %d/%d, want 1000/0", result.Distributed, result.Retained)
	}
}

func TestDistribute_ProportionalSplit(t *testing.T) {
	f := newFixture(t)
	f.stake(t, "ann", domain.ModeTrueSelf, domain.OptionYes, 600)
	f.stake(t, "bea", domain.ModeTrueSelf, domain.OptionYes, 800)
	f.stake(t, "cid", domain.ModeTrueSelf, domain.OptionYes, 600)
	f.stake(t, "dan", domain.ModeTrueSelf, domain.OptionNo, 1000)
	f.closePoll(t, domain.PollApproved, 10)

	result, err := f.svc.Distribute(f.poll.ID)
	if err != nil {
		t.Fatalf("Distribute() error: %v", err)
	}

	// Pool 3000, winning side 2000: shares scale by 3/2.
	want := map[string]int64{"ann": 900, "bea": 1200, "cid": 900, "dan": 0}
	for user, w := range want {
		if got := f.balance(t, user, domain.ModeTrueSelf); got != w {
			t.Errorf("%s balance = %d, want %d", user, got, w)
		}
	}
	if result.Distributed != 3000 || result.Retained != 0 {
		t.Errorf("distributed/retained = %d/%d, want 3000/0", result.Distributed, result.Retained)
	}
}

func TestDistribute_FloorRemainderRetained(t *testing.T) {
	f := newFixture(t)
	f.stake(t, "ann", domain.ModeTrueSelf, domain.OptionYes, 10)
	f.stake(t, "bea", domain.ModeTrueSelf, domain.OptionYes, 10)
	f.stake(t, "cid", domain.ModeTrueSelf, domain.OptionYes, 13)
	f.stake(t, "dan", domain.ModeTrueSelf, domain.OptionNo, 10)
	f.closePoll(t, domain.PollApproved, 10)

	result, err := f.svc.Distribute(f.poll.ID)
	if err != nil {
		t.Fatalf("Distribute() error: %v", err)
	}

	// Pool 43, winning 33: floor payouts 13+13+16 = 42, one token retained.
	if result.Distributed != 42 || result.Retained != 1 {
		t.Fatalf("distributed/retained = %d/%d, want 42/1", result.Distributed, result.Retained)
	}
	if result.Distributed+result.Retained != result.TotalPool {
		t.Error("distribution leaks tokens")
	}
	if result.Retained >= int64(result.WinnerCount) {
		t.Errorf("retained %d not below winner count %d", result.Retained, result.WinnerCount)
	}
	if got := f.balance(t, domain.AccountRevenue, domain.ModeSystem); got != 1 {
		t.Errorf("revenue account = %d, want 1", got)
	}
}

func TestDistribute_SelfPayout(t *testing.T) {
	// A sole winner against a sole loser gets the whole pool back.
	f := newFixture(t)
	f.stake(t, "ann", domain.ModeTrueSelf, domain.OptionYes, 250)
	f.stake(t, "bob", domain.ModeTrueSelf, domain.OptionNo, 250)
	f.closePoll(t, domain.PollApproved, 10)

	if _, err := f.svc.Distribute(f.poll.ID); err != nil {
		t.Fatalf("Distribute() error: %v", err)
	}
	if got := f.balance(t, "ann", domain.ModeTrueSelf); got != 500 {
		t.Errorf("winner balance = %d, want 500", got)
	}
}

func TestDistribute_OneSidedRefunds(t *testing.T) {
	f := newFixture(t)
	f.stake(t, "ann", domain.ModeTrueSelf, domain.OptionYes, 100)
	f.stake(t, "bea", domain.ModeShadow, domain.OptionYes, 200)
	f.closePoll(t, domain.PollApproved, 10)

	result, err := f.svc.Distribute(f.poll.ID)
	if err != nil {
		t.Fatalf("Distribute() error: %v", err)
	}
	if !result.Refunded || result.RefundedCount != 2 {
		t.Fatalf("result = %+v, want full refund", result)
	}
	if got := f.balance(t, "ann", domain.ModeTrueSelf); got != 100 {
		t.Errorf("ann balance = %d, want 100 back", got)
	}
	if got := f.balance(t, "bea", domain.ModeShadow); got != 200 {
		t.Errorf("bea balance = %d, want 200 back", got)
	}
}

func TestDistribute_QuorumFailureRefunds(t *testing.T) {
	f := newFixture(t)
	f.poll.Quorum = 100
	err := f.db.WithTx(func(tx *sqlite.Tx) error {
		_, e := tx.Exec(`UPDATE polls SET quorum = 100 WHERE id = ?`, f.poll.ID)
		return e
	})
	if err != nil {
		t.Fatalf("update quorum error: %v", err)
	}
	f.stake(t, "ann", domain.ModeTrueSelf, domain.OptionYes, 100)
	f.stake(t, "bob", domain.ModeTrueSelf, domain.OptionNo, 100)
	f.closePoll(t, domain.PollRejected, 3)

	result, err := f.svc.Distribute(f.poll.ID)
	if err != nil {
		t.Fatalf("Distribute() error: %v", err)
	}
	if !result.Refunded {
		t.Fatalf("result = %+v, want refund below quorum", result)
	}
}

func TestDistribute_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.stake(t, "ann", domain.ModeTrueSelf, domain.OptionYes, 100)
	f.stake(t, "bob", domain.ModeTrueSelf, domain.OptionNo, 100)
	f.closePoll(t, domain.PollApproved, 10)

	if _, err := f.svc.Distribute(f.poll.ID); err != nil {
		t.Fatalf("first Distribute() error: %v", err)
	}
	_, err := f.svc.Distribute(f.poll.ID)
	if !errors.Is(err, domain.ErrPoolAlreadySettled) {
		t.Fatalf("second Distribute() error = %v, want ErrPoolAlreadySettled", err)
	}
}

func TestDistribute_PollStillActive(t *testing.T) {
	f := newFixture(t)
	f.stake(t, "ann", domain.ModeTrueSelf, domain.OptionYes, 100)

	_, err := f.svc.Distribute(f.poll.ID)
	if !errors.Is(err, domain.ErrPollNotClosed) {
		t.Fatalf("error = %v, want ErrPollNotClosed", err)
	}
}

// ─── Preview ────────────────────────────────────────────────────────────────

func TestPotentialReward(t *testing.T) {
	f := newFixture(t)
	f.stake(t, "ann", domain.ModeTrueSelf, domain.OptionYes, 600)
	f.stake(t, "bob", domain.ModeTrueSelf, domain.OptionNo, 400)

	// Joining yes with 200: pool 1200, winning 800.
	reward, err := f.svc.PotentialReward(f.poll.ID, domain.OptionYes, 200)
	if err != nil {
		t.Fatalf("PotentialReward() error: %v", err)
	}
	if reward != 300 {
		t.Errorf("reward = %d, want 300 (200 × 1200/800)", reward)
	}
}
