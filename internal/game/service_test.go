package game

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/SlpAus/luna-spins-backend/internal/catalog"
	"github.com/SlpAus/luna-spins-backend/internal/mission"
	"github.com/SlpAus/luna-spins-backend/internal/platform/clock"
	"github.com/SlpAus/luna-spins-backend/internal/platform/config"
	"github.com/SlpAus/luna-spins-backend/internal/platform/kv"
	"github.com/SlpAus/luna-spins-backend/internal/progress"
	"github.com/SlpAus/luna-spins-backend/internal/selection"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type stoppedTicker struct{}

func (stoppedTicker) Stop() {}

// holdScheduler 从不触发 tick，倒计时会一直停在开始时的值
type holdScheduler struct{}

func (holdScheduler) Schedule(time.Duration, func()) mission.Ticker { return stoppedTicker{} }

type fixture struct {
	service *Service
	store   *progress.Store
	timer   *mission.Timer
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	cfg := config.Default()
	store, err := progress.Open(context.Background(), kv.NewMemory(),
		clock.NewManual(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)),
		progress.SettingsFromConfig(cfg.Game), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	repo, err := catalog.NewRepository(catalog.DefaultItems())
	if err != nil {
		t.Fatal(err)
	}
	engine, err := selection.NewEngine(repo, rand.New(rand.NewSource(99)))
	if err != nil {
		t.Fatal(err)
	}
	timer := mission.NewTimer(store, holdScheduler{}, zerolog.Nop())
	return fixture{
		service: NewService(store, engine, timer, cfg.Game, zerolog.Nop()),
		store:   store,
		timer:   timer,
	}
}

func TestSpinWheelOffersMission(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	round, err := f.service.SpinWheel(ctx, catalog.CategoryWarmup, 0)
	if err != nil {
		t.Fatal(err)
	}
	if round.Spin.Winner.Category != catalog.CategoryWarmup || len(round.Spin.Pool) != selection.PoolSize {
		t.Errorf("unexpected spin %+v", round.Spin)
	}
	if round.Mission.ItemID != round.Spin.Winner.ID || round.Mission.Reward != 20 || round.Mission.DurationSeconds != 35 {
		t.Errorf("unexpected mission %+v", round.Mission)
	}
	if q := f.store.Snapshot(ctx).SpinQuotas[progress.KindWheel]; q != 2 {
		t.Errorf("wheel quota = %d, want 2", q)
	}
	if state, _ := f.timer.State(); state != mission.StateOffered {
		t.Errorf("timer state %s", state)
	}
}

func TestRoundsRefusedWhileMissionStarted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	if _, err := f.service.DrawCard(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := f.timer.Start(); err != nil {
		t.Fatal(err)
	}

	if _, err := f.service.PullSlots(ctx); !errors.Is(err, mission.ErrMissionBusy) {
		t.Errorf("expected ErrMissionBusy, got %v", err)
	}
	if q := f.store.Snapshot(ctx).SpinQuotas[progress.KindSlots]; q != 3 {
		t.Errorf("refused round must not consume quota, slots = %d", q)
	}
}

func TestRoundsRefusedWhileMissionOffered(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	first, err := f.service.DrawCard(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.service.DrawCard(ctx); !errors.Is(err, mission.ErrMissionBusy) {
		t.Errorf("expected ErrMissionBusy, got %v", err)
	}
	if _, err := f.service.SpinWheel(ctx, catalog.CategoryWarmup, 0); !errors.Is(err, mission.ErrMissionBusy) {
		t.Errorf("expected ErrMissionBusy, got %v", err)
	}
	snap := f.store.Snapshot(ctx)
	if snap.SpinQuotas[progress.KindCards] != 2 || snap.SpinQuotas[progress.KindWheel] != 3 {
		t.Errorf("refused rounds must not consume quota, got %v", snap.SpinQuotas)
	}
	if _, m := f.timer.State(); m == nil || m.ID != first.Mission.ID {
		t.Error("the offered mission must not be replaced")
	}
}

// 与外部提供任务并发时，扣除的配额数必须等于成功的轮数
func TestRoundRacingOfferConsumesOnlyOnSuccess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	succeeded := 0
	for i := 0; i < 50; i++ {
		f.timer.Teardown()
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.timer.Offer(mission.Offer{Game: "cards", ItemID: "outside", Reward: 1})
		}()
		_, err := f.service.DrawCard(ctx)
		wg.Wait()
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, mission.ErrMissionBusy), errors.Is(err, ErrNoSpinsLeft):
		default:
			t.Fatalf("draw %d: %v", i, err)
		}
	}
	left := f.store.Snapshot(ctx).SpinQuotas[progress.KindCards]
	if 3-left != succeeded {
		t.Errorf("consumed %d spins for %d successful draws", 3-left, succeeded)
	}
}

func TestQuotaExhausted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		if _, err := f.service.PullSlots(ctx); err != nil {
			t.Fatalf("pull %d: %v", i, err)
		}
		if err := f.timer.Cancel(); err != nil {
			t.Fatal(err)
		}
	}
	_, err := f.service.PullSlots(ctx)
	if !errors.Is(err, ErrNoSpinsLeft) {
		t.Fatalf("expected ErrNoSpinsLeft, got %v", err)
	}
	var qe *QuotaError
	if !errors.As(err, &qe) || qe.Kind != progress.KindSlots || qe.DaysUntilReset != 7 {
		t.Errorf("unexpected quota error %+v", qe)
	}
}

func TestVipPlaysWithoutLimit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	if err := f.store.SetVip(ctx); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		if _, err := f.service.SpinWheel(ctx, catalog.CategoryDaring, float64(i*90)); err != nil {
			t.Fatalf("spin %d: %v", i, err)
		}
		if err := f.timer.Cancel(); err != nil {
			t.Fatal(err)
		}
	}
}

func TestUnknownCategory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	if _, err := f.service.SpinWheel(ctx, catalog.CategoryCard, 0); !errors.Is(err, ErrUnknownCategory) {
		t.Errorf("spin: %v", err)
	}
	if _, err := f.service.WheelPool(ctx, "nope"); !errors.Is(err, ErrUnknownCategory) {
		t.Errorf("pool: %v", err)
	}
	pool, err := f.service.WheelPool(ctx, catalog.CategoryPosition)
	if err != nil || len(pool) != selection.PoolSize {
		t.Errorf("pool: %d %v", len(pool), err)
	}
}

func TestRollDice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if _, err := f.service.RollDice(ctx, 7); !errors.Is(err, selection.ErrInvalidGuess) {
		t.Errorf("expected ErrInvalidGuess, got %v", err)
	}
	if q := f.store.Snapshot(ctx).SpinQuotas[progress.KindDice]; q != 3 {
		t.Errorf("invalid guess consumed quota: %d", q)
	}

	_ = f.store.SetVip(ctx)
	misses := 0
	for i := 0; i < 200; i++ {
		round, err := f.service.RollDice(ctx, 4)
		if err != nil {
			t.Fatal(err)
		}
		if !round.Matched {
			if round.Reward != 0 || round.ItemID != "" {
				t.Fatalf("miss must not pay: %+v", round)
			}
			misses++
			continue
		}
		if round.Reward != 30 || !strings.HasPrefix(round.ItemID, "dice-turn-") {
			t.Fatalf("unexpected win %+v", round)
		}
		p := f.store.Snapshot(ctx)
		if p.Coins != 30 || p.CompletedCount != 1 || p.History[0] != round.ItemID {
			t.Errorf("reward not committed: %+v", p)
		}
		return
	}
	t.Fatalf("no match after %d rolls", misses)
}

func TestHandlerQuotaResponse(t *testing.T) {
	gin.SetMode(gin.TestMode)
	f := newFixture(t)
	h := NewHandler(f.service)
	r := gin.New()
	r.POST("/api/games/dice/roll", h.RollDice)
	r.GET("/api/games/wheel/pool", h.WheelPool)

	roll := func() *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/games/dice/roll", strings.NewReader(`{"guess":2}`))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)
		return w
	}
	for i := 0; i < 3; i++ {
		if w := roll(); w.Code != http.StatusOK {
			t.Fatalf("roll %d: %d %s", i, w.Code, w.Body.String())
		}
	}
	w := roll()
	if w.Code != http.StatusPaymentRequired {
		t.Fatalf("status %d", w.Code)
	}
	var body struct {
		DaysUntilReset int `json:"daysUntilReset"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || body.DaysUntilReset != 7 {
		t.Errorf("body %s", w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/games/wheel/pool?category=warmup", nil))
	if w.Code != http.StatusOK {
		t.Errorf("pool: %d", w.Code)
	}
}
