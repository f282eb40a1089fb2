package shop

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SlpAus/luna-spins-backend/internal/platform/clock"
	"github.com/SlpAus/luna-spins-backend/internal/platform/config"
	"github.com/SlpAus/luna-spins-backend/internal/platform/kv"
	"github.com/SlpAus/luna-spins-backend/internal/progress"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func newShop(t *testing.T) (*Shop, *progress.Store) {
	t.Helper()
	cfg := config.Default()
	store, err := progress.Open(context.Background(), kv.NewMemory(),
		clock.NewManual(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		progress.SettingsFromConfig(cfg.Game), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	s, err := New(FeaturesFromConfig(cfg.Shop), store, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	return s, store
}

// complete 提交 n 次任务，每次获得 reward 金币
func complete(t *testing.T, store *progress.Store, n, reward int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := store.CommitReward(context.Background(), "warmup-01", reward); err != nil {
			t.Fatal(err)
		}
	}
}

func TestDefaultFeatures(t *testing.T) {
	s, _ := newShop(t)
	listings := s.List(context.Background())
	want := map[string][2]int{
		"oracle":         {500, 20},
		"crystal_dice":   {750, 35},
		"forbidden_slot": {1000, 50},
	}
	if len(listings) != len(want) {
		t.Fatalf("expected %d features, got %d", len(want), len(listings))
	}
	for _, l := range listings {
		w, ok := want[l.ID]
		if !ok || l.Cost != w[0] || l.LevelRequired != w[1] {
			t.Errorf("unexpected feature %+v", l.Feature)
		}
		if l.Unlocked || l.LevelMet || l.Affordable {
			t.Errorf("fresh user should have no access to %s", l.ID)
		}
	}
}

func TestPurchaseGates(t *testing.T) {
	ctx := context.Background()
	s, store := newShop(t)

	if err := s.Purchase(ctx, "time_machine"); !errors.Is(err, ErrUnknownFeature) {
		t.Errorf("expected ErrUnknownFeature, got %v", err)
	}

	// 19次任务，每次30金币：金币足够但等级不够
	complete(t, store, 19, 30)
	if err := s.Purchase(ctx, "oracle"); !errors.Is(err, ErrLevelLocked) {
		t.Errorf("expected ErrLevelLocked, got %v", err)
	}

	complete(t, store, 1, 0)
	if err := s.Purchase(ctx, "oracle"); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	p := store.Snapshot(ctx)
	if p.Coins != 570-500 || !p.HasFeature("oracle") {
		t.Errorf("unexpected state after purchase: coins=%d features=%v", p.Coins, p.UnlockedFeatures)
	}

	if err := s.Purchase(ctx, "oracle"); !errors.Is(err, ErrAlreadyUnlocked) {
		t.Errorf("expected ErrAlreadyUnlocked, got %v", err)
	}
	if c := store.Snapshot(ctx).Coins; c != 70 {
		t.Errorf("re-purchase must not charge, coins = %d", c)
	}
}

func TestPurchaseInsufficientCoins(t *testing.T) {
	ctx := context.Background()
	s, store := newShop(t)
	complete(t, store, 35, 1)
	if err := s.Purchase(ctx, "crystal_dice"); !errors.Is(err, progress.ErrInsufficientCoins) {
		t.Errorf("expected ErrInsufficientCoins, got %v", err)
	}
	if p := store.Snapshot(ctx); p.Coins != 35 || p.HasFeature("crystal_dice") {
		t.Errorf("state changed: %+v", p)
	}
}

func TestNewRejectsDuplicates(t *testing.T) {
	_, err := New([]Feature{{ID: "a"}, {ID: "a"}}, nil, zerolog.Nop())
	if err == nil {
		t.Error("expected duplicate feature error")
	}
}

func TestPurchaseEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s, store := newShop(t)
	h := NewHandler(s)
	r := gin.New()
	r.GET("/api/shop", h.List)
	r.POST("/api/shop/:id/purchase", h.Purchase)

	post := func(id string) int {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/shop/"+id+"/purchase", nil))
		return w.Code
	}

	if code := post("nope"); code != http.StatusNotFound {
		t.Errorf("unknown feature: %d", code)
	}
	if code := post("oracle"); code != http.StatusUnprocessableEntity {
		t.Errorf("level locked: %d", code)
	}
	complete(t, store, 20, 1)
	if code := post("oracle"); code != http.StatusPaymentRequired {
		t.Errorf("insufficient coins: %d", code)
	}
	complete(t, store, 1, 500)
	if code := post("oracle"); code != http.StatusOK {
		t.Errorf("purchase: %d", code)
	}
	if code := post("oracle"); code != http.StatusConflict {
		t.Errorf("re-purchase: %d", code)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/shop", nil))
	var listings []Listing
	if err := json.Unmarshal(w.Body.Bytes(), &listings); err != nil {
		t.Fatal(err)
	}
	for _, l := range listings {
		if l.ID == "oracle" && !l.Unlocked {
			t.Error("oracle should be listed as unlocked")
		}
	}
}
