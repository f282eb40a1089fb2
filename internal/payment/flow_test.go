package payment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/SlpAus/luna-spins-backend/internal/platform/kv"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type fakeVip struct {
	mu   sync.Mutex
	vip  bool
	sets int
	err  error
}

func (f *fakeVip) IsVip() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.vip
}

func (f *fakeVip) SetVip(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if !f.vip {
		f.sets++
	}
	f.vip = true
	return nil
}

// fakeProvider 可以让请求阻塞在 gate 上，用于模拟慢速网络
type fakeProvider struct {
	mu         sync.Mutex
	createErr  error
	statusErr  error
	approved   bool
	creates    int
	checks     int
	nextID     int
	gate       chan struct{}
	entered    chan struct{}
	lastKeys   []string
	lastAmount decimal.Decimal
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{entered: make(chan struct{}, 16)}
}

func (p *fakeProvider) wait(ctx context.Context) {
	p.mu.Lock()
	gate := p.gate
	p.mu.Unlock()
	p.entered <- struct{}{}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
		}
	}
}

func (p *fakeProvider) CreateCharge(ctx context.Context, amount decimal.Decimal, key string) (Charge, error) {
	p.wait(ctx)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.creates++
	p.lastKeys = append(p.lastKeys, key)
	p.lastAmount = amount
	if p.createErr != nil {
		return Charge{}, p.createErr
	}
	p.nextID++
	id := "ch-" + string(rune('0'+p.nextID))
	return Charge{ID: id, PaymentCode: "code-" + id}, nil
}

func (p *fakeProvider) ChargeStatus(ctx context.Context, id string) (Status, error) {
	p.wait(ctx)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checks++
	if p.statusErr != nil {
		return Status{}, p.statusErr
	}
	if p.approved {
		return Status{Approved: true, Raw: "approved"}, nil
	}
	return Status{Raw: "pending"}, nil
}

func (p *fakeProvider) set(fn func(p *fakeProvider)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p)
}

type flowFixture struct {
	flow     *Flow
	provider *fakeProvider
	store    *fakeVip
	backend  *kv.Memory
}

func newFlowFixture(t *testing.T) flowFixture {
	t.Helper()
	provider := newFakeProvider()
	store := &fakeVip{}
	backend := kv.NewMemory()
	flow, err := NewFlow(context.Background(), provider, store, backend, decimal.RequireFromString("1.00"), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	return flowFixture{flow: flow, provider: provider, store: store, backend: backend}
}

func pointer(t *testing.T, b kv.Backend) (string, bool) {
	t.Helper()
	v, ok, err := b.Get(context.Background(), kv.PaymentPointerKey)
	if err != nil {
		t.Fatal(err)
	}
	return v, ok
}

func TestCreateChargePersistsPointer(t *testing.T) {
	f := newFlowFixture(t)
	if v := f.flow.View(); v.State != StateNoCharge {
		t.Fatalf("initial state %s", v.State)
	}
	view, err := f.flow.CreateCharge(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if view.State != StateAwaitingPayment || view.ChargeID == "" || view.PaymentCode == "" {
		t.Errorf("unexpected view %+v", view)
	}
	if id, ok := pointer(t, f.backend); !ok || id != view.ChargeID {
		t.Errorf("pointer = %q/%v, want %q", id, ok, view.ChargeID)
	}
	if !f.provider.lastAmount.Equal(decimal.RequireFromString("1")) {
		t.Errorf("amount %s", f.provider.lastAmount)
	}
}

func TestCreateChargeFailureSurfacesProviderMessage(t *testing.T) {
	f := newFlowFixture(t)
	f.provider.set(func(p *fakeProvider) {
		p.createErr = &ProviderError{StatusCode: 400, Message: "Payment was rejected by the provider"}
	})

	view, err := f.flow.CreateCharge(context.Background())
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if view.State != StateFailed || view.Message != "Payment was rejected by the provider" {
		t.Errorf("unexpected view %+v", view)
	}
	if _, ok := pointer(t, f.backend); ok {
		t.Error("failed creation must not persist a pointer")
	}

	// 用户可以再次尝试，没有自动重试
	if f.provider.creates != 1 {
		t.Errorf("provider called %d times", f.provider.creates)
	}
	f.provider.set(func(p *fakeProvider) { p.createErr = nil })
	view, err = f.flow.CreateCharge(context.Background())
	if err != nil || view.State != StateAwaitingPayment || view.Message != "" {
		t.Errorf("retry: %+v %v", view, err)
	}
	if f.provider.lastKeys[0] == f.provider.lastKeys[1] {
		t.Error("each creation needs its own idempotency key")
	}
}

func TestCreateChargeNetworkFailure(t *testing.T) {
	f := newFlowFixture(t)
	f.provider.set(func(p *fakeProvider) { p.createErr = errors.New("connection refused") })
	view, err := f.flow.CreateCharge(context.Background())
	if err == nil || view.State != StateFailed || view.Message == "" {
		t.Errorf("unexpected result %+v %v", view, err)
	}
}

func TestCreateChargeGuards(t *testing.T) {
	f := newFlowFixture(t)
	f.provider.set(func(p *fakeProvider) { p.gate = make(chan struct{}) })

	result := make(chan error, 1)
	go func() {
		_, err := f.flow.CreateCharge(context.Background())
		result <- err
	}()
	<-f.provider.entered

	if v := f.flow.View(); v.State != StateCreating {
		t.Errorf("state during creation %s", v.State)
	}
	if _, err := f.flow.CreateCharge(context.Background()); !errors.Is(err, ErrCreateInProgress) {
		t.Errorf("expected ErrCreateInProgress, got %v", err)
	}
	close(f.provider.gate)
	if err := <-result; err != nil {
		t.Fatal(err)
	}

	f.store.vip = true
	if _, err := f.flow.CreateCharge(context.Background()); !errors.Is(err, ErrAlreadyVip) {
		t.Errorf("expected ErrAlreadyVip, got %v", err)
	}
}

func TestCheckTransitions(t *testing.T) {
	ctx := context.Background()
	f := newFlowFixture(t)

	if _, err := f.flow.Check(ctx, TriggerManual); !errors.Is(err, ErrNoCharge) {
		t.Errorf("check without charge: %v", err)
	}

	if _, err := f.flow.CreateCharge(ctx); err != nil {
		t.Fatal(err)
	}

	view, err := f.flow.Check(ctx, TriggerManual)
	if err != nil || view.State != StateAwaitingPayment || view.Message != msgNotPaidYet {
		t.Errorf("pending check: %+v %v", view, err)
	}

	f.provider.set(func(p *fakeProvider) { p.statusErr = &ProviderError{StatusCode: 500, Message: "internal_error"} })
	view, err = f.flow.Check(ctx, TriggerManual)
	if err == nil || view.State != StateAwaitingPayment || view.Message != "internal_error" {
		t.Errorf("provider error: %+v %v", view, err)
	}

	f.provider.set(func(p *fakeProvider) {
		p.statusErr = nil
		p.approved = true
	})
	view, err = f.flow.Check(ctx, TriggerManual)
	if err != nil || view.State != StateApproved || view.ChargeID != "" || view.PaymentCode != "" {
		t.Errorf("approval: %+v %v", view, err)
	}
	if !f.store.IsVip() {
		t.Error("approval must set VIP")
	}
	if _, ok := pointer(t, f.backend); ok {
		t.Error("approval must clear the pointer")
	}

	checks := f.provider.checks
	for i := 0; i < 3; i++ {
		view, err = f.flow.Check(ctx, TriggerManual)
		if err != nil || view.State != StateApproved {
			t.Fatalf("repeat check: %+v %v", view, err)
		}
	}
	if f.store.sets != 1 || f.provider.checks != checks {
		t.Errorf("approval must be idempotent: sets=%d checks=%d", f.store.sets, f.provider.checks-checks)
	}
}

func TestSetVipFailureKeepsPointer(t *testing.T) {
	ctx := context.Background()
	f := newFlowFixture(t)
	_, _ = f.flow.CreateCharge(ctx)
	f.provider.set(func(p *fakeProvider) { p.approved = true })
	f.store.err = errors.New("disk full")

	view, err := f.flow.Check(ctx, TriggerManual)
	if err == nil || view.State != StateAwaitingPayment {
		t.Fatalf("expected failure, got %+v %v", view, err)
	}
	if _, ok := pointer(t, f.backend); !ok {
		t.Error("pointer must survive so the check can be retried")
	}

	f.store.err = nil
	if view, err := f.flow.Check(ctx, TriggerManual); err != nil || view.State != StateApproved {
		t.Errorf("retry: %+v %v", view, err)
	}
}

func TestConcurrentChecksCoalesce(t *testing.T) {
	ctx := context.Background()
	f := newFlowFixture(t)
	_, _ = f.flow.CreateCharge(ctx)
	<-f.provider.entered // CreateCharge 的那次进入

	f.provider.set(func(p *fakeProvider) {
		p.gate = make(chan struct{})
		p.approved = true
	})

	var wg sync.WaitGroup
	views := make([]View, 3)
	triggers := []Trigger{TriggerManual, TriggerFocus, TriggerWebhook}
	wg.Add(1)
	go func() {
		defer wg.Done()
		views[0], _ = f.flow.Check(ctx, triggers[0])
	}()
	<-f.provider.entered

	if v := f.flow.View(); !v.Checking {
		t.Error("view should report an in-flight check")
	}
	for i := 1; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			views[i], _ = f.flow.Check(ctx, triggers[i])
		}(i)
	}
	// 让后两个调用有机会进入等待
	time.Sleep(50 * time.Millisecond)
	close(f.provider.gate)
	wg.Wait()

	if f.provider.checks != 1 {
		t.Errorf("expected a single provider call, got %d", f.provider.checks)
	}
	for i, v := range views {
		if v.State != StateApproved {
			t.Errorf("caller %d saw %s", i, v.State)
		}
	}
	if f.store.sets != 1 {
		t.Errorf("SetVip called %d times", f.store.sets)
	}
}

func TestStaleCheckIsIgnored(t *testing.T) {
	ctx := context.Background()
	f := newFlowFixture(t)
	_, _ = f.flow.CreateCharge(ctx)
	<-f.provider.entered

	f.provider.set(func(p *fakeProvider) {
		p.gate = make(chan struct{})
		p.approved = true
	})
	done := make(chan View, 1)
	go func() {
		v, _ := f.flow.Check(ctx, TriggerManual)
		done <- v
	}()
	<-f.provider.entered

	if _, err := f.flow.Abandon(ctx); err != nil {
		t.Fatal(err)
	}
	close(f.provider.gate)
	v := <-done

	if v.State != StateNoCharge || f.store.IsVip() {
		t.Errorf("stale approval was applied: %+v vip=%v", v, f.store.IsVip())
	}
}

func TestAbandonDuringCreation(t *testing.T) {
	ctx := context.Background()
	f := newFlowFixture(t)
	f.provider.set(func(p *fakeProvider) { p.gate = make(chan struct{}) })

	result := make(chan error, 1)
	go func() {
		_, err := f.flow.CreateCharge(ctx)
		result <- err
	}()
	<-f.provider.entered
	if _, err := f.flow.Abandon(ctx); err != nil {
		t.Fatal(err)
	}
	close(f.provider.gate)

	if err := <-result; !errors.Is(err, ErrSuperseded) {
		t.Errorf("expected ErrSuperseded, got %v", err)
	}
	if v := f.flow.View(); v.State != StateNoCharge || v.ChargeID != "" {
		t.Errorf("abandoned creation leaked into state: %+v", v)
	}
	if _, ok := pointer(t, f.backend); ok {
		t.Error("abandoned creation must not persist a pointer")
	}
}

func TestAbandon(t *testing.T) {
	ctx := context.Background()
	f := newFlowFixture(t)
	_, _ = f.flow.CreateCharge(ctx)

	f.backend.SetFailWrites(true)
	if _, err := f.flow.Abandon(ctx); err == nil {
		t.Error("expected error when the pointer cannot be removed")
	}
	if v := f.flow.View(); v.State != StateAwaitingPayment {
		t.Errorf("failed abandon changed state to %s", v.State)
	}

	f.backend.SetFailWrites(false)
	view, err := f.flow.Abandon(ctx)
	if err != nil || view.State != StateNoCharge {
		t.Errorf("abandon: %+v %v", view, err)
	}
	if _, ok := pointer(t, f.backend); ok {
		t.Error("pointer should be deleted")
	}
}

func TestOnFocus(t *testing.T) {
	ctx := context.Background()
	f := newFlowFixture(t)

	if _, checked, _ := f.flow.OnFocus(ctx); checked {
		t.Error("no charge: focus must not check")
	}

	_, _ = f.flow.CreateCharge(ctx)
	<-f.provider.entered
	_, checked, err := f.flow.OnFocus(ctx)
	if !checked || err != nil {
		t.Errorf("pending charge: checked=%v err=%v", checked, err)
	}

	f.store.vip = true
	before := f.provider.checks
	if _, checked, _ := f.flow.OnFocus(ctx); checked || f.provider.checks != before {
		t.Error("VIP users must not trigger checks")
	}
}

func TestNotifyIgnoresOtherCharges(t *testing.T) {
	ctx := context.Background()
	f := newFlowFixture(t)
	view, _ := f.flow.CreateCharge(ctx)

	if _, checked, _ := f.flow.Notify(ctx, "someone-else"); checked {
		t.Error("notification for another charge must be ignored")
	}
	f.provider.set(func(p *fakeProvider) { p.approved = true })
	v, checked, err := f.flow.Notify(ctx, view.ChargeID)
	if !checked || err != nil || v.State != StateApproved {
		t.Errorf("notify: %+v checked=%v err=%v", v, checked, err)
	}
}

func TestResumeFromPersistedPointer(t *testing.T) {
	ctx := context.Background()
	backend := kv.NewMemory()
	_ = backend.Set(ctx, kv.PaymentPointerKey, "ch-42")
	provider := newFakeProvider()
	provider.approved = true
	store := &fakeVip{}

	flow, err := NewFlow(ctx, provider, store, backend, decimal.NewFromInt(1), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	v := flow.View()
	if v.State != StateAwaitingPayment || v.ChargeID != "ch-42" || v.PaymentCode != "" {
		t.Fatalf("resume: %+v", v)
	}
	if v, checked, err := flow.OnFocus(ctx); !checked || err != nil || v.State != StateApproved {
		t.Errorf("focus after resume: %+v %v %v", v, checked, err)
	}
}

func TestNewFlowForVipClearsPointer(t *testing.T) {
	ctx := context.Background()
	backend := kv.NewMemory()
	_ = backend.Set(ctx, kv.PaymentPointerKey, "ch-1")
	flow, err := NewFlow(ctx, newFakeProvider(), &fakeVip{vip: true}, backend, decimal.NewFromInt(1), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if flow.View().State != StateApproved {
		t.Error("VIP user should start approved")
	}
	if _, ok := pointer(t, backend); ok {
		t.Error("leftover pointer should be removed")
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"1.00", false},
		{" 9.90 ", false},
		{"0", true},
		{"-1", true},
		{"abc", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			_, err := ParseAmount(tt.in)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseAmount(%q) err = %v", tt.in, err)
			}
		})
	}
}
