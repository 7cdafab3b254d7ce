package actors

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/catalog"
	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/demographics"
	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/economy"
	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/phi"
)

const testCatalog = `
wants:
  - {id: 1, name: nutrition, decay: 0.5}
  - {id: 2, name: shelter, decay: 1}
products:
  - {id: 1, name: coin, base_value: 1, currency: true}
  - {id: 2, name: labor, base_value: 1, decay: 1, labor: true}
  - id: 3
    name: grain
    class: 10
    base_value: 2
    consumption_wants: [{want: 1, amount: 1}]
  - id: 4
    name: hut
    base_value: 20
    ownership_wants: [{want: 2, amount: 1}]
processes:
  - id: 1
    name: farming
    inputs: [{product: 2, amount: 2}]
    outputs: [{product: 3, amount: 3}]
    daily_runs: 2
`

const testDemographics = `
species:
  - id: 1
    name: human
    labor_per_capita: 1
    desires:
      - {kind: class, id: 10, amount: 1, start_tier: 0}
      - {kind: want, id: 1, amount: 0.5, start_tier: 1}
`

func testEnv(t *testing.T) *DayEnv {
	t.Helper()
	cat, err := catalog.Parse([]byte(testCatalog))
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	demo, err := demographics.Parse([]byte(testDemographics))
	if err != nil {
		t.Fatalf("demographics: %v", err)
	}
	return &DayEnv{
		Day:            1,
		Market:         1,
		Catalog:        cat,
		Demographics:   demo,
		History:        economy.NewHistory(),
		Sellers:        map[uint64][]ID{},
		ShoppingTime:   1,
		OfferTime:      1,
		PriceTolerance: 0.25,
		Markup:         0.1,
	}
}

// fakePort records sent messages and lets a test react to them.
type fakePort struct {
	inbox  chan Message
	mu     sync.Mutex
	sent   []Message
	onSend func(Message)
}

func newFakePort(onSend func(p *fakePort, m Message)) *fakePort {
	p := &fakePort{inbox: make(chan Message, 64)}
	if onSend != nil {
		p.onSend = func(m Message) { onSend(p, m) }
	}
	return p
}

func (p *fakePort) Send(m Message) error {
	p.mu.Lock()
	p.sent = append(p.sent, m)
	cb := p.onSend
	p.mu.Unlock()
	if cb != nil {
		cb(m)
	}
	return nil
}

func (p *fakePort) Receive(ctx context.Context) (Message, error) {
	select {
	case m := <-p.inbox:
		return m, nil
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func (p *fakePort) sentOf(kind MessageKind) []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Message
	for _, m := range p.sent {
		if m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}

// endDayOnDone ends the day as soon as the actor is done shopping.
func endDayOnDone(p *fakePort, m Message) {
	if m.Kind == MsgDoneShopping {
		p.inbox <- Message{Kind: MsgEndDay}
	}
}

func runDay(t *testing.T, a Participant, port Port, env *DayEnv) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.RunMarketDay(ctx, port, env); err != nil {
		t.Fatalf("run market day: %v", err)
	}
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestPop_ConsumesReservedStock(t *testing.T) {
	env := testEnv(t)
	pop := NewPop(7, "river", 1, 1, 0, 4)
	pop.Property.Ledger(3).AddProperty(10)
	pop.Property.Ledger(1).AddProperty(20)

	port := newFakePort(endDayOnDone)
	runDay(t, pop, port, env)

	if got := pop.Stock(3); !approx(got, 6) {
		t.Fatalf("grain: got %v want 6", got)
	}
	if _, ok := pop.Property[2]; ok {
		t.Fatalf("unsold labor should decay away")
	}
	// 4 grain consumed -> 4 nutrition, 2 consumed by the want desire, half the rest decays.
	if w := pop.Wants[1]; w == nil || !approx(w.TotalCurrent, 1) {
		t.Fatalf("nutrition: %+v", pop.Wants[1])
	}
	want := economy.TieredValue{Value: 1 + 1/phi.TierRatio}
	if !pop.Satisfaction.Equal(want) {
		t.Fatalf("satisfaction: got %v want %v", pop.Satisfaction, want)
	}
	if len(port.sentOf(MsgFinished)) != 1 || len(port.sentOf(MsgBuyOffer)) != 0 {
		t.Fatalf("messages: %+v", port.sent)
	}
	if err := pop.Property.Check(pop.ID); err != nil {
		t.Fatalf("books: %v", err)
	}
}

func TestPop_SellsLaborWhileIdle(t *testing.T) {
	env := testEnv(t)
	pop := NewPop(7, "river", 1, 1, 0, 4)
	pop.Property.Ledger(3).AddProperty(10)

	port := newFakePort(func(p *fakePort, m Message) {
		if m.Kind == MsgDoneShopping {
			p.inbox <- Message{Kind: MsgBuyOffer, From: 99, To: 7, Offer: Offer{Seq: 1, Product: 2, Quantity: 3, UnitPrice: 1.5}}
			p.inbox <- Message{Kind: MsgBuyOffer, From: 99, To: 7, Offer: Offer{Seq: 2, Product: 3, Quantity: 1, UnitPrice: 5}}
			p.inbox <- Message{Kind: MsgEndDay}
		}
	})
	runDay(t, pop, port, env)

	results := port.sentOf(MsgOfferResult)
	if len(results) != 2 {
		t.Fatalf("results: %+v", results)
	}
	if r := results[0].Result; r.Outcome != Successful || r.Seq != 1 || !approx(r.Quantity, 3) || !approx(r.Payment, 4.5) {
		t.Fatalf("labor sale: %+v", r)
	}
	if r := results[1].Result; r.Outcome != NotSuccessful || results[1].To != 99 {
		t.Fatalf("grain is not for sale: %+v", results[1])
	}
	if got := pop.Stock(1); !approx(got, 4.5) || !approx(pop.Earned, 4.5) {
		t.Fatalf("money: %v earned %v", got, pop.Earned)
	}
}

// acceptAll answers every buy offer in full.
func acceptAll(p *fakePort, m Message) {
	switch m.Kind {
	case MsgBuyOffer:
		p.inbox <- Message{Kind: MsgOfferResult, From: m.To, To: m.From, Result: OfferResult{
			Seq: m.Offer.Seq, Product: m.Offer.Product, Outcome: Successful,
			Quantity: m.Offer.Quantity, Payment: m.Offer.Quantity * m.Offer.UnitPrice,
		}}
	case MsgDoneShopping:
		p.inbox <- Message{Kind: MsgEndDay}
	}
}

func TestPop_ShopsForShortfall(t *testing.T) {
	env := testEnv(t)
	env.Sellers[3] = []ID{50}
	pop := NewPop(7, "river", 1, 1, 0, 4)
	pop.Property.Ledger(1).AddProperty(20)

	port := newFakePort(acceptAll)
	runDay(t, pop, port, env)

	offers := port.sentOf(MsgBuyOffer)
	if len(offers) != 2 {
		t.Fatalf("offers: %+v", offers)
	}
	// Class desire (tier 0) is bought before the nutrition desire (tier 1).
	if !approx(offers[0].Offer.Quantity, 4) || !approx(offers[1].Offer.Quantity, 2) {
		t.Fatalf("offer sizes: %v, %v", offers[0].Offer.Quantity, offers[1].Offer.Quantity)
	}
	if !approx(offers[0].Offer.UnitPrice, 2.5) {
		t.Fatalf("bid: %v", offers[0].Offer.UnitPrice)
	}
	if got := pop.Stock(1); !approx(got, 5) || !approx(pop.Spent, 15) {
		t.Fatalf("money left %v spent %v", got, pop.Spent)
	}
	k := pop.Memory.Get(3)
	if k.Successes != 2 || k.LastSeller != 50 || k.SuccessRate != 1 {
		t.Fatalf("knowledge: %+v", k)
	}
}

func TestPop_RunsOutOfTime(t *testing.T) {
	env := testEnv(t)
	env.Sellers[3] = []ID{50}
	env.ShoppingTime = 0.25 // one offer for a pop of four
	pop := NewPop(7, "river", 1, 1, 0, 4)
	pop.Property.Ledger(1).AddProperty(20)

	port := newFakePort(acceptAll)
	runDay(t, pop, port, env)

	if n := len(port.sentOf(MsgBuyOffer)); n != 1 {
		t.Fatalf("offers: got %d want 1", n)
	}
	if got := pop.Stock(1); !approx(got, 10) {
		t.Fatalf("money: %v", got)
	}
}

func TestPop_SellerClosedIsNotRetried(t *testing.T) {
	env := testEnv(t)
	env.Sellers[3] = []ID{50}
	pop := NewPop(7, "river", 1, 1, 0, 4)
	pop.Property.Ledger(1).AddProperty(20)

	port := newFakePort(func(p *fakePort, m Message) {
		switch m.Kind {
		case MsgBuyOffer:
			p.inbox <- Message{Kind: MsgOfferResult, From: m.To, To: m.From,
				Result: OfferResult{Seq: m.Offer.Seq, Product: m.Offer.Product, Outcome: SellerClosed}}
		case MsgDoneShopping:
			p.inbox <- Message{Kind: MsgEndDay}
		}
	})
	runDay(t, pop, port, env)

	if n := len(port.sentOf(MsgBuyOffer)); n != 1 {
		t.Fatalf("offers: got %d want 1", n)
	}
	k := pop.Memory.Get(3)
	if !approx(k.SuccessRate, 1-phi.Agnosis) || k.Attempts != 1 {
		t.Fatalf("knowledge: %+v", k)
	}
}

func TestFirm_ProducesAndSells(t *testing.T) {
	env := testEnv(t)
	firm := NewFirm(20, "farm", 1, 1)
	firm.Property.Ledger(2).AddProperty(10)

	port := newFakePort(func(p *fakePort, m Message) {
		if m.Kind == MsgDoneShopping {
			p.inbox <- Message{Kind: MsgBuyOffer, From: 7, To: 20, Offer: Offer{Seq: 1, Product: 3, Quantity: 10, UnitPrice: 3}}
			p.inbox <- Message{Kind: MsgBuyOffer, From: 7, To: 20, Offer: Offer{Seq: 2, Product: 2, Quantity: 1, UnitPrice: 3}}
			p.inbox <- Message{Kind: MsgEndDay}
		}
	})
	runDay(t, firm, port, env)

	if firm.Runs != 2 {
		t.Fatalf("runs: %d", firm.Runs)
	}
	results := port.sentOf(MsgOfferResult)
	if len(results) != 2 {
		t.Fatalf("results: %+v", results)
	}
	if r := results[0].Result; r.Outcome != Successful || !approx(r.Quantity, 6) || !approx(r.Payment, 18) {
		t.Fatalf("grain sale: %+v", r)
	}
	if r := results[1].Result; r.Outcome != NotSuccessful {
		t.Fatalf("labor is an input, not for sale: %+v", r)
	}
	if firm.Stock(3) != 0 || !approx(firm.Stock(1), 18) || !approx(firm.Revenue, 18) {
		t.Fatalf("firm books: %+v", firm.Property)
	}
	if len(port.sentOf(MsgBuyOffer)) != 0 {
		t.Fatalf("firm held enough labor and should not shop")
	}
}

func TestFirm_RejectsBidBelowAsk(t *testing.T) {
	env := testEnv(t)
	firm := NewFirm(20, "farm", 1, 1)
	firm.Property.Ledger(3).AddProperty(5)
	port := newFakePort(func(p *fakePort, m Message) {
		if m.Kind == MsgDoneShopping {
			// ask is 2·1.1 = 2.2
			p.inbox <- Message{Kind: MsgBuyOffer, From: 7, To: 20, Offer: Offer{Seq: 1, Product: 3, Quantity: 1, UnitPrice: 2.1}}
			p.inbox <- Message{Kind: MsgEndDay}
		}
	})
	runDay(t, firm, port, env)
	r := port.sentOf(MsgOfferResult)[0].Result
	if r.Outcome != NotSuccessful || r.Reason != "bid below ask" {
		t.Fatalf("result: %+v", r)
	}
}

func TestInstitutionAndState_FinishImmediately(t *testing.T) {
	env := testEnv(t)
	for _, a := range []Participant{&Institution{ID: 30}, &State{ID: 31}} {
		port := newFakePort(nil)
		runDay(t, a, port, env)
		fin := port.sentOf(MsgFinished)
		if len(fin) != 1 || fin[0].From != a.ActorID() || len(port.sent) != 1 {
			t.Fatalf("%s: %+v", a.ActorKind(), port.sent)
		}
	}
}

func TestReserve_OverlapAcrossPools(t *testing.T) {
	env := testEnv(t)
	prop := make(Property)
	prop.Ledger(3).AddProperty(5)
	desires := []Desire{
		{Kind: demographics.KindClass, Target: 10, Tier: 0, Amount: 4},
		{Kind: demographics.KindWant, Target: 1, Tier: 1, Amount: 3},
		{Kind: demographics.KindProduct, Target: 3, Tier: 2, Amount: 2},
	}
	reserve(desires, prop, map[uint64]*economy.WantInfo{}, env.Catalog)

	l := prop[3]
	if err := l.Check(); err != nil {
		t.Fatalf("books: %v", err)
	}
	if l.ClassReserve != 4 || l.WantReserve != 3 || l.SpecificReserve != 2 || !approx(l.Unreserved, 1) {
		t.Fatalf("pools: %+v", *l)
	}
	for i, d := range desires {
		if d.Shortfall() != 0 {
			t.Fatalf("desire %d short by %v", i, d.Shortfall())
		}
	}
}

func TestPopMemory_Floor(t *testing.T) {
	var m PopMemory
	for i := 0; i < 50; i++ {
		m.Record(3, 50, NotSuccessful)
	}
	if k := m.Get(3); k.SuccessRate != phi.MinSuccessRate || k.Attempts != 50 {
		t.Fatalf("floor: %+v", k)
	}
	m.Record(3, 50, NoTime)
	m.Record(3, 50, CancelBuy)
	if k := m.Get(3); k.Attempts != 50 {
		t.Fatalf("no-time and cancel must not count: %+v", k)
	}
	m.Record(3, 51, Successful)
	if k := m.Get(3); k.LastSeller != 51 || k.SuccessRate <= phi.MinSuccessRate {
		t.Fatalf("boost: %+v", k)
	}
}

func TestWantErr_StampsPopID(t *testing.T) {
	w := economy.NewWantInfo(1)
	err := wantErr(42, 1, w.Consume(-1))
	var ie *economy.InvariantError
	if !errors.As(err, &ie) || ie.ID != 42 || ie.Ledger != "want" {
		t.Fatalf("expected want invariant stamped with pop 42, got %v", err)
	}

	err = wantErr(42, 1, w.Consume(5))
	if !errors.Is(err, economy.ErrWantUnderflow) || errors.Is(err, economy.ErrInvariant) {
		t.Fatalf("expected wrapped underflow, got %v", err)
	}
}
