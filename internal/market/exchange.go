package market

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/actors"
)

// exchange routes in-market messages between local actors. Each actor has an
// unbounded mailbox, so Send never blocks and two actors offering to each
// other cannot deadlock. The exchange answers on behalf of actors that have
// finished or do not exist, and ends the day once everyone is done shopping.
type exchange struct {
	mu       sync.Mutex
	boxes    map[actors.ID]*mailbox
	done     map[actors.ID]bool // posted DoneShopping (or Finished)
	finished map[actors.ID]bool
	endDay   bool
	closed   chan struct{} // closed once every actor has finished

	tally  map[uint64]*tally
	offers int
	trades int
}

type tally struct {
	demand   float64
	volume   float64
	turnover float64
}

func newExchange(ids []actors.ID) *exchange {
	ex := &exchange{
		boxes:    make(map[actors.ID]*mailbox, len(ids)),
		done:     make(map[actors.ID]bool, len(ids)),
		finished: make(map[actors.ID]bool, len(ids)),
		closed:   make(chan struct{}),
		tally:    make(map[uint64]*tally),
	}
	for _, id := range ids {
		ex.boxes[id] = newMailbox()
	}
	if len(ids) == 0 {
		close(ex.closed)
	}
	return ex
}

// port returns the handle actor id uses to talk to the exchange.
func (ex *exchange) port(id actors.ID) actors.Port {
	return &port{ex: ex, id: id, box: ex.boxes[id]}
}

func (ex *exchange) tallyFor(product uint64) *tally {
	t, ok := ex.tally[product]
	if !ok {
		t = &tally{}
		ex.tally[product] = t
	}
	return t
}

func (ex *exchange) route(from actors.ID, m actors.Message) error {
	m.From = from
	ex.mu.Lock()
	defer ex.mu.Unlock()

	if ex.finished[from] {
		return fmt.Errorf("actor %d sent %s after finishing", from, m.Kind)
	}

	switch m.Kind {
	case actors.MsgBuyOffer:
		ex.offers++
		ex.tallyFor(m.Offer.Product).demand += m.Offer.Quantity
		box, ok := ex.boxes[m.To]
		switch {
		case !ok:
			ex.autoReply(m, actors.NotSuccessful, "unknown actor")
		case ex.finished[m.To]:
			ex.autoReply(m, actors.SellerClosed, "")
		default:
			box.push(m)
		}

	case actors.MsgOfferResult:
		if m.Result.Outcome == actors.Successful {
			ex.trades++
			t := ex.tallyFor(m.Result.Product)
			t.volume += m.Result.Quantity
			t.turnover += m.Result.Payment
		}
		box, ok := ex.boxes[m.To]
		if !ok {
			slog.Warn("offer result for unknown actor", "from", from, "to", m.To)
			return nil
		}
		box.push(m)

	case actors.MsgDoneShopping:
		ex.done[from] = true
		ex.maybeEndDay()

	case actors.MsgFinished:
		ex.done[from] = true
		ex.finished[from] = true
		// Nobody will read this mailbox again; answer what is left in it.
		for _, pending := range ex.boxes[from].drain() {
			if pending.Kind == actors.MsgBuyOffer {
				ex.autoReply(pending, actors.SellerClosed, "")
			}
		}
		ex.maybeEndDay()
		if len(ex.finished) == len(ex.boxes) {
			close(ex.closed)
		}

	default:
		return fmt.Errorf("actor %d sent unroutable %s", from, m.Kind)
	}
	return nil
}

// autoReply answers offer m on behalf of its addressee. Caller holds ex.mu.
func (ex *exchange) autoReply(m actors.Message, outcome actors.OfferOutcome, reason string) {
	box, ok := ex.boxes[m.From]
	if !ok {
		return
	}
	box.push(actors.Message{
		Kind: actors.MsgOfferResult,
		From: m.To,
		To:   m.From,
		Result: actors.OfferResult{
			Seq:     m.Offer.Seq,
			Product: m.Offer.Product,
			Outcome: outcome,
			Reason:  reason,
		},
	})
}

// maybeEndDay broadcasts EndDay once every actor is done shopping. Caller
// holds ex.mu.
func (ex *exchange) maybeEndDay() {
	if ex.endDay || len(ex.done) < len(ex.boxes) {
		return
	}
	ex.endDay = true
	for id, box := range ex.boxes {
		if !ex.finished[id] {
			box.push(actors.Message{Kind: actors.MsgEndDay, To: id})
		}
	}
}

func (ex *exchange) hasFinished(id actors.ID) bool {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	return ex.finished[id]
}

// port is an actor's view of the exchange.
type port struct {
	ex  *exchange
	id  actors.ID
	box *mailbox
}

func (p *port) Send(m actors.Message) error { return p.ex.route(p.id, m) }

func (p *port) Receive(ctx context.Context) (actors.Message, error) {
	return p.box.receive(ctx)
}

// mailbox is an unbounded FIFO with a wake-up channel.
type mailbox struct {
	mu     sync.Mutex
	queue  []actors.Message
	notify chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{notify: make(chan struct{}, 1)}
}

func (b *mailbox) push(m actors.Message) {
	b.mu.Lock()
	b.queue = append(b.queue, m)
	b.mu.Unlock()
	select {
	case b.notify <- struct{}{}:
	default:
	}
}

func (b *mailbox) drain() []actors.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.queue
	b.queue = nil
	return out
}

func (b *mailbox) receive(ctx context.Context) (actors.Message, error) {
	for {
		b.mu.Lock()
		if len(b.queue) > 0 {
			m := b.queue[0]
			b.queue = b.queue[1:]
			b.mu.Unlock()
			return m, nil
		}
		b.mu.Unlock()
		select {
		case <-b.notify:
		case <-ctx.Done():
			return actors.Message{}, ctx.Err()
		}
	}
}
