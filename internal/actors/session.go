package actors

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/economy"
	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/phi"
)

// session is one actor's trading state for one day. It sends offers and,
// while waiting for an answer, keeps answering offers addressed to it, so
// two actors buying from each other never wait on one another.
type session struct {
	self   ID
	port   Port
	env    *DayEnv
	answer func(Offer) OfferResult

	seq      uint64
	timeLeft float64
	closed   map[ID]bool     // sellers that answered SellerClosed
	dry      map[dryKey]bool // seller/product pairs that had nothing to sell
	endDay   bool
}

type dryKey struct {
	seller  ID
	product uint64
}

func newSession(self ID, port Port, env *DayEnv, shoppingTime float64, answer func(Offer) OfferResult) *session {
	return &session{
		self:     self,
		port:     port,
		env:      env,
		answer:   answer,
		timeLeft: shoppingTime,
		closed:   make(map[ID]bool),
		dry:      make(map[dryKey]bool),
	}
}

// offer sends one buy offer and blocks for its result.
func (s *session) offer(ctx context.Context, to ID, o Offer) (OfferResult, error) {
	s.seq++
	o.Seq = s.seq
	s.timeLeft -= s.env.OfferTime
	if err := s.port.Send(Message{Kind: MsgBuyOffer, From: s.self, To: to, Offer: o}); err != nil {
		return OfferResult{}, err
	}
	for {
		msg, err := s.port.Receive(ctx)
		if err != nil {
			return OfferResult{}, err
		}
		switch msg.Kind {
		case MsgBuyOffer:
			if err := s.reply(msg); err != nil {
				return OfferResult{}, err
			}
		case MsgOfferResult:
			if msg.Result.Seq == o.Seq && msg.From == to {
				return msg.Result, nil
			}
			slog.Warn("stray offer result", "actor", s.self, "from", msg.From, "seq", msg.Result.Seq)
		case MsgEndDay:
			// Cannot happen while this actor is still shopping; remember it anyway.
			s.endDay = true
		}
	}
}

func (s *session) reply(msg Message) error {
	res := s.answer(msg.Offer)
	res.Seq = msg.Offer.Seq
	res.Product = msg.Offer.Product
	return s.port.Send(Message{Kind: MsgOfferResult, From: s.self, To: msg.From, Result: res})
}

// doneShopping announces that no more offers will be initiated.
func (s *session) doneShopping() error {
	return s.port.Send(Message{Kind: MsgDoneShopping, From: s.self})
}

// idle answers offers until the market ends the day.
func (s *session) idle(ctx context.Context) error {
	for !s.endDay {
		msg, err := s.port.Receive(ctx)
		if err != nil {
			return err
		}
		switch msg.Kind {
		case MsgBuyOffer:
			if err := s.reply(msg); err != nil {
				return err
			}
		case MsgEndDay:
			s.endDay = true
		default:
			slog.Warn("unexpected message while idle", "actor", s.self, "kind", msg.Kind, "from", msg.From)
		}
	}
	return nil
}

// finish posts the actor's single Finished message.
func (s *session) finish() error {
	return s.port.Send(Message{Kind: MsgFinished, From: s.self})
}

// purchase is one buy order: tries local sellers of product until qty is
// bought, sellers run out, or time or money run out. Payment comes from the
// unreserved part of money; goods land unreserved in goods.
type purchase struct {
	product uint64
	qty     float64
	money   *economy.PropertyInfo
	goods   *economy.PropertyInfo
	memory  *PopMemory // nil for actors that keep no memory
}

type purchaseResult struct {
	bought  float64
	spent   float64
	outcome OfferOutcome // last outcome seen
}

func (s *session) buy(ctx context.Context, p purchase) (purchaseResult, error) {
	var res purchaseResult
	remaining := p.qty
	unit := s.env.Price(p.product) * (1 + s.env.PriceTolerance)
	if unit <= 0 {
		res.outcome = CancelBuy
		return res, nil
	}

	for _, seller := range s.candidates(p) {
		if !positive(remaining) {
			break
		}
		if s.timeLeft < s.env.OfferTime {
			res.outcome = NoTime
			break
		}
		afford := math.Min(remaining, p.money.Unreserved/unit)
		if !positive(afford) {
			res.outcome = CancelBuy
			break
		}

		r, err := s.offer(ctx, seller, Offer{Product: p.product, Quantity: afford, UnitPrice: unit})
		if err != nil {
			return res, err
		}
		res.outcome = r.Outcome
		if p.memory != nil {
			p.memory.Record(p.product, seller, r.Outcome)
		}

		switch r.Outcome {
		case Successful:
			if err := p.money.Expend(r.Payment); err != nil {
				return res, &economy.InvariantError{
					Ledger: "property", ID: uint64(s.self), Op: "pay",
					Detail: fmt.Sprintf("paying %g for product %d: %v", r.Payment, p.product, err),
				}
			}
			p.goods.Receive(r.Quantity)
			res.bought += r.Quantity
			res.spent += r.Payment
			remaining -= r.Quantity
		case SellerClosed:
			s.closed[seller] = true
		default:
			s.dry[dryKey{seller, p.product}] = true
		}
	}
	return res, nil
}

// candidates orders the local sellers of a product, last successful seller
// first, skipping self and anyone closed or dry.
func (s *session) candidates(p purchase) []ID {
	var preferred ID
	if p.memory != nil {
		preferred = p.memory.Get(p.product).LastSeller
	}
	var out []ID
	for _, id := range s.env.Sellers[p.product] {
		if id == s.self || s.closed[id] || s.dry[dryKey{id, p.product}] {
			continue
		}
		if id == preferred {
			out = append([]ID{id}, out...)
			continue
		}
		out = append(out, id)
	}
	return out
}

// sellFrom fills as much of o as stock allows at or above ask, crediting the
// payment to money.
func sellFrom(stock, money *economy.PropertyInfo, o Offer, ask float64) OfferResult {
	if o.UnitPrice < ask*(1-phi.Epsilon) {
		return OfferResult{Outcome: NotSuccessful, Reason: "bid below ask"}
	}
	if stock == nil || !positive(o.Quantity) {
		return OfferResult{Outcome: NotSuccessful, Reason: "out of stock"}
	}
	fill := math.Min(o.Quantity, stock.Unreserved)
	if !positive(fill) {
		return OfferResult{Outcome: NotSuccessful, Reason: "out of stock"}
	}
	if err := stock.Expend(fill); err != nil {
		return OfferResult{Outcome: NotSuccessful, Reason: err.Error()}
	}
	payment := fill * o.UnitPrice
	money.Receive(payment)
	return OfferResult{Outcome: Successful, Quantity: fill, Payment: payment}
}
