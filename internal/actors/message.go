package actors

import (
	"context"

	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/catalog"
	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/demographics"
	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/economy"
)

// MessageKind enumerates the in-market message vocabulary.
type MessageKind uint8

const (
	MsgBuyOffer     MessageKind = iota + 1 // buyer -> seller
	MsgOfferResult                         // seller -> buyer
	MsgDoneShopping                        // actor will initiate no more offers
	MsgEndDay                              // market -> actor: everyone is done shopping
	MsgFinished                            // actor has no more business today
)

func (k MessageKind) String() string {
	switch k {
	case MsgBuyOffer:
		return "buy_offer"
	case MsgOfferResult:
		return "offer_result"
	case MsgDoneShopping:
		return "done_shopping"
	case MsgEndDay:
		return "end_day"
	case MsgFinished:
		return "finished"
	}
	return "unknown"
}

// OfferOutcome is the result of one buy attempt. Every value is a normal
// outcome, never an error.
type OfferOutcome uint8

const (
	Successful    OfferOutcome = iota + 1
	NotSuccessful              // rejected; see Reason
	SellerClosed               // counterpart will not trade again today
	NoTime                     // buyer's shopping time is spent
	CancelBuy                  // buyer withdrew, e.g. could not pay
)

func (o OfferOutcome) String() string {
	switch o {
	case Successful:
		return "successful"
	case NotSuccessful:
		return "not_successful"
	case SellerClosed:
		return "seller_closed"
	case NoTime:
		return "no_time"
	case CancelBuy:
		return "cancel_buy"
	}
	return "unknown"
}

// Offer asks a seller for Quantity units of Product at UnitPrice each, paid
// in the catalog's currency.
type Offer struct {
	Seq       uint64  `json:"seq"`
	Product   uint64  `json:"product"`
	Quantity  float64 `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// OfferResult answers an Offer. Quantity and Payment are what actually
// changed hands; a seller may fill part of an offer.
type OfferResult struct {
	Seq      uint64       `json:"seq"`
	Product  uint64       `json:"product"`
	Outcome  OfferOutcome `json:"outcome"`
	Reason   string       `json:"reason,omitempty"`
	Quantity float64      `json:"quantity"`
	Payment  float64      `json:"payment"`
}

// Message is one in-market envelope. To is 0 for messages addressed to the
// market itself (DoneShopping, Finished).
type Message struct {
	Kind   MessageKind
	From   ID
	To     ID
	Offer  Offer
	Result OfferResult
}

// Port is an actor's handle on its market's exchange.
type Port interface {
	Send(Message) error
	Receive(ctx context.Context) (Message, error)
}

// DayEnv is the read-only context handed to every actor for one day.
type DayEnv struct {
	Day          uint64
	Market       uint64
	Catalog      *catalog.Catalog
	Demographics *demographics.Demographics
	History      *economy.History

	// Sellers lists, per product, the local actors that sell it.
	Sellers map[uint64][]ID

	ShoppingTime   float64 // time budget per pop member
	OfferTime      float64 // time cost of one offer
	PriceTolerance float64 // buyers bid price·(1+tolerance)
	Markup         float64 // firms ask price·(1+markup)
}

// Price returns the market price of product, falling back to its base value.
func (e *DayEnv) Price(product uint64) float64 {
	if p, ok := e.History.Price(product); ok && p > 0 {
		return p
	}
	if p, ok := e.Catalog.Product(product); ok {
		return p.BaseValue
	}
	return 0
}
