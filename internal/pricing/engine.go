package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/spn-retail/backend-pos/internal/domain"
)

// ErrInvalidOffer is returned when a stored offer row is missing the
// fields its type requires. Offer creation validates the same rules, so
// hitting this during pricing means the catalog let a bad row through.
var ErrInvalidOffer = errors.New("offer configuration invalid for its type")

// Quote is the outcome of pricing one line. Charged + Discount always
// equals unit price times quantity; no amount is rounded here.
type Quote struct {
	Charged     decimal.Decimal
	Discount    decimal.Decimal
	Description string
}

// Offer is one promotion variant. Each variant carries only the fields
// its kind needs, so a malformed combination is unrepresentable past
// the Terms conversion.
type Offer interface {
	quote(qty int64, unit decimal.Decimal) Quote
}

// BuyXGetY charges X units out of every complete group of X+Y.
type BuyXGetY struct {
	X int64
	Y int64
}

func (o BuyXGetY) quote(qty int64, unit decimal.Decimal) Quote {
	group := o.X + o.Y
	sets := qty / group
	remainder := qty % group
	chargeable := sets*o.X + remainder
	charged := unit.Mul(decimal.NewFromInt(chargeable))
	discount := unit.Mul(decimal.NewFromInt(qty - chargeable))
	return Quote{
		Charged:     charged,
		Discount:    discount,
		Description: fmt.Sprintf("Buy %d Get %d Free", o.X, o.Y),
	}
}

// Percentage takes a flat percentage off the whole line.
type Percentage struct {
	Percent decimal.Decimal
}

func (o Percentage) quote(qty int64, unit decimal.Decimal) Quote {
	gross := unit.Mul(decimal.NewFromInt(qty))
	discount := gross.Mul(o.Percent).Div(decimal.NewFromInt(100))
	return Quote{
		Charged:     gross.Sub(discount),
		Discount:    discount,
		Description: fmt.Sprintf("%s%% Off", o.Percent.String()),
	}
}

// FlatOff subtracts a fixed amount per unit, capped at the unit price
// so a line can never price below zero.
type FlatOff struct {
	Amount decimal.Decimal
}

func (o FlatOff) quote(qty int64, unit decimal.Decimal) Quote {
	perUnit := o.Amount
	if perUnit.GreaterThan(unit) {
		perUnit = unit
	}
	gross := unit.Mul(decimal.NewFromInt(qty))
	discount := perUnit.Mul(decimal.NewFromInt(qty))
	return Quote{
		Charged:     gross.Sub(discount),
		Discount:    discount,
		Description: fmt.Sprintf("%s Off per item", o.Amount.String()),
	}
}

// Price computes the charged and discount amounts for one line. It is
// pure and deterministic; preview and confirmation both call it so the
// two can never diverge for the same inputs. A nil offer charges the
// full gross amount.
func Price(qty int64, unit decimal.Decimal, offer Offer) Quote {
	if offer == nil {
		return Quote{
			Charged:  unit.Mul(decimal.NewFromInt(qty)),
			Discount: decimal.Zero,
		}
	}
	return offer.quote(qty, unit)
}

// Terms converts a stored offer row into its pricing variant,
// validating the fields the type requires.
func Terms(o domain.Offer) (Offer, error) {
	switch o.Type {
	case domain.OfferBuyXGetY:
		if o.BuyX < 1 || o.GetY < 1 {
			return nil, fmt.Errorf("%w: BUY_X_GET_Y requires positive x and y quantities", ErrInvalidOffer)
		}
		return BuyXGetY{X: int64(o.BuyX), Y: int64(o.GetY)}, nil
	case domain.OfferPercentage:
		if o.Percent.LessThanOrEqual(decimal.Zero) || o.Percent.GreaterThan(decimal.NewFromInt(100)) {
			return nil, fmt.Errorf("%w: PERCENTAGE requires a percent in (0,100]", ErrInvalidOffer)
		}
		return Percentage{Percent: o.Percent}, nil
	case domain.OfferFlat:
		if o.Flat.LessThanOrEqual(decimal.Zero) {
			return nil, fmt.Errorf("%w: FLAT requires a positive discount amount", ErrInvalidOffer)
		}
		return FlatOff{Amount: o.Flat}, nil
	default:
		return nil, fmt.Errorf("%w: unknown offer type %q", ErrInvalidOffer, o.Type)
	}
}

// RoundMoney applies currency rounding (two fractional digits). Callers
// round only when persisting or rendering, never between computations.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
