// Package pricing resolves the applicable nightly rate for a client
// from social-operator price conventions, including per-month overrides
// (monthly dynamic pricing).
package pricing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/newage31/Ampulse-sub004/internal/model"
)

// ErrNoConvention signals that the client is linked to an operator that
// has no convention covering the requested category and date. It is a
// review flag, not a failure: the market-rate quote is still returned.
var ErrNoConvention = errors.New("no convention for operator, category and date")

// Source provides the master data the resolver reads. Implemented by
// the repository.
type Source interface {
	GetClient(ctx context.Context, id int64) (*model.Client, error)
	GetConventionAt(ctx context.Context, operatorID int64, category string, day time.Time) (*model.PriceConvention, error)
}

// Resolver computes nightly price quotes. It is read-only and safe for
// unlimited concurrent use.
type Resolver struct {
	source Source
}

// NewResolver creates a resolver over the given data source.
func NewResolver(source Source) *Resolver {
	return &Resolver{source: source}
}

// Quote computes the nightly rate for one date from already-loaded data.
// conv may be nil, meaning no convention applies and the base rate is
// quoted. The function is pure: identical arguments always yield an
// identical quote, which lets reservation snapshots rely on it.
func Quote(conv *model.PriceConvention, baseRateCents int64, day time.Time) model.PriceQuote {
	if conv == nil {
		return model.PriceQuote{RateCents: baseRateCents, Source: model.QuoteSourceBase}
	}

	id := conv.ID

	if rate, ok := conv.MonthlyOverrides[day.Month()]; ok {
		return model.PriceQuote{RateCents: rate, Source: model.QuoteSourceMonthlyOverride, ConventionID: &id}
	}

	switch conv.Kind {
	case model.RateKindFlat:
		return model.PriceQuote{RateCents: conv.FlatRateCents, Source: model.QuoteSourceFlat, ConventionID: &id}
	case model.RateKindPercent:
		// the discount applies to the current base rate, so base-rate
		// changes propagate to not-yet-booked dates
		rate := int64(math.Round(float64(baseRateCents) * (1 - conv.PercentOff/100)))
		return model.PriceQuote{RateCents: rate, Source: model.QuoteSourcePercent, ConventionID: &id}
	default:
		return model.PriceQuote{RateCents: baseRateCents, Source: model.QuoteSourceBase}
	}
}

// Resolve returns the nightly quote for the client on the given room
// category and date, against the given current base rate. The second
// return value is true when the client's operator has no convention
// covering the date and the quote fell back to the market rate.
func (r *Resolver) Resolve(ctx context.Context, clientID int64, category string, baseRateCents int64, day time.Time) (model.PriceQuote, bool, error) {
	client, err := r.source.GetClient(ctx, clientID)
	if err != nil {
		return model.PriceQuote{}, false, fmt.Errorf("get client: %w", err)
	}

	if client.OperatorID == nil {
		return Quote(nil, baseRateCents, day), false, nil
	}

	conv, err := r.source.GetConventionAt(ctx, *client.OperatorID, category, day)
	if err != nil {
		if errors.Is(err, ErrNoConvention) {
			return Quote(nil, baseRateCents, day), true, nil
		}
		return model.PriceQuote{}, false, fmt.Errorf("get convention: %w", err)
	}

	return Quote(conv, baseRateCents, day), false, nil
}
