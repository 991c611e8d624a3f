package cart

import (
	"context"
	"time"

	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/geo-pricing/internal/domain/location"
	"github.com/xenking/geo-pricing/internal/domain/pricing"
)

// defaultConcurrency bounds per-cart fan-out when none is configured.
const defaultConcurrency = 8

// Pricer is the pricing surface used for repricing. *pricing.Service
// implements it.
type Pricer interface {
	Locate(ctx context.Context, ip string) location.Location
	Price(ctx context.Context, req pricing.ItemRequest) (pricing.PriceResult, error)
}

// Publisher delivers PricedEvents.
type Publisher interface {
	Publish(ctx context.Context, ev PricedEvent) error
}

// NopPublisher discards events.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, PricedEvent) error { return nil }

// Service reprices carts line by line.
type Service struct {
	pricer      Pricer
	publisher   Publisher
	concurrency int
	now         func() time.Time
}

// NewService creates a cart Service. A nil publisher discards events and a
// non-positive concurrency selects the default.
func NewService(pricer Pricer, publisher Publisher, concurrency int) *Service {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Service{
		pricer:      pricer,
		publisher:   publisher,
		concurrency: concurrency,
		now:         time.Now,
	}
}

// Reprice locates the customer once and resolves every line item
// independently. A failing item keeps its inbound price and carries the
// error; PricingApplied reports whether every item was priced.
func (s *Service) Reprice(ctx context.Context, c Cart) Result {
	lg := zctx.From(ctx)

	loc := s.pricer.Locate(ctx, c.CustomerIP)
	delivery := c.DeliveryCountry()

	items := make([]PricedItem, len(c.LineItems))
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, li := range c.LineItems {
		g.Go(func() error {
			items[i] = s.priceItem(ctx, li, delivery, loc.Country)
			return nil
		})
	}
	_ = g.Wait()

	applied := true
	for _, it := range items {
		if it.Err != nil {
			applied = false
			lg.Warn("Line item not repriced",
				zap.String("token", c.Token),
				zap.String("product_id", it.ProductID),
				zap.Error(it.Err),
			)
		}
	}

	res := Result{
		Token:           c.Token,
		LineItems:       items,
		PricingApplied:  applied,
		Timestamp:       s.now(),
		DeliveryCountry: delivery,
		Location:        loc,
	}

	if err := s.publisher.Publish(ctx, newPricedEvent(res)); err != nil {
		lg.Error("Publish cart priced event", zap.String("token", c.Token), zap.Error(err))
	}
	return res
}

func (s *Service) priceItem(ctx context.Context, li LineItem, delivery, customerCountry string) PricedItem {
	out := PricedItem{LineItem: li}

	res, err := s.pricer.Price(ctx, pricing.ItemRequest{
		ProductID:       li.ProductID,
		VariantID:       li.VariantID,
		SizeTier:        li.SizeTier,
		DeliveryCountry: delivery,
		CustomerCountry: customerCountry,
	})
	if err != nil {
		out.Err = err
		return out
	}

	out.Price = res.FinalPrice
	out.OriginalPrice = res.BasePrice
	out.AppliedDiscount = decimal.Max(res.BasePrice.Sub(res.FinalPrice), decimal.Zero)
	out.Warehouse = res.Warehouse
	return out
}
