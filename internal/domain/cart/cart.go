// Package cart reprices storefront carts received through webhooks.
package cart

import (
	"strings"
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/geo-pricing/internal/domain/location"
	"github.com/xenking/geo-pricing/internal/domain/pricing"
)

var countryCodes = map[string]string{
	"spain":          "ES",
	"france":         "FR",
	"germany":        "DE",
	"united kingdom": "UK",
	"united states":  "US",
}

// CountryCode maps a shipping address country name to the code used by the
// price tables. Unrecognized names map to location.UnknownCountry.
func CountryCode(name string) string {
	if code, ok := countryCodes[strings.ToLower(strings.TrimSpace(name))]; ok {
		return code
	}
	return location.UnknownCountry
}

// RawField is a line item field the pricing layer does not interpret. It is
// written back unchanged.
type RawField struct {
	Name  string
	Value jx.Raw
}

// LineItem is one cart line as received.
type LineItem struct {
	ProductID string
	VariantID string
	// SizeTier is optional; when empty the catalog decides.
	SizeTier string
	Price    decimal.Decimal
	Extra    []RawField
}

// Cart is an inbound cart update.
type Cart struct {
	Token      string
	CustomerIP string
	// ShippingCountry is the address country name, e.g. "Spain".
	ShippingCountry string
	// ShippingCountryCode takes precedence over ShippingCountry when set.
	ShippingCountryCode string
	LineItems           []LineItem
}

// DeliveryCountry returns the code of the shipping destination.
func (c Cart) DeliveryCountry() string {
	if code := strings.TrimSpace(c.ShippingCountryCode); code != "" {
		return strings.ToUpper(code)
	}
	return CountryCode(c.ShippingCountry)
}

// PricedItem is a line item after repricing. When Err is set the item keeps
// its inbound price and the pricing fields are zero.
type PricedItem struct {
	LineItem
	OriginalPrice   decimal.Decimal
	AppliedDiscount decimal.Decimal
	Warehouse       pricing.Warehouse
	Err             error
}

// Result is the repriced cart.
type Result struct {
	Token           string
	LineItems       []PricedItem
	PricingApplied  bool
	Timestamp       time.Time
	DeliveryCountry string
	Location        location.Location
}

// PricedEvent is published once per repriced cart.
type PricedEvent struct {
	Token           string
	DeliveryCountry string
	CustomerCountry string
	PricingApplied  bool
	Items           []PricedEventItem
	Timestamp       time.Time
}

// PricedEventItem summarizes one line of a PricedEvent.
type PricedEventItem struct {
	ProductID     string
	VariantID     string
	OriginalPrice decimal.Decimal
	Price         decimal.Decimal
	Warehouse     pricing.Warehouse
	Error         string
}

// Encode writes the event as a JSON object.
func (e PricedEvent) Encode(enc *jx.Encoder) {
	enc.ObjStart()
	enc.FieldStart("token")
	enc.Str(e.Token)
	enc.FieldStart("delivery_country")
	enc.Str(e.DeliveryCountry)
	enc.FieldStart("customer_country")
	enc.Str(e.CustomerCountry)
	enc.FieldStart("pricing_applied")
	enc.Bool(e.PricingApplied)
	enc.FieldStart("items")
	enc.ArrStart()
	for _, it := range e.Items {
		enc.ObjStart()
		enc.FieldStart("product_id")
		enc.Str(it.ProductID)
		if it.VariantID != "" {
			enc.FieldStart("variant_id")
			enc.Str(it.VariantID)
		}
		enc.FieldStart("original_price")
		enc.Str(it.OriginalPrice.StringFixed(2))
		enc.FieldStart("price")
		enc.Str(it.Price.StringFixed(2))
		if it.Warehouse != "" {
			enc.FieldStart("warehouse")
			enc.Str(string(it.Warehouse))
		}
		if it.Error != "" {
			enc.FieldStart("error")
			enc.Str(it.Error)
		}
		enc.ObjEnd()
	}
	enc.ArrEnd()
	enc.FieldStart("timestamp")
	enc.Str(e.Timestamp.UTC().Format(time.RFC3339Nano))
	enc.ObjEnd()
}

func newPricedEvent(r Result) PricedEvent {
	ev := PricedEvent{
		Token:           r.Token,
		DeliveryCountry: r.DeliveryCountry,
		CustomerCountry: r.Location.Country,
		PricingApplied:  r.PricingApplied,
		Items:           make([]PricedEventItem, 0, len(r.LineItems)),
		Timestamp:       r.Timestamp,
	}
	for _, it := range r.LineItems {
		item := PricedEventItem{
			ProductID:     it.ProductID,
			VariantID:     it.VariantID,
			OriginalPrice: it.OriginalPrice,
			Price:         it.Price,
			Warehouse:     it.Warehouse,
		}
		if it.Err != nil {
			item.OriginalPrice = it.Price
			item.Error = it.Err.Error()
		}
		ev.Items = append(ev.Items, item)
	}
	return ev
}
