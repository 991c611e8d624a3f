package handler

import (
	"bytes"
	"maps"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/geo-pricing/internal/domain/cart"
	"github.com/xenking/geo-pricing/internal/domain/pricing"
)

// Wire types mirror the public JSON API. Each carries hand-written jx
// codecs; prices travel as JSON numbers with two decimals.

type calculatePriceReq struct {
	ProductID       string
	VariantID       string
	DeliveryCountry string
	CustomerIP      string
	SizeTier        string
	LocalAvailable  *bool
}

func (r *calculatePriceReq) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "productId":
			r.ProductID, err = decodeID(d)
		case "variantId":
			r.VariantID, err = decodeID(d)
		case "deliveryCountry":
			r.DeliveryCountry, err = decodeOptString(d)
		case "customerIP":
			r.CustomerIP, err = decodeOptString(d)
		case "sizeTier":
			r.SizeTier, err = decodeOptString(d)
		case "localAvailable":
			if d.Next() == jx.Null {
				err = d.Null()
				break
			}
			var v bool
			v, err = d.Bool()
			r.LocalAvailable = &v
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "decode %q", key)
		}
		return nil
	})
}

func (r *calculatePriceReq) validate() error {
	if r.ProductID == "" {
		return errors.New("productId is required")
	}
	if r.DeliveryCountry == "" {
		return errors.New("deliveryCountry is required")
	}
	return nil
}

func encodeQuote(e *jx.Encoder, q *pricing.Quote) {
	e.ObjStart()
	e.FieldStart("success")
	e.Bool(true)
	e.FieldStart("price")
	e.ObjStart()
	e.FieldStart("basePrice")
	encodeMoney(e, q.BasePrice)
	e.FieldStart("finalPrice")
	encodeMoney(e, q.FinalPrice)
	e.FieldStart("currency")
	e.Str(q.Currency)
	e.FieldStart("warehouse")
	e.Str(string(q.Warehouse))
	e.FieldStart("sizeTier")
	e.Str(q.SizeTier)
	e.FieldStart("multiplier")
	encodeOptMultiplier(e, q.Multiplier)
	e.FieldStart("deliveryCountry")
	e.Str(q.DeliveryCountry)
	e.FieldStart("customerCountry")
	e.Str(q.CustomerCountry)
	e.FieldStart("customerLocation")
	q.Location.Encode(e)
	e.ObjEnd()
	e.FieldStart("currency")
	e.Str(q.Currency)
	e.FieldStart("appliedMultiplier")
	encodeOptMultiplier(e, q.Multiplier)
	e.FieldStart("warehouse")
	e.Str(string(q.Warehouse))
	e.ObjEnd()
}

type pricingRulesReq struct {
	Country   string
	ProductID string
	Rules     pricing.CountryPricing
	hasRules  bool
}

func (r *pricingRulesReq) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "country":
			r.Country, err = decodeOptString(d)
		case "productId":
			r.ProductID, err = decodeID(d)
		case "rules":
			r.hasRules = true
			err = decodeCountryPricing(d, &r.Rules)
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "decode %q", key)
		}
		return nil
	})
}

func decodeCountryPricing(d *jx.Decoder, cp *pricing.CountryPricing) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "hasLocalWarehouse":
			v, err := d.Bool()
			cp.HasLocalWarehouse = v
			return err
		case "sizes":
			cp.Sizes = make(map[string]pricing.TierPrices)
			return d.Obj(func(d *jx.Decoder, tier string) error {
				var p pricing.TierPrices
				if err := d.Obj(func(d *jx.Decoder, key string) error {
					var err error
					switch key {
					case "localWarehouse":
						p.Local, err = decodeOptDecimal(d)
					case "centralWarehouse":
						p.Central, err = decodeOptDecimal(d)
					default:
						err = d.Skip()
					}
					if err != nil {
						return errors.Wrapf(err, "decode %q", key)
					}
					return nil
				}); err != nil {
					return errors.Wrapf(err, "tier %q", tier)
				}
				cp.Sizes[tier] = p
				return nil
			})
		default:
			return d.Skip()
		}
	})
}

func encodeCountryPricing(e *jx.Encoder, cp pricing.CountryPricing) {
	e.FieldStart("hasLocalWarehouse")
	e.Bool(cp.HasLocalWarehouse)
	e.FieldStart("sizes")
	e.ObjStart()
	for _, tier := range slices.Sorted(maps.Keys(cp.Sizes)) {
		p := cp.Sizes[tier]
		e.FieldStart(tier)
		e.ObjStart()
		if p.Local.Valid {
			e.FieldStart("localWarehouse")
			encodeMoney(e, p.Local.Decimal)
		}
		if p.Central.Valid {
			e.FieldStart("centralWarehouse")
			encodeMoney(e, p.Central.Decimal)
		}
		e.ObjEnd()
	}
	e.ObjEnd()
}

func encodeRuleList(e *jx.Encoder, rules []pricing.ProductCountryPricing) {
	e.ObjStart()
	e.FieldStart("success")
	e.Bool(true)
	e.FieldStart("rules")
	e.ArrStart()
	for _, r := range rules {
		e.ObjStart()
		e.FieldStart("productId")
		e.Str(r.ProductID)
		e.FieldStart("country")
		e.Str(r.Country)
		encodeCountryPricing(e, r.CountryPricing)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
}

type multiplierReq struct {
	Country        string
	MultiplierType string
	Value          decimal.NullDecimal
	RoundingRule   string
}

func (r *multiplierReq) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "country":
			r.Country, err = decodeOptString(d)
		case "multiplierType":
			r.MultiplierType, err = decodeOptString(d)
		case "value":
			r.Value, err = decodeOptDecimal(d)
		case "roundingRule":
			r.RoundingRule, err = decodeOptString(d)
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "decode %q", key)
		}
		return nil
	})
}

func encodeMultiplier(e *jx.Encoder, m pricing.MultiplierRule, withCountry bool) {
	e.ObjStart()
	if withCountry {
		e.FieldStart("country")
		e.Str(m.Country)
	}
	e.FieldStart("type")
	e.Str(string(m.Type))
	e.FieldStart("value")
	e.Num(jx.Num(m.Value.String()))
	e.FieldStart("roundingRule")
	e.Str(string(m.Rounding))
	e.ObjEnd()
}

func encodeOptMultiplier(e *jx.Encoder, m *pricing.MultiplierRule) {
	if m == nil {
		e.Null()
		return
	}
	encodeMultiplier(e, *m, false)
}

func encodeMultiplierList(e *jx.Encoder, rules []pricing.MultiplierRule) {
	e.ObjStart()
	e.FieldStart("success")
	e.Bool(true)
	e.FieldStart("multipliers")
	e.ArrStart()
	for _, m := range rules {
		encodeMultiplier(e, m, true)
	}
	e.ArrEnd()
	e.ObjEnd()
}

// Line item keys rewritten on output; inbound values are dropped.
var ownedItemFields = map[string]struct{}{
	"price":            {},
	"original_price":   {},
	"applied_discount": {},
	"warehouse":        {},
	"pricing_error":    {},
}

func decodeCart(d *jx.Decoder, c *cart.Cart) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "token":
			c.Token, err = decodeOptString(d)
		case "customer_ip":
			c.CustomerIP, err = decodeOptString(d)
		case "shipping_address":
			err = decodeShippingAddress(d, c)
		case "line_items":
			err = d.Arr(func(d *jx.Decoder) error {
				var li cart.LineItem
				if err := decodeLineItem(d, &li); err != nil {
					return errors.Wrapf(err, "item %d", len(c.LineItems))
				}
				c.LineItems = append(c.LineItems, li)
				return nil
			})
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "decode %q", key)
		}
		return nil
	})
}

func decodeShippingAddress(d *jx.Decoder, c *cart.Cart) error {
	if d.Next() == jx.Null {
		return d.Null()
	}
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "country":
			c.ShippingCountry, err = decodeOptString(d)
		case "country_code":
			c.ShippingCountryCode, err = decodeOptString(d)
		default:
			err = d.Skip()
		}
		return err
	})
}

func decodeLineItem(d *jx.Decoder, li *cart.LineItem) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		if _, owned := ownedItemFields[key]; owned {
			if key != "price" {
				return d.Skip()
			}
			v, err := decodeOptDecimal(d)
			if err != nil {
				return errors.Wrap(err, "decode \"price\"")
			}
			li.Price = v.Decimal
			return nil
		}

		raw, err := d.Raw()
		if err != nil {
			return errors.Wrapf(err, "decode %q", key)
		}
		// d.Raw references the input buffer; keep a private copy.
		value := append(jx.Raw(nil), bytes.TrimSpace(raw)...)
		li.Extra = append(li.Extra, cart.RawField{Name: key, Value: value})

		switch key {
		case "product_id":
			li.ProductID, err = decodeID(jx.DecodeBytes(value))
		case "variant_id":
			li.VariantID, err = decodeID(jx.DecodeBytes(value))
		case "size_tier":
			li.SizeTier, err = decodeOptString(jx.DecodeBytes(value))
		}
		if err != nil {
			return errors.Wrapf(err, "decode %q", key)
		}
		return nil
	})
}

func encodeCartResult(e *jx.Encoder, r cart.Result) {
	e.ObjStart()
	e.FieldStart("token")
	e.Str(r.Token)
	e.FieldStart("line_items")
	e.ArrStart()
	for _, it := range r.LineItems {
		e.ObjStart()
		for _, f := range it.Extra {
			e.FieldStart(f.Name)
			e.Raw(f.Value)
		}
		e.FieldStart("price")
		encodeMoney(e, it.Price)
		if it.Err != nil {
			e.FieldStart("pricing_error")
			e.Str(it.Err.Error())
		} else {
			e.FieldStart("original_price")
			encodeMoney(e, it.OriginalPrice)
			e.FieldStart("applied_discount")
			encodeMoney(e, it.AppliedDiscount)
			e.FieldStart("warehouse")
			e.Str(string(it.Warehouse))
		}
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("pricing_applied")
	e.Bool(r.PricingApplied)
	e.FieldStart("timestamp")
	e.Str(r.Timestamp.UTC().Format(time.RFC3339Nano))
	e.ObjEnd()
}

// webhookReq captures the resource id of product and order webhooks.
type webhookReq struct {
	ID string
}

func (r *webhookReq) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		if key != "id" {
			return d.Skip()
		}
		id, err := decodeID(d)
		r.ID = id
		return err
	})
}

func encodeMessage(e *jx.Encoder, message string) {
	e.ObjStart()
	e.FieldStart("success")
	e.Bool(true)
	if message != "" {
		e.FieldStart("message")
		e.Str(message)
	}
	e.ObjEnd()
}

func encodeError(e *jx.Encoder, message string) {
	e.ObjStart()
	e.FieldStart("success")
	e.Bool(false)
	e.FieldStart("error")
	e.Str(message)
	e.ObjEnd()
}

func encodeMoney(e *jx.Encoder, v decimal.Decimal) {
	e.Num(jx.Num(v.StringFixed(2)))
}

// decodeID accepts identifiers sent either as strings or as numbers.
func decodeID(d *jx.Decoder) (string, error) {
	switch d.Next() {
	case jx.String:
		return d.Str()
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return "", err
		}
		return string(n), nil
	case jx.Null:
		return "", d.Null()
	default:
		return "", errors.Errorf("unexpected %s for identifier", d.Next())
	}
}

func decodeOptString(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

// decodeOptDecimal accepts a JSON number, a numeric string or null.
func decodeOptDecimal(d *jx.Decoder) (decimal.NullDecimal, error) {
	var s string
	switch d.Next() {
	case jx.Null:
		return decimal.NullDecimal{}, d.Null()
	case jx.String:
		v, err := d.Str()
		if err != nil {
			return decimal.NullDecimal{}, err
		}
		s = v
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.NullDecimal{}, err
		}
		s = string(n)
	default:
		return decimal.NullDecimal{}, errors.Errorf("unexpected %s for decimal", d.Next())
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, errors.Wrapf(err, "parse decimal %q", s)
	}
	return decimal.NewNullDecimal(v), nil
}
