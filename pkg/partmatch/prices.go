package partmatch

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// PriceBreak is one (quantity, unit price) step of a price table.
type PriceBreak struct {
	Quantity int
	Price    float64
}

// PriceTable maps an ISO currency code to its ordered price breaks.
type PriceTable map[string][]PriceBreak

// UnmarshalJSON decodes the table leniently: breaks that cannot be parsed
// are dropped, as are currencies whose breaks are not a list. A value that
// is not an object decodes to an empty table.
func (t *PriceTable) UnmarshalJSON(data []byte) error {
	var currencies map[string]json.RawMessage
	if err := json.Unmarshal(data, &currencies); err != nil {
		*t = nil
		return nil
	}

	out := make(PriceTable, len(currencies))
	for currency, raw := range currencies {
		var entries []json.RawMessage
		if err := json.Unmarshal(raw, &entries); err != nil {
			continue
		}
		breaks := make([]PriceBreak, 0, len(entries))
		for _, entry := range entries {
			var pb PriceBreak
			if err := json.Unmarshal(entry, &pb); err != nil {
				continue
			}
			breaks = append(breaks, pb)
		}
		out[currency] = breaks
	}
	*t = out
	return nil
}

// UnmarshalJSON decodes a [quantity, price] tuple. Both members may be sent
// as JSON numbers or as decimal strings.
func (p *PriceBreak) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("price break: %w", err)
	}
	if len(raw) != 2 {
		return fmt.Errorf("price break: want 2 elements, got %d", len(raw))
	}

	qty, err := parseNumber(raw[0])
	if err != nil {
		return fmt.Errorf("price break quantity: %w", err)
	}
	price, err := parseNumber(raw[1])
	if err != nil {
		return fmt.Errorf("price break price: %w", err)
	}

	p.Quantity = int(qty)
	p.Price = price
	return nil
}

// MarshalJSON encodes the break as a [quantity, "price"] tuple.
func (p PriceBreak) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{p.Quantity, strconv.FormatFloat(p.Price, 'f', -1, 64)})
}

func parseNumber(raw json.RawMessage) (float64, error) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, err
	}
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

// Currencies returns the currencies with at least one price break, sorted.
func (t PriceTable) Currencies() []string {
	out := make([]string, 0, len(t))
	for c, breaks := range t {
		if len(breaks) > 0 {
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out
}

// PreferredCurrency returns desired if the offer is priced in it, otherwise
// any currency the offer is priced in, or "" when it has no prices.
func (o Offer) PreferredCurrency(desired string) string {
	if len(o.Prices[desired]) > 0 {
		return desired
	}
	if cs := o.Prices.Currencies(); len(cs) > 0 {
		return cs[0]
	}
	return ""
}

// MinPrice returns the lowest unit price applicable when buying qty units in
// the given currency. ok is false when no break applies.
//
// Unless ignoreMOQ is set, a qty below the offer's minimum order quantity has
// no applicable price.
func (o Offer) MinPrice(currency string, qty int, ignoreMOQ bool) (price float64, ok bool) {
	if currency == "" {
		currency = "USD"
	}
	if qty <= 0 {
		qty = 1
	}
	breaks := o.Prices[currency]
	if len(breaks) == 0 {
		return 0, false
	}
	if !ignoreMOQ {
		if moq, has := o.RealMOQ(); has && qty < moq {
			return 0, false
		}
	}

	best := math.MaxFloat64
	for _, b := range breaks {
		if qty >= b.Quantity && b.Price < best {
			best = b.Price
		}
	}
	if best == math.MaxFloat64 {
		return 0, false
	}
	return best, true
}

// RealMOQ is the larger of the published moq and order multiple.
func (o Offer) RealMOQ() (int, bool) {
	moq, hasMOQ := atoi(o.MOQ)
	mult, hasMult := atoi(o.OrderMultipleRaw)
	switch {
	case hasMOQ && hasMult:
		if mult > moq {
			return mult, true
		}
		return moq, true
	case hasMOQ:
		return moq, true
	case hasMult:
		return mult, true
	}
	return 0, false
}

// FactoryLeadDays returns the factory lead time, or ok=false when unknown.
func (o Offer) FactoryLeadDays() (int, bool) {
	return atoi(o.FactoryLeadDaysRaw)
}

// OrderMultiple returns the order multiple, defaulting to 1.
func (o Offer) OrderMultiple() int {
	if n, ok := atoi(o.OrderMultipleRaw); ok && n > 0 {
		return n
	}
	return 1
}

func atoi(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}
