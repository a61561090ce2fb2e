package partmatch

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// UnmarshalJSON decodes an offer without failing on odd field values.
// Quantities and lead times may arrive as numbers or strings; values of any
// other shape decode as empty. An offer that is not an object decodes as
// the zero Offer.
func (o *Offer) UnmarshalJSON(data []byte) error {
	type Alias Offer
	aux := &struct {
		*Alias
		Seller               json.RawMessage `json:"seller"`
		InStockQuantity      json.RawMessage `json:"in_stock_quantity"`
		OnOrderQuantity      json.RawMessage `json:"on_order_quantity"`
		FactoryLeadDaysRaw   json.RawMessage `json:"factory_lead_days"`
		FactoryOrderMultiple json.RawMessage `json:"factory_order_multiple"`
		OrderMultipleRaw     json.RawMessage `json:"order_multiple"`
		MOQ                  json.RawMessage `json:"moq"`
		IsAuthorized         json.RawMessage `json:"is_authorized"`
	}{
		Alias: (*Alias)(o),
	}

	*o = Offer{}
	// A type mismatch leaves that field empty; the rest still decodes.
	_ = json.Unmarshal(data, aux)

	if bytes.HasPrefix(bytes.TrimSpace(aux.Seller), []byte("{")) {
		var seller Seller
		_ = json.Unmarshal(aux.Seller, &seller)
		o.Seller = &seller
	}
	o.InStockQuantity = lenientInt(aux.InStockQuantity)
	o.OnOrderQuantity = lenientString(aux.OnOrderQuantity)
	o.FactoryLeadDaysRaw = lenientString(aux.FactoryLeadDaysRaw)
	o.FactoryOrderMultiple = lenientString(aux.FactoryOrderMultiple)
	o.OrderMultipleRaw = lenientString(aux.OrderMultipleRaw)
	o.MOQ = lenientString(aux.MOQ)
	_ = json.Unmarshal(aux.IsAuthorized, &o.IsAuthorized)
	return nil
}

// lenientString returns a JSON string or number as text, anything else as "".
func lenientString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// lenientInt returns a JSON number or numeric string truncated to an int, or 0.
func lenientInt(raw json.RawMessage) int {
	s := strings.TrimSpace(lenientString(raw))
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int(f)
}
