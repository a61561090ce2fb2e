package partmatch

import (
	"strings"
	"unicode"
)

// Normalize lower-cases s and strips all whitespace. Lookup keys and
// manufacturer/distributor filters are compared in this form.
func Normalize(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, s)
}

// MatchesManufacturer reports whether the part's manufacturer or brand name
// contains name after normalization. An empty name matches every part.
func (p Part) MatchesManufacturer(name string) bool {
	want := Normalize(name)
	if want == "" {
		return true
	}
	if p.Manufacturer != nil && strings.Contains(Normalize(p.Manufacturer.Name), want) {
		return true
	}
	return p.Brand != nil && strings.Contains(Normalize(p.Brand.Name), want)
}

// OffersFrom returns the offers whose seller name contains distributor after
// normalization. An empty distributor returns every offer.
func (p Part) OffersFrom(distributor string) []Offer {
	want := Normalize(distributor)
	var out []Offer
	for _, o := range p.Offers {
		if want == "" || (o.Seller != nil && strings.Contains(Normalize(o.Seller.Name), want)) {
			out = append(out, o)
		}
	}
	return out
}

// DatasheetURL returns the first datasheet with a URL, falling back to the
// best datasheet.
func (p Part) DatasheetURL() (string, bool) {
	for _, d := range p.Datasheets {
		if d.URL != "" {
			return d.URL, true
		}
	}
	if p.BestDatasheet != nil && p.BestDatasheet.URL != "" {
		return p.BestDatasheet.URL, true
	}
	return "", false
}
