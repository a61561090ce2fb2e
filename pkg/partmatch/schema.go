// Package partmatch defines the wire types of the remote parts/match search API.
//
// The engine treats these as opaque payloads: it only looks at the per-query
// result envelope (items, hits, error, reference). The part, offer and price
// types are decoded for callers that render results.
package partmatch

// Query is one entry of the batched "queries" request parameter.
type Query struct {
	MPN       string `json:"mpn"`
	Start     int    `json:"start"`
	Limit     int    `json:"limit"`
	Reference string `json:"reference,omitempty"`
}

// Request echoes the queries the server received.
type Request struct {
	ExactOnly bool    `json:"exact_only"`
	Queries   []Query `json:"queries"`
}

// Response is the body of a successful parts/match call.
type Response struct {
	Msec    int      `json:"msec"`
	Request *Request `json:"request"`
	Results []Result `json:"results"`
}

// Result is the outcome of one query of the batch.
//
// Items is nil when the server omitted the field, which is distinct from an
// empty list (a valid search with no matches).
type Result struct {
	Items     []Part `json:"items"`
	Hits      int    `json:"hits"`
	Reference string `json:"reference,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Part is a single matched part.
type Part struct {
	UID              string         `json:"uid"`
	MPN              string         `json:"mpn"`
	Manufacturer     *Manufacturer  `json:"manufacturer,omitempty"`
	Brand            *Brand         `json:"brand,omitempty"`
	OctopartURL      string         `json:"octopart_url,omitempty"`
	ExternalLinks    *ExternalLinks `json:"external_links,omitempty"`
	Offers           []Offer        `json:"offers,omitempty"`
	ShortDescription string         `json:"short_description,omitempty"`
	Descriptions     []Description  `json:"descriptions,omitempty"`
	Datasheets       []Asset        `json:"datasheets,omitempty"`
	BestDatasheet    *Document      `json:"best_datasheet,omitempty"`
}

// Manufacturer identifies the part's maker.
type Manufacturer struct {
	UID         string `json:"uid"`
	Name        string `json:"name"`
	HomepageURL string `json:"homepage_url,omitempty"`
}

// Brand identifies the brand the part is sold under.
type Brand struct {
	UID         string `json:"uid"`
	Name        string `json:"name"`
	HomepageURL string `json:"homepage_url,omitempty"`
}

// ExternalLinks holds vendor links for a part.
type ExternalLinks struct {
	ProductURL    string `json:"product_url,omitempty"`
	FreeSampleURL string `json:"freesample_url,omitempty"`
	EvalKitURL    string `json:"evalkit_url,omitempty"`
}

// Description is a free-text part description.
type Description struct {
	Value string `json:"value"`
}

// Asset is a linked document such as a datasheet.
type Asset struct {
	URL      string `json:"url"`
	MimeType string `json:"mimetype,omitempty"`
}

// Document is a named link.
type Document struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Seller is a distributor offering a part.
type Seller struct {
	UID          string `json:"uid"`
	Name         string `json:"name"`
	HomepageURL  string `json:"homepage_url,omitempty"`
	DisplayFlag  string `json:"display_flag,omitempty"`
	HasEcommerce bool   `json:"has_ecommerce"`
}

// Offer is one seller's listing of a part.
type Offer struct {
	SKU                  string     `json:"sku"`
	Seller               *Seller    `json:"seller,omitempty"`
	ProductURL           string     `json:"product_url,omitempty"`
	Prices               PriceTable `json:"prices,omitempty"`
	InStockQuantity      int        `json:"in_stock_quantity"`
	OnOrderQuantity      string     `json:"on_order_quantity,omitempty"`
	OnOrderETA           string     `json:"on_order_eta,omitempty"`
	FactoryLeadDaysRaw   string     `json:"factory_lead_days,omitempty"`
	FactoryOrderMultiple string     `json:"factory_order_multiple,omitempty"`
	OrderMultipleRaw     string     `json:"order_multiple,omitempty"`
	MOQ                  string     `json:"moq,omitempty"`
	Packaging            string     `json:"packaging,omitempty"`
	IsAuthorized         bool       `json:"is_authorized"`
	LastUpdated          string     `json:"last_updated,omitempty"`
}
