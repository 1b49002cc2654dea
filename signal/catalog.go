package signal

// CatalogEntry describes a tradeable symbol known to the generator
type CatalogEntry struct {
	Symbol   string
	Sector   string
	Industry string
	Beta     float64
	RefPrice float64 // Reference price used for sizing estimates
}

// catalog is the fixed universe of symbols the generator draws from
var catalog = []CatalogEntry{
	{Symbol: "AAPL", Sector: "technology", Industry: "consumer electronics", Beta: 1.10, RefPrice: 185.00},
	{Symbol: "MSFT", Sector: "technology", Industry: "software", Beta: 0.95, RefPrice: 410.00},
	{Symbol: "NVDA", Sector: "technology", Industry: "semiconductors", Beta: 1.65, RefPrice: 880.00},
	{Symbol: "AMD", Sector: "technology", Industry: "semiconductors", Beta: 1.70, RefPrice: 160.00},
	{Symbol: "AMZN", Sector: "consumer", Industry: "e-commerce", Beta: 1.20, RefPrice: 175.00},
	{Symbol: "WMT", Sector: "consumer", Industry: "retail", Beta: 0.55, RefPrice: 60.00},
	{Symbol: "PG", Sector: "consumer", Industry: "household products", Beta: 0.45, RefPrice: 160.00},
	{Symbol: "JNJ", Sector: "healthcare", Industry: "pharmaceuticals", Beta: 0.55, RefPrice: 150.00},
	{Symbol: "ABBV", Sector: "healthcare", Industry: "pharmaceuticals", Beta: 0.60, RefPrice: 170.00},
	{Symbol: "UNH", Sector: "healthcare", Industry: "health insurance", Beta: 0.70, RefPrice: 490.00},
	{Symbol: "JPM", Sector: "financials", Industry: "banking", Beta: 1.10, RefPrice: 195.00},
	{Symbol: "GS", Sector: "financials", Industry: "investment banking", Beta: 1.40, RefPrice: 420.00},
	{Symbol: "V", Sector: "financials", Industry: "payments", Beta: 0.95, RefPrice: 275.00},
	{Symbol: "XOM", Sector: "energy", Industry: "oil and gas", Beta: 0.90, RefPrice: 115.00},
	{Symbol: "NEE", Sector: "energy", Industry: "utilities", Beta: 0.50, RefPrice: 70.00},
	{Symbol: "TSLA", Sector: "consumer", Industry: "automotive", Beta: 2.00, RefPrice: 250.00},
}

// Catalog returns the tradeable symbol universe
func Catalog() []CatalogEntry {
	entries := make([]CatalogEntry, len(catalog))
	copy(entries, catalog)
	return entries
}
