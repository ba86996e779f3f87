package overlay

import "strings"

// SymbolKey is the normalized identifier used to scope drawings per instrument,
// e.g. "DSEBD:GP".
type SymbolKey string

func (k SymbolKey) String() string { return string(k) }

// IsZero reports whether the key is empty.
func (k SymbolKey) IsZero() bool { return strings.TrimSpace(string(k)) == "" }

// SymbolInfo describes an instrument as reported by the data feed or the UI.
type SymbolInfo struct {
	Exchange string `json:"exchange,omitempty"`
	Ticker   string `json:"ticker,omitempty"`
	Name     string `json:"name,omitempty"`
}

// NormalizeSymbolKey is the single implementation of symbol normalization.
// It yields "EXCHANGE:TICKER" upper-cased when both parts are known, otherwise
// the ticker (or name) upper-cased alone. An empty key means no symbol.
func NormalizeSymbolKey(info SymbolInfo) SymbolKey {
	ticker := strings.ToUpper(strings.TrimSpace(info.Ticker))
	if ticker == "" {
		ticker = strings.ToUpper(strings.TrimSpace(info.Name))
	}
	exchange := strings.ToUpper(strings.TrimSpace(info.Exchange))
	if ticker == "" {
		return ""
	}
	if exchange == "" {
		return SymbolKey(ticker)
	}
	return SymbolKey(exchange + ":" + ticker)
}

// ParseSymbol turns free-form input ("dsebd:gp", "GP", " NASDAQ:aapl ") into
// SymbolInfo so it can be normalized.
func ParseSymbol(raw string) SymbolInfo {
	raw = strings.TrimSpace(raw)
	if exchange, ticker, ok := strings.Cut(raw, ":"); ok {
		return SymbolInfo{Exchange: exchange, Ticker: ticker}
	}
	return SymbolInfo{Ticker: raw}
}

// NormalizeSymbolString normalizes free-form symbol text.
func NormalizeSymbolString(raw string) SymbolKey {
	return NormalizeSymbolKey(ParseSymbol(raw))
}
