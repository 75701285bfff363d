// Package utils provides validation helpers for trading-pair symbols.
package utils

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidSymbol indicates a trading-pair symbol that does not follow the
// BASE-QUOTE format or uses an unsupported quote asset.
var ErrInvalidSymbol = errors.New("invalid symbol")

// quoteAssets is the set of quote assets the simulator trades against.
var quoteAssets = map[string]bool{
	"USDT": true,
	"KRW":  true,
	"BTC":  true,
	"ETH":  true,
}

// ValidateSymbol checks that a trading-pair symbol has the form BASE-QUOTE
// with a non-empty base and a supported quote asset. Matching is
// case-insensitive.
func ValidateSymbol(symbol string) error {
	if symbol == "" {
		return fmt.Errorf("%w: empty symbol", ErrInvalidSymbol)
	}

	base, quote, ok := strings.Cut(symbol, "-")
	if !ok {
		return fmt.Errorf("%w: expected BASE-QUOTE, got %q", ErrInvalidSymbol, symbol)
	}
	if base == "" {
		return fmt.Errorf("%w: empty base asset in %q", ErrInvalidSymbol, symbol)
	}
	if quote == "" {
		return fmt.Errorf("%w: empty quote asset in %q", ErrInvalidSymbol, symbol)
	}
	if strings.Contains(quote, "-") {
		return fmt.Errorf("%w: expected BASE-QUOTE, got %q", ErrInvalidSymbol, symbol)
	}

	if !quoteAssets[strings.ToUpper(quote)] {
		return fmt.Errorf("%w: unsupported quote asset %q (supported: %s)",
			ErrInvalidSymbol, quote, supportedQuotes())
	}

	return nil
}

// supportedQuotes lists the supported quote assets for error messages. The
// order is unspecified (map iteration).
func supportedQuotes() string {
	keys := make([]string, 0, len(quoteAssets))
	for k := range quoteAssets {
		keys = append(keys, k)
	}
	return strings.Join(keys, ", ")
}
