package stripe

import (
	"strings"

	"github.com/shopspring/decimal"
)

// zeroDecimal lists currencies stripe charges in whole units.
var zeroDecimal = map[string]struct{}{
	"bif": {}, "clp": {}, "djf": {}, "gnf": {}, "jpy": {}, "kmf": {}, "krw": {}, "mga": {},
	"pyg": {}, "rwf": {}, "ugx": {}, "vnd": {}, "vuv": {}, "xaf": {}, "xof": {}, "xpf": {},
}

func exponent(currency string) int32 {
	if _, ok := zeroDecimal[strings.ToLower(currency)]; ok {
		return 0
	}

	return 2
}

// toMinorUnits converts an amount to the integer stripe expects, e.g. 12.34 EUR to 1234.
func toMinorUnits(amount decimal.Decimal, currency string) int64 {
	return amount.Shift(exponent(currency)).Round(0).IntPart()
}

func fromMinorUnits(amount int64, currency string) decimal.Decimal {
	return decimal.New(amount, -exponent(currency))
}
