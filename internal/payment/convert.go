package payment

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultUSDToINR is the fixed store rate used when no rate source is set.
var DefaultUSDToINR = decimal.RequireFromString("73.25")

// minorUnits is the number of decimal places of each supported currency.
var minorUnits = map[string]int32{
	"USD": 2,
	"INR": 2,
	"EUR": 2,
	"GBP": 2,
	"SGD": 2,
	"IDR": 2,
	"JPY": 0,
}

func MinorUnits(currency string) (int32, error) {
	exp, ok := minorUnits[strings.ToUpper(currency)]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedCurrency, currency)
	}
	return exp, nil
}

// ConvertAmount converts an amount in minor units of from into minor units of
// to at the given rate, rounding half up to the nearest minor unit.
//
// 1000 USD cents at 73.25 is 10.00 * 73.25 = 732.50 INR, i.e. 73250 paise.
func ConvertAmount(minor int64, from, to string, rate decimal.Decimal) (int64, error) {
	if minor <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidAmount, minor)
	}
	if !rate.IsPositive() {
		return 0, fmt.Errorf("%w: non-positive rate %s", ErrInvalidAmount, rate)
	}

	fromExp, err := MinorUnits(from)
	if err != nil {
		return 0, err
	}
	toExp, err := MinorUnits(to)
	if err != nil {
		return 0, err
	}

	converted := decimal.NewFromInt(minor).
		Shift(-fromExp).
		Mul(rate).
		Shift(toExp).
		Round(0) // half away from zero; amounts are positive so this is half up

	if !converted.IsPositive() {
		return 0, fmt.Errorf("%w: %d %s converts to zero %s", ErrInvalidAmount, minor, from, to)
	}
	if converted.GreaterThan(decimal.NewFromInt(1 << 62)) {
		return 0, fmt.Errorf("%w: %d %s overflows %s", ErrInvalidAmount, minor, from, to)
	}
	return converted.IntPart(), nil
}

// RateSource quotes the number of units of to per unit of from.
type RateSource interface {
	Rate(ctx context.Context, from, to string) (decimal.Decimal, error)
}

// FixedRate quotes one configured pair, its inverse, and identity.
type FixedRate struct {
	From  string
	To    string
	Value decimal.Decimal
}

func NewFixedRate(from, to string, value decimal.Decimal) FixedRate {
	return FixedRate{From: strings.ToUpper(from), To: strings.ToUpper(to), Value: value}
}

func (f FixedRate) Rate(_ context.Context, from, to string) (decimal.Decimal, error) {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	switch {
	case from == to:
		return decimal.NewFromInt(1), nil
	case from == f.From && to == f.To:
		return f.Value, nil
	case from == f.To && to == f.From && f.Value.IsPositive():
		return decimal.NewFromInt(1).DivRound(f.Value, 16), nil
	}
	return decimal.Decimal{}, fmt.Errorf("%w: no rate for %s to %s", ErrUnsupportedCurrency, from, to)
}

// Converter resolves the rate and converts in one step.
type Converter struct {
	Rates RateSource
}

func (c Converter) Convert(ctx context.Context, minor int64, from, to string) (int64, error) {
	rate, err := c.Rates.Rate(ctx, from, to)
	if err != nil {
		return 0, err
	}
	return ConvertAmount(minor, from, to, rate)
}
