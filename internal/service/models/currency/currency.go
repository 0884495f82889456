package currency

import (
	"database/sql/driver"
	"errors"
)

type Currency string

const (
	CurrencyMDL Currency = "MDL"
	CurrencyEUR Currency = "EUR"
	CurrencyUSD Currency = "USD"
)

var ErrInvalidCurrency = errors.New("invalid currency")

func (c Currency) String() string {
	return string(c)
}

func (c Currency) Value() (driver.Value, error) {
	return c.String(), nil
}

func ParseCurrency(s string) (Currency, error) {
	switch s {
	case CurrencyMDL.String():
		return CurrencyMDL, nil
	case CurrencyEUR.String():
		return CurrencyEUR, nil
	case CurrencyUSD.String():
		return CurrencyUSD, nil
	default:
		return "", ErrInvalidCurrency
	}
}
