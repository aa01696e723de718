// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing monetary amounts from table cells
// and converting between cents and decimal representations.
package core

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = errors.New("invalid amount")

var hundred = decimal.NewFromInt(100)

// ParseAmount converts a spreadsheet cell into Money with half-up rounding
// to whole cents.
//
// It tolerates currency symbols, thousands separators and surrounding
// whitespace. Negative and zero amounts are accepted; business rules on
// amounts belong to the caller.
//
// Examples:
//
//	ParseAmount("12.34")      -> 1234
//	ParseAmount("$1,234.50")  -> 123450
//	ParseAmount("12.345")     -> 1235 (rounds half up)
//	ParseAmount("(10.00)")    -> -1000
func ParseAmount(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	}
	s = strings.Map(func(r rune) rune {
		switch r {
		case '$', '€', '£', ',', ' ':
			return -1
		}
		return r
	}, s)
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	if neg {
		d = d.Neg()
	}
	return FromDecimal(d), nil
}

// FromDecimal rounds a decimal amount to cents.
func FromDecimal(d decimal.Decimal) Money {
	return Money{Cents: d.Mul(hundred).Round(0).IntPart()}
}

// Decimal returns the amount as a decimal in currency units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// String formats the amount with two fixed decimals, e.g. "1234.50".
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

func (m Money) Add(o Money) Money {
	return Money{Cents: m.Cents + o.Cents}
}

func (m Money) Sub(o Money) Money {
	return Money{Cents: m.Cents - o.Cents}
}

func (m Money) Less(o Money) bool {
	return m.Cents < o.Cents
}

func (m Money) IsZero() bool {
	return m.Cents == 0
}
