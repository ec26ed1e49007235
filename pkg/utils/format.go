// Package utils provides shared utility functions.
package utils

import (
	"fmt"
)

// FormatUSD formats an amount as a dollar string with two decimals.
func FormatUSD(amount float64) string {
	if amount < 0 {
		return fmt.Sprintf("-$%.2f", -amount)
	}
	return fmt.Sprintf("$%.2f", amount)
}

// FormatPnL formats P&L with an explicit sign for gains.
func FormatPnL(pnl float64) string {
	formatted := FormatUSD(pnl)
	if pnl > 0 {
		return "+" + formatted
	}
	return formatted
}

// FormatPercent formats a percentage with sign.
func FormatPercent(value float64) string {
	sign := ""
	if value > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.2f%%", sign, value)
}

// FormatPrice formats a price using the pip size to pick a sensible
// precision: 5 decimals for 4-decimal pairs, 3 for JPY pairs.
func FormatPrice(price, pipSize float64) string {
	if pipSize >= 0.01 {
		return fmt.Sprintf("%.3f", price)
	}
	return fmt.Sprintf("%.5f", price)
}

// FormatPips formats a pip distance with one decimal.
func FormatPips(pips float64) string {
	return fmt.Sprintf("%.1f pips", pips)
}

// FormatLots formats a lot size, trimming to two decimals.
func FormatLots(lots float64) string {
	return fmt.Sprintf("%.2f lots", lots)
}
