package aggregates

import (
	"fmt"
	"math"
)

// ShowCount abbreviates a counter: "" for zero, then 999, 1k, 12M, 3G
func ShowCount(count int) string {
	switch {
	case count <= 0:
		return ""
	case count >= 1_000_000_000:
		return fmt.Sprintf("%dG", int64(math.Round(float64(count)/1e9)))
	case count >= 1_000_000:
		return fmt.Sprintf("%dM", int64(math.Round(float64(count)/1e6)))
	case count >= 1_000:
		return fmt.Sprintf("%dk", int64(math.Round(float64(count)/1e3)))
	default:
		return fmt.Sprintf("%d", count)
	}
}

// ShowAmount abbreviates an amount with one decimal above a thousand: "" for
// zero, then 999, 1.5k, 2.0M, 1.2G
func ShowAmount(amount float64) string {
	if math.Abs(amount) < 0.01 {
		return ""
	}

	oneDecimal := func(v float64) float64 { return math.Round(v*10) / 10 }
	switch {
	case amount >= 1e9:
		return fmt.Sprintf("%.1fG", oneDecimal(amount/1e9))
	case amount >= 1e6:
		return fmt.Sprintf("%.1fM", oneDecimal(amount/1e6))
	case amount >= 1e3:
		return fmt.Sprintf("%.1fk", oneDecimal(amount/1e3))
	default:
		return fmt.Sprintf("%.0f", math.Round(amount))
	}
}

// FormatSats formats satoshis for display
func FormatSats(sats int64) string {
	if sats == 0 {
		return "0 sats"
	}

	if sats < 1000 {
		return fmt.Sprintf("%d sats", sats)
	}

	if sats < 1000000 {
		return fmt.Sprintf("%.1fK sats", float64(sats)/1000)
	}

	return fmt.Sprintf("%.2fM sats", float64(sats)/1000000)
}
