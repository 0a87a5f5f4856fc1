package helpers

import (
	"fmt"
	"strings"
	"time"
)

// FormatPercent formats a ratio in [0,1] as a percentage with one decimal
func FormatPercent(ratio float64) string {
	return fmt.Sprintf("%.1f%%", ratio*100)
}

// FormatRate formats a throughput as items per minute
func FormatRate(items int, elapsed time.Duration) string {
	if elapsed <= 0 {
		return "0.0/min"
	}
	return fmt.Sprintf("%.1f/min", float64(items)/elapsed.Minutes())
}

// Truncate shortens s to limit runes, appending an ellipsis when cut
func Truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

// JoinNonEmpty joins the non-blank parts with sep
func JoinNonEmpty(sep string, parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
