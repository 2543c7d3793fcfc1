package prompt

import "strings"

// TruncationMarker is appended to context cut down to fit the budget.
const TruncationMarker = "\n\n[... context truncated ...]"

// SeparatorAllowance is reserved for the separator between context and instruction.
const SeparatorAllowance = 10

// boundaryRatio is the share of the cut that a sentence or line boundary must keep.
const boundaryRatio = 0.7

// truncateToTokens shortens text so that it plus the marker fits in tokens.
// It returns "" when nothing fits.
func truncateToTokens(text string, tokens int, est Estimator) string {
	if est.Estimate(text) <= tokens {
		return text
	}
	target := tokens - est.Estimate(TruncationMarker)
	if target <= 0 {
		return ""
	}

	runes := []rune(text)
	lo, hi := 0, len(runes)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if est.Estimate(string(runes[:mid])) <= target {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	cut := string(runes[:lo])
	if b := lastBoundary(cut); b > 0 && float64(b) >= boundaryRatio*float64(len(cut)) {
		cut = cut[:b]
	}
	cut = strings.TrimRight(cut, " \t\n")
	if cut == "" {
		return ""
	}
	return cut + TruncationMarker
}

// lastBoundary returns the byte offset just past the last sentence end or line break.
func lastBoundary(s string) int {
	best := strings.LastIndexByte(s, '\n')
	for _, end := range []string{". ", "! ", "? ", ".\n", "!\n", "?\n"} {
		if i := strings.LastIndex(s, end); i >= 0 && i+1 > best {
			best = i + 1
		}
	}
	if best < 0 {
		return 0
	}
	return best
}
