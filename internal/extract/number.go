package extract

import (
	"math"
	"strconv"
	"strings"
)

// ParseCount converts display counts such as "1,234", "1.2k followers" or
// "13.5M" to an integer. It never fails: unparsable input yields 0 and the
// result is never negative.
func ParseCount(raw string) int64 {
	clean := strings.TrimSpace(strings.ToLower(strings.ReplaceAll(raw, ",", "")))
	if clean == "" {
		return 0
	}
	token := clean
	if idx := strings.IndexByte(clean, ' '); idx >= 0 {
		token = clean[:idx]
	}

	switch {
	case strings.Contains(token, "k"):
		return scaled(token, 1_000)
	case strings.Contains(token, "m"):
		return scaled(token, 1_000_000)
	}

	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, token)
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// scaled parses the leading decimal prefix of token and multiplies it.
func scaled(token string, factor float64) int64 {
	end := 0
	seenDot := false
	for end < len(token) {
		c := token[end]
		if c == '.' && !seenDot {
			seenDot = true
			end++
			continue
		}
		if (c < '0' || c > '9') && !(end == 0 && (c == '-' || c == '+')) {
			break
		}
		end++
	}
	f, err := strconv.ParseFloat(token[:end], 64)
	if err != nil {
		return 0
	}
	v := math.Round(f * factor)
	if v <= 0 || v > math.MaxInt64/2 {
		return 0
	}
	return int64(v)
}
