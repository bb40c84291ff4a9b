package internal

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

var scorePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\d{3,4}/\d{3,4}$`),
	regexp.MustCompile(`^\d{3,4}-\d{3,4}$`),
	regexp.MustCompile(`^\d{3,4}\s*-\s*\d{3,4}$`),
}

var rangePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\d{3,4}\s+to\s+\d{3,4}$`),
	regexp.MustCompile(`^\d{3,4}\s*-\s*\d{3,4}$`),
	regexp.MustCompile(`^\d{3,4}\s*through\s*\d{3,4}$`),
	regexp.MustCompile(`^range:\s*\d{3,4}\s*-\s*\d{3,4}$`),
	regexp.MustCompile(`^possible\s+scores:\s*\d{3,4}\s*-\s*\d{3,4}$`),
	regexp.MustCompile(`^score\s+range:\s*\d{3,4}\s*-\s*\d{3,4}$`),
}

func isScoreSeparator(r rune) bool {
	return r == ',' || unicode.IsSpace(r)
}

// ParseScore reads the integer a score display starts with. Thousands
// separators and whitespace are ignored anywhere in text, and anything after
// the leading digits is dropped, so "1,500 pts" yields 1500.
func ParseScore(text string) (int, bool) {
	var digits [20]byte
	n := 0
	signed := false
scan:
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		i += size
		switch {
		case isScoreSeparator(r):
			continue
		case r >= '0' && r <= '9':
			if n == len(digits) {
				return 0, false
			}
			digits[n] = byte(r)
			n++
			continue
		case (r == '-' || r == '+') && n == 0 && !signed:
			signed = true
			if r == '-' {
				digits[n] = '-'
				n++
			}
			continue
		}
		break scan
	}
	if n == 0 || (n == 1 && digits[0] == '-') {
		return 0, false
	}
	v, err := strconv.Atoi(string(digits[:n]))
	if err != nil {
		return 0, false
	}
	return v, true
}

// InScoreBand reports whether v lies within the inclusive score band.
func InScoreBand(v int) bool {
	return v >= MinScore && v <= MaxScore
}

// IsPlausibleScore reports whether text reads as a single score value.
func IsPlausibleScore(text string) bool {
	if text == "" {
		return false
	}
	if v, ok := ParseScore(text); ok && InScoreBand(v) {
		return true
	}
	cleaned, ok := compactScoreText(text, maxPatternTextLen)
	if !ok {
		return false
	}
	for _, pattern := range scorePatterns {
		if pattern.MatchString(cleaned) {
			return true
		}
	}
	return false
}

// IsDisplayedAsRange reports whether text describes a span of possible
// scores, such as "Score range: 400-1600". Such text is never a score.
func IsDisplayedAsRange(text string) bool {
	if len(text) > maxRangeTextLen {
		return false
	}
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return false
	}
	for _, pattern := range rangePatterns {
		if pattern.MatchString(normalized) {
			return true
		}
	}
	return false
}

// compactScoreText strips separators from text. It gives up once the result
// would exceed limit bytes.
func compactScoreText(text string, limit int) (string, bool) {
	var sb strings.Builder
	for _, r := range text {
		if isScoreSeparator(r) {
			continue
		}
		if sb.Len()+utf8.RuneLen(r) > limit {
			return "", false
		}
		sb.WriteRune(r)
	}
	return sb.String(), true
}
