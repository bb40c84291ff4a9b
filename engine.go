package scorehider

// Classify returns the tier of score within category. Intervals are tried in
// good, mid, bad order so the first match wins when they overlap. A missing
// category or a score outside every interval yields TierNone.
func Classify(table RangeTable, category Category, score int) Tier {
	ranges, ok := table[category]
	if !ok {
		return TierNone
	}
	switch {
	case ranges.Good.Contains(score):
		return TierGood
	case ranges.Mid.Contains(score):
		return TierMid
	case ranges.Bad.Contains(score):
		return TierBad
	}
	return TierNone
}
