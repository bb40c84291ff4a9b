package scorehider

import (
	"encoding/json"
	"fmt"

	"github.com/cybergodev/scorehider/internal"
)

// Category, Tier and Rect are shared with the detection internals.
type (
	Category = internal.Category
	Tier     = internal.Tier
	Rect     = internal.Rect
)

const (
	CategoryTotal   = internal.CategoryTotal
	CategoryReading = internal.CategoryReading
	CategoryMath    = internal.CategoryMath
	CategoryWriting = internal.CategoryWriting

	TierNone = internal.TierNone
	TierGood = internal.TierGood
	TierMid  = internal.TierMid
	TierBad  = internal.TierBad
)

// Range is an inclusive score interval.
type Range struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Contains reports whether score lies in r. A nil range contains nothing.
func (r *Range) Contains(score int) bool {
	return r != nil && score >= r.Min && score <= r.Max
}

// TierRanges holds the three tier intervals of one category. Missing
// intervals never match.
type TierRanges struct {
	Good *Range `json:"good,omitempty"`
	Mid  *Range `json:"mid,omitempty"`
	Bad  *Range `json:"bad,omitempty"`
}

// RangeTable maps each category to its tier intervals.
type RangeTable map[Category]TierRanges

// SoundSettings selects the tone played for each tier.
type SoundSettings struct {
	GoodScoreSound string `json:"goodScoreSound"`
	MidScoreSound  string `json:"midScoreSound"`
	BadScoreSound  string `json:"badScoreSound"`
	EnableSounds   bool   `json:"enableSounds"`
}

// SoundFor returns the sound setting for tier.
func (s SoundSettings) SoundFor(tier Tier) string {
	switch tier {
	case TierGood:
		return s.GoodScoreSound
	case TierMid:
		return s.MidScoreSound
	case TierBad:
		return s.BadScoreSound
	}
	return ""
}

// Settings is the persisted configuration shape: a range table plus sounds.
type Settings struct {
	Ranges RangeTable     `json:"satScoreSettings"`
	Sound  *SoundSettings `json:"soundSettings,omitempty"`
}

// DefaultSoundSettings returns the stock sound choices with sounds enabled.
func DefaultSoundSettings() SoundSettings {
	return SoundSettings{
		GoodScoreSound: "default",
		MidScoreSound:  "default",
		BadScoreSound:  "default",
		EnableSounds:   true,
	}
}

// DefaultRangeTable returns the stock tier intervals.
func DefaultRangeTable() RangeTable {
	section := func() TierRanges {
		return TierRanges{
			Good: &Range{Min: 700, Max: 800},
			Mid:  &Range{Min: 500, Max: 699},
			Bad:  &Range{Min: 200, Max: 499},
		}
	}
	return RangeTable{
		CategoryTotal: {
			Good: &Range{Min: 1400, Max: 1600},
			Mid:  &Range{Min: 1000, Max: 1399},
			Bad:  &Range{Min: 400, Max: 999},
		},
		CategoryReading: section(),
		CategoryMath:    section(),
		CategoryWriting: section(),
	}
}

// DefaultSettings returns the stock range table and sound settings.
func DefaultSettings() Settings {
	sound := DefaultSoundSettings()
	return Settings{Ranges: DefaultRangeTable(), Sound: &sound}
}

// defaultMid is substituted for a missing mid interval.
func defaultMid(c Category) *Range {
	if c == CategoryTotal {
		return &Range{Min: 1000, Max: 1399}
	}
	return &Range{Min: 500, Max: 699}
}

// Normalize fills in missing mid intervals of configured categories so that
// tables saved before the mid tier existed keep working.
func (t RangeTable) Normalize() {
	for c, tr := range t {
		if tr.Mid == nil {
			tr.Mid = defaultMid(c)
			t[c] = tr
		}
	}
}

// Clone returns a deep copy of t.
func (t RangeTable) Clone() RangeTable {
	if t == nil {
		return nil
	}
	out := make(RangeTable, len(t))
	for c, tr := range t {
		out[c] = TierRanges{Good: cloneRange(tr.Good), Mid: cloneRange(tr.Mid), Bad: cloneRange(tr.Bad)}
	}
	return out
}

func cloneRange(r *Range) *Range {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// Clone returns a deep copy of s.
func (s Settings) Clone() Settings {
	out := Settings{Ranges: s.Ranges.Clone()}
	if s.Sound != nil {
		sound := *s.Sound
		out.Sound = &sound
	}
	return out
}

// ParseSettings decodes a settings document. Both the wrapped shape
// {"satScoreSettings": ..., "soundSettings": ...} and a bare range table are
// accepted. Missing mid intervals are filled in.
func ParseSettings(data []byte) (Settings, error) {
	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	if s.Ranges == nil {
		var table RangeTable
		if err := json.Unmarshal(data, &table); err != nil {
			return Settings{}, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
		}
		s.Ranges = make(RangeTable, len(internal.Categories))
		for _, c := range internal.Categories {
			if tr, ok := table[c]; ok {
				s.Ranges[c] = tr
			}
		}
	}
	s.Ranges.Normalize()
	return s, nil
}
