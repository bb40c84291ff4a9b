// Package internal holds the score detection rules, the DOM markers that hide
// and reveal scores, reaction effect plans, charset decoding and the LRU
// cache shared by the processor and the session registry.
package internal

import "time"

const (
	// Score band
	MinScore = 400
	MaxScore = 1600

	// Text analysis limits
	MaxScoreTextLen    = 4096 // Bytes of element text inspected for a leading score
	maxRangeTextLen    = 256  // Longer text can never be a range phrase
	maxPatternTextLen  = 9    // "1600/1600" is the longest literal score pattern
	builderInitialSize = 256  // Initial capacity for strings.Builder
	contextLevels      = 2    // Ancestors consulted for topical relevance
	categoryLevels     = 3    // Ancestors consulted for category inference

	// Marker attributes and classes
	AttrTempHidden  = "data-temp-hidden"
	AttrRevealed    = "data-revealed"
	AttrScoreID     = "data-score-id"
	ClassHidden     = "sat-score-hidden"
	ClassClickable  = "sat-score-clickable"
	ClassHiddenText = "hidden-score-text"
	BigButtonID     = "sat-score-hider-big-button"

	PlaceholderText = "[Click to reveal SAT score]"
	RevealTitle     = "Click to reveal SAT score"
	BigButtonText   = "Click to Reveal All SAT Scores"

	// Effect timings
	confettiCount    = 50
	confettiStagger  = 50 * time.Millisecond
	confettiLifetime = 3 * time.Second
	midEmojiCount    = 15
	midEmojiStagger  = 80 * time.Millisecond
	midEmojiLifetime = 3 * time.Second
	badEmojiCount    = 20
	badEmojiStagger  = 100 * time.Millisecond
	badEmojiLifetime = 4 * time.Second
	captionLifetime  = 2 * time.Second
	captionOffsetY   = -40
	toneVolume       = 0.3
)
