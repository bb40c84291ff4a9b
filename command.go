package scorehider

import "time"

// Action names an inbound control command.
type Action string

const (
	ActionHideAll             Action = "hideAllScores"
	ActionRevealAll           Action = "revealAllScores"
	ActionShowBigRevealButton Action = "showBigRevealButton"
	ActionToggleAutoHide      Action = "toggleAutoHide"
	ActionUpdateSettings      Action = "updateSettings"
	ActionTestEffects         Action = "testEffects"
)

// Command is a control message addressed to a page session. Enabled is read
// by toggleAutoHide, where a missing value means false. Settings and
// SoundSettings are read by updateSettings, where missing values keep the
// current ones.
type Command struct {
	Action        Action         `json:"action"`
	Enabled       *bool          `json:"enabled,omitempty"`
	Settings      RangeTable     `json:"settings,omitempty"`
	SoundSettings *SoundSettings `json:"soundSettings,omitempty"`
}

// demoScores are replayed by testEffects, one per tier.
var demoScores = []struct {
	after time.Duration
	text  string
}{
	{1 * time.Second, "1500"},
	{6 * time.Second, "1200"},
	{12 * time.Second, "800"},
}
