package internal

import (
	"math/rand/v2"
	"time"
)

// Tier is the reaction a revealed score earns.
type Tier string

const (
	TierNone Tier = "none"
	TierGood Tier = "good"
	TierMid  Tier = "mid"
	TierBad  Tier = "bad"
)

// Rect is the on-screen box of the element a reaction is anchored to.
type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// EffectKind identifies a single scheduled piece of a reaction.
type EffectKind string

const (
	EffectConfetti EffectKind = "confetti"
	EffectEmoji    EffectKind = "emoji"
	EffectCaption  EffectKind = "caption"
)

// EffectTask is one element of a reaction with its own lifetime.
type EffectTask struct {
	Kind   EffectKind `json:"kind"`
	Glyph  string     `json:"glyph"`
	X      float64    `json:"x"`
	Y      float64    `json:"y"`
	Start  time.Time  `json:"start"`
	Expire time.Time  `json:"expire"`
}

// Tone describes a generated sound, or a stored clip when CustomClip is set.
type Tone struct {
	Frequency  float64       `json:"frequency,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
	Waveform   string        `json:"waveform,omitempty"`
	Volume     float64       `json:"volume"`
	CustomClip string        `json:"customClip,omitempty"`
}

// EffectPlan is the full, time-boxed description of a reaction.
type EffectPlan struct {
	Tier    Tier         `json:"tier"`
	Anchor  Rect         `json:"anchor"`
	Caption string       `json:"caption"`
	Tasks   []EffectTask `json:"tasks"`
	Tone    *Tone        `json:"tone,omitempty"`
}

// Expires returns the moment the last task of the plan ends.
func (p *EffectPlan) Expires() time.Time {
	var last time.Time
	for _, t := range p.Tasks {
		if t.Expire.After(last) {
			last = t.Expire
		}
	}
	return last
}

// Count returns the number of tasks of a kind.
func (p *EffectPlan) Count(kind EffectKind) int {
	n := 0
	for _, t := range p.Tasks {
		if t.Kind == kind {
			n++
		}
	}
	return n
}

type burst struct {
	kind     EffectKind
	glyphs   []string
	count    int
	stagger  time.Duration
	lifetime time.Duration
	caption  string
}

var bursts = map[Tier]burst{
	TierGood: {
		kind:     EffectConfetti,
		glyphs:   []string{"#ff6b6b", "#4ecdc4", "#45b7d1", "#96ceb4", "#feca57", "#ff9ff3", "#54a0ff"},
		count:    confettiCount,
		stagger:  confettiStagger,
		lifetime: confettiLifetime,
		caption:  "\U0001F389 AMAZING SCORE! \U0001F389",
	},
	TierMid: {
		kind:     EffectEmoji,
		glyphs:   []string{"\U0001F610", "\U0001F937", "\U0001F636", "\U0001F914", "\U0001F60F", "\U0001F60C", "\U0001F60A", "\U0001F44D"},
		count:    midEmojiCount,
		stagger:  midEmojiStagger,
		lifetime: midEmojiLifetime,
		caption:  "\U0001F610 NOT BAD! \U0001F610",
	},
	TierBad: {
		kind:     EffectEmoji,
		glyphs:   []string{"\U0001F480", "\U0001F921", "\U0001F635", "\U0001F926", "\U0001F62D", "\U0001F92A", "\U0001F631", "\U0001F4A9"},
		count:    badEmojiCount,
		stagger:  badEmojiStagger,
		lifetime: badEmojiLifetime,
		caption:  "\U0001F480 OOPS! \U0001F480",
	},
}

// PlanEffect lays out the reaction for tier anchored at anchor, starting at
// start. It returns nil for TierNone or an unknown tier.
func PlanEffect(tier Tier, anchor Rect, start time.Time, rng *rand.Rand) *EffectPlan {
	b, ok := bursts[tier]
	if !ok {
		return nil
	}
	plan := &EffectPlan{
		Tier:    tier,
		Anchor:  anchor,
		Caption: b.caption,
		Tasks:   make([]EffectTask, 0, b.count+1),
	}
	for i := 0; i < b.count; i++ {
		begin := start.Add(time.Duration(i) * b.stagger)
		x := anchor.Left
		if rng != nil {
			x += rng.Float64() * anchor.Width
		}
		glyph := b.glyphs[i%len(b.glyphs)]
		if rng != nil {
			glyph = b.glyphs[rng.IntN(len(b.glyphs))]
		}
		plan.Tasks = append(plan.Tasks, EffectTask{
			Kind:   b.kind,
			Glyph:  glyph,
			X:      x,
			Y:      anchor.Top,
			Start:  begin,
			Expire: begin.Add(b.lifetime),
		})
	}
	plan.Tasks = append(plan.Tasks, EffectTask{
		Kind:   EffectCaption,
		Glyph:  b.caption,
		X:      anchor.Left,
		Y:      anchor.Top + captionOffsetY,
		Start:  start,
		Expire: start.Add(captionLifetime),
	})
	return plan
}

type toneSpec struct {
	frequency float64
	duration  time.Duration
	waveform  string
}

var tones = map[Tier]map[string]toneSpec{
	TierGood: {
		"default":  {800, 800 * time.Millisecond, "sine"},
		"confetti": {1000, 500 * time.Millisecond, "square"},
		"success":  {1200, 600 * time.Millisecond, "sine"},
	},
	TierMid: {
		"default": {600, 600 * time.Millisecond, "sine"},
		"neutral": {500, 700 * time.Millisecond, "triangle"},
		"okay":    {400, 1000 * time.Millisecond, "sawtooth"},
	},
	TierBad: {
		"default": {200, 800 * time.Millisecond, "sawtooth"},
		"fail":    {150, 1000 * time.Millisecond, "square"},
		"sad":     {100, 1200 * time.Millisecond, "triangle"},
	},
}

var customClipKeys = map[Tier]string{
	TierGood: "goodScoreCustomAudio",
	TierMid:  "midScoreCustomAudio",
	TierBad:  "badScoreCustomAudio",
}

// ToneFor picks the sound for tier from a named sound setting. Unknown names
// fall back to the tier default, and "custom" refers to the stored clip.
func ToneFor(tier Tier, setting string) (Tone, bool) {
	table, ok := tones[tier]
	if !ok {
		return Tone{}, false
	}
	if setting == "custom" {
		return Tone{Volume: toneVolume, CustomClip: customClipKeys[tier]}, true
	}
	spec, ok := table[setting]
	if !ok {
		spec = table["default"]
	}
	return Tone{
		Frequency: spec.frequency,
		Duration:  spec.duration,
		Waveform:  spec.waveform,
		Volume:    toneVolume,
	}, true
}
