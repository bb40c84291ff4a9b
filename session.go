package scorehider

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/cybergodev/scorehider/internal"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// State holds the session-wide switches. Scanning runs only while auto-hide
// is enabled and the scores have not all been revealed.
type State struct {
	AutoHideEnabled bool `json:"autoHideEnabled"`
	ScoresRevealed  bool `json:"scoresRevealed"`
}

// HiddenScore describes a score the session has hidden or revealed.
type HiddenScore struct {
	ID       string   `json:"id"`
	Text     string   `json:"text"`
	Category Category `json:"category"`
	Tier     Tier     `json:"tier"`
	Revealed bool     `json:"revealed"`
}

// ScanReport summarises one full scan.
type ScanReport struct {
	Hidden   int  `json:"hidden"`
	Restored int  `json:"restored"`
	Skipped  bool `json:"skipped"`
}

// SessionOptions configures a Session. Zero values select defaults.
type SessionOptions struct {
	Settings *Settings
	// Reactor receives reveal reactions. Nil disables reactions.
	Reactor *Reactor
	Logger  *zap.Logger
	Metrics *Metrics
	// MaxDepth bounds the nesting depth of the document after AppendHTML.
	// Zero means no limit.
	MaxDepth int
}

type scoreRecord struct {
	id       string
	node     *html.Node
	text     string
	category Category
	attrs    []html.Attribute
	children []*html.Node
	revealed bool
}

// Session owns one parsed page and moves its score elements through the
// normal, pre-hidden, hidden and revealed states. The state lives on the
// nodes as marker attributes, so every pass is idempotent. A Session is not
// safe for concurrent use; a Scheduler serialises access in live use.
type Session struct {
	doc     *html.Node
	state   State
	table   RangeTable
	reactor *Reactor
	logger  *zap.Logger
	metrics *Metrics
	depth   int

	records   map[string]*scoreRecord
	order     []string
	preHidden map[*html.Node]internal.StyleSnapshot
	nextID    int
}

func NewSession(doc *html.Node, opts SessionOptions) *Session {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	settings := DefaultSettings()
	if opts.Settings != nil {
		settings = opts.Settings.Clone()
		if settings.Ranges == nil {
			settings.Ranges = DefaultRangeTable()
		}
	}
	settings.Ranges.Normalize()

	s := &Session{
		doc:       doc,
		state:     State{AutoHideEnabled: true},
		table:     settings.Ranges,
		reactor:   opts.Reactor,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		depth:     opts.MaxDepth,
		records:   make(map[string]*scoreRecord),
		preHidden: make(map[*html.Node]internal.StyleSnapshot),
	}
	if opts.Settings != nil && opts.Settings.Sound != nil && s.reactor != nil {
		s.reactor.SetSoundSettings(*opts.Settings.Sound)
	}
	return s
}

// ParseSession parses markup and wraps it in a Session.
func ParseSession(markup string, opts SessionOptions) (*Session, error) {
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHTML, err)
	}
	return NewSession(doc, opts), nil
}

func (s *Session) State() State { return s.state }

func (s *Session) Document() *html.Node { return s.doc }

// RangeTable returns a copy of the active range table.
func (s *Session) RangeTable() RangeTable { return s.table.Clone() }

func (s *Session) scanningEnabled() bool {
	return s.state.AutoHideEnabled && !s.state.ScoresRevealed
}

// skipSubtree reports whether no pass should look inside n.
func skipSubtree(n *html.Node) bool {
	if internal.IsNonContentElement(n.Data) || internal.IsInjected(n) {
		return true
	}
	switch internal.StateOf(n) {
	case internal.StateHidden, internal.StateRevealed:
		return true
	}
	return false
}

// PreScan makes every element whose direct text reads as an in-band number
// invisible, ahead of the slower classifying scan. It returns the number of
// elements it touched.
func (s *Session) PreScan() int {
	if !s.scanningEnabled() {
		return 0
	}
	start := time.Now()
	count := 0
	internal.WalkNodes(s.doc, func(n *html.Node) bool {
		switch n.Type {
		case html.DocumentNode:
			return true
		case html.ElementNode:
			return !skipSubtree(n)
		case html.TextNode:
			p := n.Parent
			if p == nil || p.Type != html.ElementNode || internal.IsDocumentRoot(p.Data) {
				return false
			}
			if internal.StateOf(p) != internal.StateNormal {
				return false
			}
			if v, ok := internal.ParseScore(n.Data); ok && internal.InScoreBand(v) {
				s.preHidden[p] = internal.PreHide(p)
				count++
			}
		}
		return false
	})
	s.metrics.recordScan("prescan", time.Since(start))
	return count
}

// Scan hides every element that reads as a relevant score and restores
// pre-hidden elements that turned out not to be one. Elements already
// hidden or revealed are left alone, so a second scan over an unchanged
// document changes nothing.
func (s *Session) Scan() ScanReport {
	if !s.scanningEnabled() {
		return ScanReport{Skipped: true}
	}
	start := time.Now()
	var report ScanReport
	internal.WalkNodes(s.doc, func(n *html.Node) bool {
		if n.Type == html.DocumentNode {
			return true
		}
		if n.Type != html.ElementNode || skipSubtree(n) {
			return false
		}
		if internal.IsDocumentRoot(n.Data) {
			return true
		}
		descend := true
		s.guard(n, "scan", func() {
			if text, ok := s.qualifies(n); ok {
				s.hide(n, text)
				report.Hidden++
				descend = false
				return
			}
			if internal.StateOf(n) == internal.StatePreHidden {
				s.clearPreHide(n)
				report.Restored++
			}
		})
		return descend
	})

	if report.Hidden > 0 {
		s.ShowBigRevealButton()
	}
	s.metrics.recordScan("full", time.Since(start))
	s.metrics.recordHidden(report.Hidden)
	s.metrics.recordRestored(report.Restored)
	if report.Hidden > 0 || report.Restored > 0 {
		s.logger.Debug("scan complete",
			zap.Int("hidden", report.Hidden),
			zap.Int("restored", report.Restored))
	}
	return report
}

// guard runs fn for one element and turns a panic into a logged, counted
// skip so the surrounding pass carries on.
func (s *Session) guard(n *html.Node, op string, fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			s.metrics.recordElementFailure()
			s.logger.Error("element processing failed",
				zap.String("op", op),
				zap.String("tag", n.Data),
				zap.String("panic", fmt.Sprint(r)))
		}
	}()
	fn()
	return true
}

// qualifies returns the trimmed text of n when n displays a single score in
// a relevant context. An element holding a hidden or revealed score never
// qualifies, as its text then includes the placeholder or a score already
// handled.
func (s *Session) qualifies(n *html.Node) (string, bool) {
	raw, truncated := internal.TextContentLimit(n, internal.MaxScoreTextLen)
	if truncated {
		return "", false
	}
	text := strings.TrimSpace(raw)
	if !internal.IsPlausibleScore(text) || internal.IsDisplayedAsRange(text) || holdsScore(n) {
		return "", false
	}
	if !internal.IsTopicallyRelevant(internal.NodeElement{Node: n}) {
		return "", false
	}
	return text, true
}

func holdsScore(n *html.Node) bool {
	found := false
	for c := n.FirstChild; c != nil && !found; c = c.NextSibling {
		internal.WalkNodes(c, func(d *html.Node) bool {
			if found || d.Type != html.ElementNode {
				return false
			}
			if st := internal.StateOf(d); st == internal.StateHidden || st == internal.StateRevealed {
				found = true
				return false
			}
			return true
		})
	}
	return found
}

func (s *Session) hide(n *html.Node, text string) {
	internal.WalkNodes(n, func(c *html.Node) bool {
		if c.Type == html.ElementNode && internal.StateOf(c) == internal.StatePreHidden {
			s.clearPreHide(c)
		}
		return true
	})

	s.nextID++
	rec := &scoreRecord{
		id:       "score-" + strconv.Itoa(s.nextID),
		node:     n,
		text:     text,
		category: internal.ClassifyCategory(internal.NodeElement{Node: n}),
		attrs:    internal.CloneAttrs(n),
		children: internal.DetachChildren(n),
	}

	n.AppendChild(internal.NewPlaceholder())
	internal.AddClass(n, internal.ClassHidden, internal.ClassClickable)
	internal.SetStyleProperty(n, "cursor", "pointer")
	internal.SetAttr(n, "title", internal.RevealTitle)
	internal.SetAttr(n, internal.AttrScoreID, rec.id)

	s.records[rec.id] = rec
	s.order = append(s.order, rec.id)
}

func (s *Session) clearPreHide(n *html.Node) {
	if snap, ok := s.preHidden[n]; ok {
		internal.ClearPreHide(n, &snap)
		delete(s.preHidden, n)
		return
	}
	internal.ClearPreHide(n, nil)
}

// restore puts back the captured markup of rec and marks it revealed.
func (s *Session) restore(rec *scoreRecord) {
	rec.node.Attr = append(rec.attrs[:len(rec.attrs):len(rec.attrs)], html.Attribute{Key: internal.AttrRevealed, Val: "true"})
	internal.ReplaceChildren(rec.node, rec.children)
	rec.children = nil
	rec.revealed = true
	s.metrics.recordRevealed()
}

// Reveal restores the hidden score id, then classifies it and fires the
// reaction anchored at bounds.
func (s *Session) Reveal(id string, bounds Rect) (Tier, error) {
	rec, ok := s.records[id]
	if !ok || rec.revealed {
		return TierNone, fmt.Errorf("%w: %s", ErrScoreNotFound, id)
	}
	tier := TierNone
	s.guard(rec.node, "reveal", func() {
		s.restore(rec)
		tier = s.react(rec, bounds)
	})
	return tier, nil
}

func (s *Session) react(rec *scoreRecord, bounds Rect) Tier {
	category := internal.ClassifyCategory(internal.NodeElement{Node: rec.node})
	tier := s.tierOf(rec.text, category)
	s.logger.Debug("score revealed",
		zap.String("id", rec.id),
		zap.String("category", string(category)),
		zap.String("tier", string(tier)))
	if s.reactor != nil {
		s.reactor.React(tier, bounds)
	}
	return tier
}

func (s *Session) tierOf(text string, category Category) Tier {
	v, ok := internal.ParseScore(text)
	if !ok {
		return TierNone
	}
	return Classify(s.table, category, v)
}

// RevealAll restores pre-hidden elements, reveals every hidden score and
// stops further scanning until scores are hidden again.
func (s *Session) RevealAll() int {
	for n := range s.preHidden {
		s.clearPreHide(n)
	}
	internal.WalkNodes(s.doc, func(n *html.Node) bool {
		if n.Type == html.ElementNode && internal.StateOf(n) == internal.StatePreHidden {
			internal.ClearPreHide(n, nil)
		}
		return true
	})

	count := 0
	for _, id := range s.order {
		rec := s.records[id]
		if rec.revealed {
			continue
		}
		if s.guard(rec.node, "reveal", func() {
			s.restore(rec)
			s.react(rec, Rect{})
		}) {
			count++
		}
	}
	s.removeBigRevealButton()
	s.state.ScoresRevealed = true
	return count
}

// HideAll forgets every reveal and scans again.
func (s *Session) HideAll() ScanReport {
	s.state.ScoresRevealed = false
	s.clearRevealed()
	for n := range s.preHidden {
		s.clearPreHide(n)
	}
	internal.WalkNodes(s.doc, func(n *html.Node) bool {
		if n.Type == html.ElementNode && internal.StateOf(n) == internal.StatePreHidden {
			internal.ClearPreHide(n, nil)
		}
		return true
	})
	return s.Scan()
}

// clearRevealed drops the revealed markers so later scans may hide those
// elements again.
func (s *Session) clearRevealed() {
	internal.WalkNodes(s.doc, func(n *html.Node) bool {
		if n.Type == html.ElementNode {
			internal.RemoveAttr(n, internal.AttrRevealed)
		}
		return true
	})
	kept := s.order[:0]
	for _, id := range s.order {
		if s.records[id].revealed {
			delete(s.records, id)
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
}

// SetAutoHide switches automatic hiding. Disabling reveals everything;
// enabling forgets reveals and scans.
func (s *Session) SetAutoHide(enabled bool) {
	s.state.AutoHideEnabled = enabled
	if !enabled {
		s.RevealAll()
		return
	}
	s.state.ScoresRevealed = false
	s.clearRevealed()
	s.Scan()
}

// ShowBigRevealButton places a fresh reveal-all button at the end of body.
func (s *Session) ShowBigRevealButton() {
	s.removeBigRevealButton()
	body := internal.FindElementByTag(s.doc, "body")
	if body == nil {
		return
	}
	body.AppendChild(internal.NewBigRevealButton())
}

func (s *Session) removeBigRevealButton() {
	if btn := internal.FindElementByID(s.doc, internal.BigButtonID); btn != nil && btn.Parent != nil {
		btn.Parent.RemoveChild(btn)
	}
}

// UpdateSettings replaces the range table and, when given, the sound
// settings. A nil range table keeps the current one.
func (s *Session) UpdateSettings(settings Settings) {
	if settings.Ranges != nil {
		s.table = settings.Ranges.Clone()
		s.table.Normalize()
	}
	if settings.Sound != nil && s.reactor != nil {
		s.reactor.SetSoundSettings(*settings.Sound)
	}
	s.logger.Info("settings updated", zap.Int("categories", len(s.table)))
}

// Scores lists the scores hidden or revealed in this session, in the order
// they were hidden.
func (s *Session) Scores() []HiddenScore {
	out := make([]HiddenScore, 0, len(s.order))
	for _, id := range s.order {
		rec := s.records[id]
		out = append(out, HiddenScore{
			ID:       rec.id,
			Text:     rec.text,
			Category: rec.category,
			Tier:     s.tierOf(rec.text, rec.category),
			Revealed: rec.revealed,
		})
	}
	return out
}

// AppendHTML parses fragment in the context of the element with parentID
// (body when empty) and appends the result. It returns the number of
// top-level nodes added. A fragment that would nest deeper than MaxDepth is
// rejected with ErrMaxDepthExceeded and nothing is appended.
func (s *Session) AppendHTML(parentID, fragment string) (int, error) {
	var parent *html.Node
	if parentID == "" {
		parent = internal.FindElementByTag(s.doc, "body")
	} else {
		parent = internal.FindElementByID(s.doc, parentID)
	}
	if parent == nil {
		return 0, fmt.Errorf("%w: %q", ErrElementNotFound, parentID)
	}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), parent)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidHTML, err)
	}
	if s.depth > 0 {
		base := 1
		for a := parent.Parent; a != nil; a = a.Parent {
			base++
		}
		for _, n := range nodes {
			if d := base + internal.Depth(n); d > s.depth {
				return 0, fmt.Errorf("%w: fragment reaches depth %d, limit %d", ErrMaxDepthExceeded, d, s.depth)
			}
		}
	}
	for _, n := range nodes {
		parent.AppendChild(n)
	}
	return len(nodes), nil
}

// DemoReaction classifies text as a context-free score and plays its
// reaction, the way a freshly revealed score would.
func (s *Session) DemoReaction(text string, bounds Rect) Tier {
	el := &html.Node{Type: html.ElementNode, Data: "div"}
	el.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	return s.react(&scoreRecord{id: "demo", node: el, text: text}, bounds)
}

// Render writes the current document.
func (s *Session) Render(w io.Writer) error {
	return html.Render(w, s.doc)
}

// HTML returns the current document as a string.
func (s *Session) HTML() (string, error) {
	var sb strings.Builder
	if err := s.Render(&sb); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// Close releases the session's reactor after queued reactions are delivered.
func (s *Session) Close() {
	if s.reactor != nil {
		s.reactor.Close()
	}
}
