package scorehider

import (
	"container/heap"
	"context"
	"fmt"
	"time"

	"github.com/cybergodev/scorehider/internal"
	"go.uber.org/zap"
)

const (
	DefaultScanInterval  = 2 * time.Second
	DefaultFollowUpDelay = 100 * time.Millisecond
)

// EventKind identifies what happened to a page session.
type EventKind int

const (
	// EventStart runs the pre-scan and the first scan and arms the
	// periodic safety-net scan.
	EventStart EventKind = iota
	// EventDocumentReady rescans once the page finished loading.
	EventDocumentReady
	// EventMutation reports nodes added to the page.
	EventMutation
	// EventAppendHTML adds markup to the page and is then handled as a
	// mutation.
	EventAppendHTML
	// EventClick is a click on a hidden score or on the reveal-all button.
	EventClick
	// EventCommand carries an inbound control command.
	EventCommand
)

func (k EventKind) String() string {
	switch k {
	case EventStart:
		return "start"
	case EventDocumentReady:
		return "document_ready"
	case EventMutation:
		return "mutation"
	case EventAppendHTML:
		return "append_html"
	case EventClick:
		return "click"
	case EventCommand:
		return "command"
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Event is one entry of a session's event queue.
type Event struct {
	Kind EventKind
	// Added is the number of nodes a mutation inserted.
	Added int
	// ParentID and HTML describe an append; an empty ParentID means body.
	ParentID string
	HTML     string
	// ScoreID is the clicked score, or the reveal-all button id.
	ScoreID string
	Bounds  Rect
	Command Command
}

// Outcome reports what handling an event did.
type Outcome struct {
	PreHidden int        `json:"preHidden,omitempty"`
	Scan      ScanReport `json:"scan"`
	Added     int        `json:"added,omitempty"`
	Revealed  int        `json:"revealed,omitempty"`
	Tier      Tier       `json:"tier,omitempty"`
	State     State      `json:"state"`
}

type timerKind int

const (
	timerPeriodic timerKind = iota
	timerFollowUp
	timerDemo
)

type timer struct {
	due  time.Time
	seq  uint64
	kind timerKind
	text string
}

type timerHeap []*timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].due.Equal(h[j].due) {
		return h[i].seq < h[j].seq
	}
	return h[i].due.Before(h[j].due)
}

func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *timerHeap) Push(x any) { *h = append(*h, x.(*timer)) }

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}

// SchedulerOptions configures a Scheduler. Zero values select defaults.
type SchedulerOptions struct {
	Clock         Clock
	ScanInterval  time.Duration
	FollowUpDelay time.Duration
	Logger        *zap.Logger
}

type request struct {
	ev    Event
	fn    func(*Session) error
	reply chan response
}

type response struct {
	out Outcome
	err error
}

// Scheduler feeds a Session from an event queue and a timer heap. Handle and
// Advance drive it directly and deterministically; Run drives it in real
// time, with Submit and Do posting work onto the loop goroutine.
type Scheduler struct {
	session  *Session
	clock    Clock
	interval time.Duration
	followUp time.Duration
	logger   *zap.Logger

	timers  timerHeap
	seq     uint64
	started bool

	requests chan request
	done     chan struct{}
}

func NewScheduler(session *Session, opts SchedulerOptions) *Scheduler {
	if opts.Clock == nil {
		opts.Clock = SystemClock()
	}
	if opts.ScanInterval <= 0 {
		opts.ScanInterval = DefaultScanInterval
	}
	if opts.FollowUpDelay <= 0 {
		opts.FollowUpDelay = DefaultFollowUpDelay
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Scheduler{
		session:  session,
		clock:    opts.Clock,
		interval: opts.ScanInterval,
		followUp: opts.FollowUpDelay,
		logger:   opts.Logger,
		requests: make(chan request),
		done:     make(chan struct{}),
	}
}

func (s *Scheduler) Session() *Session { return s.session }

func (s *Scheduler) schedule(delay time.Duration, kind timerKind, text string) {
	s.seq++
	heap.Push(&s.timers, &timer{
		due:  s.clock.Now().Add(delay),
		seq:  s.seq,
		kind: kind,
		text: text,
	})
}

// NextDue returns the due time of the earliest pending timer.
func (s *Scheduler) NextDue() (time.Time, bool) {
	if len(s.timers) == 0 {
		return time.Time{}, false
	}
	return s.timers[0].due, true
}

// Pending returns the number of armed timers.
func (s *Scheduler) Pending() int { return len(s.timers) }

// Advance fires, in due order, every timer due at or before now and returns
// how many fired.
func (s *Scheduler) Advance(now time.Time) int {
	fired := 0
	for len(s.timers) > 0 && !s.timers[0].due.After(now) {
		t := heap.Pop(&s.timers).(*timer)
		fired++
		switch t.kind {
		case timerPeriodic:
			s.session.Scan()
			next := t.due.Add(s.interval)
			if !next.After(now) {
				next = now.Add(s.interval)
			}
			s.seq++
			heap.Push(&s.timers, &timer{due: next, seq: s.seq, kind: timerPeriodic})
		case timerFollowUp:
			s.session.Scan()
		case timerDemo:
			tier := s.session.DemoReaction(t.text, Rect{})
			s.logger.Debug("demo reaction", zap.String("score", t.text), zap.String("tier", string(tier)))
		}
	}
	return fired
}

// Handle applies one event to the session.
func (s *Scheduler) Handle(ev Event) (Outcome, error) {
	var out Outcome
	var err error
	switch ev.Kind {
	case EventStart:
		if !s.started {
			s.started = true
			out.PreHidden = s.session.PreScan()
			s.schedule(s.interval, timerPeriodic, "")
		}
		out.Scan = s.session.Scan()
	case EventDocumentReady:
		out.Scan = s.session.Scan()
	case EventAppendHTML:
		ev.Added, err = s.session.AppendHTML(ev.ParentID, ev.HTML)
		if err != nil {
			return out, err
		}
		out.Added = ev.Added
		out.Scan = s.mutated(ev.Added)
	case EventMutation:
		out.Added = ev.Added
		out.Scan = s.mutated(ev.Added)
	case EventClick:
		if ev.ScoreID == internal.BigButtonID {
			out.Revealed = s.session.RevealAll()
			break
		}
		out.Tier, err = s.session.Reveal(ev.ScoreID, ev.Bounds)
		if err == nil {
			out.Revealed = 1
		}
	case EventCommand:
		out, err = s.dispatch(ev.Command)
	default:
		err = fmt.Errorf("unknown event kind %v", ev.Kind)
	}
	out.State = s.session.State()
	return out, err
}

// mutated scans right away and arms one delayed follow-up scan for content
// that renders late.
func (s *Scheduler) mutated(added int) ScanReport {
	if added <= 0 {
		return ScanReport{Skipped: true}
	}
	report := s.session.Scan()
	s.schedule(s.followUp, timerFollowUp, "")
	return report
}

func (s *Scheduler) dispatch(cmd Command) (Outcome, error) {
	var out Outcome
	switch cmd.Action {
	case ActionHideAll:
		out.Scan = s.session.HideAll()
	case ActionRevealAll:
		out.Revealed = s.session.RevealAll()
	case ActionShowBigRevealButton:
		s.session.ShowBigRevealButton()
	case ActionToggleAutoHide:
		s.session.SetAutoHide(cmd.Enabled != nil && *cmd.Enabled)
	case ActionUpdateSettings:
		s.session.UpdateSettings(Settings{Ranges: cmd.Settings, Sound: cmd.SoundSettings})
	case ActionTestEffects:
		for _, demo := range demoScores {
			s.schedule(demo.after, timerDemo, demo.text)
		}
	default:
		return out, fmt.Errorf("%w: %q", ErrUnknownAction, cmd.Action)
	}
	s.logger.Debug("command handled", zap.String("action", string(cmd.Action)))
	return out, nil
}

// Run owns the session until ctx is done: it serves Submit and Do requests
// and fires timers as they fall due.
func (s *Scheduler) Run(ctx context.Context) error {
	defer close(s.done)
	for {
		var wake <-chan time.Time
		var t *time.Timer
		if due, ok := s.NextDue(); ok {
			t = time.NewTimer(max(due.Sub(s.clock.Now()), 0))
			wake = t.C
		}

		select {
		case <-ctx.Done():
			if t != nil {
				t.Stop()
			}
			return ctx.Err()
		case req := <-s.requests:
			var resp response
			if req.fn != nil {
				resp.err = req.fn(s.session)
			} else {
				resp.out, resp.err = s.Handle(req.ev)
			}
			req.reply <- resp
		case <-wake:
			s.Advance(s.clock.Now())
		}
		if t != nil {
			t.Stop()
		}
	}
}

func (s *Scheduler) post(ctx context.Context, req request) (Outcome, error) {
	req.reply = make(chan response, 1)
	select {
	case s.requests <- req:
	case <-s.done:
		return Outcome{}, ErrSessionClosed
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
	select {
	case resp := <-req.reply:
		return resp.out, resp.err
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// Submit posts ev to the running loop and waits for its outcome.
func (s *Scheduler) Submit(ctx context.Context, ev Event) (Outcome, error) {
	return s.post(ctx, request{ev: ev})
}

// Do runs fn against the session on the loop goroutine.
func (s *Scheduler) Do(ctx context.Context, fn func(*Session) error) error {
	_, err := s.post(ctx, request{fn: fn})
	return err
}

// Done is closed once Run returns.
func (s *Scheduler) Done() <-chan struct{} { return s.done }
