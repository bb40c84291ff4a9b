package scorehider

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/cybergodev/scorehider/internal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Effect plan types are shared with the internals that lay them out.
type (
	EffectPlan = internal.EffectPlan
	EffectTask = internal.EffectTask
	EffectKind = internal.EffectKind
	Tone       = internal.Tone
)

const (
	EffectConfetti = internal.EffectConfetti
	EffectEmoji    = internal.EffectEmoji
	EffectCaption  = internal.EffectCaption
)

const (
	DefaultReactionCooldown = time.Second
	DefaultEffectQueueSize  = 16
	sinkTimeout             = 5 * time.Second
)

// EffectSink renders reactions. Emit must not retain plan after returning.
type EffectSink interface {
	Emit(ctx context.Context, plan *EffectPlan) error
}

// EffectSinkFunc adapts a function to EffectSink.
type EffectSinkFunc func(ctx context.Context, plan *EffectPlan) error

func (f EffectSinkFunc) Emit(ctx context.Context, plan *EffectPlan) error {
	return f(ctx, plan)
}

type logSink struct {
	logger *zap.Logger
}

// NewLogSink returns a sink that writes each plan to logger.
func NewLogSink(logger *zap.Logger) EffectSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return logSink{logger: logger}
}

func (s logSink) Emit(_ context.Context, plan *EffectPlan) error {
	fields := []zap.Field{
		zap.String("tier", string(plan.Tier)),
		zap.String("caption", plan.Caption),
		zap.Int("tasks", len(plan.Tasks)),
		zap.Int("confetti", plan.Count(EffectConfetti)),
		zap.Int("emoji", plan.Count(EffectEmoji)),
		zap.Time("expires", plan.Expires()),
		zap.Float64("anchor_left", plan.Anchor.Left),
		zap.Float64("anchor_top", plan.Anchor.Top),
	}
	if plan.Tone != nil {
		fields = append(fields,
			zap.Float64("tone_hz", plan.Tone.Frequency),
			zap.String("tone_clip", plan.Tone.CustomClip))
	}
	s.logger.Info("reaction", fields...)
	return nil
}

// ReactorOptions configures a Reactor. Zero values select defaults.
type ReactorOptions struct {
	Sink     EffectSink
	Clock    Clock
	Cooldown time.Duration
	// QueueSize bounds pending plans. A negative size delivers each plan on
	// the calling goroutine.
	QueueSize int
	Sound     *SoundSettings
	Logger    *zap.Logger
	Metrics   *Metrics
	Seed      uint64
}

// Reactor turns a classified reveal into an effect plan and delivers it to
// the sink. Calls inside the cooldown window are dropped.
type Reactor struct {
	sink    EffectSink
	clock   Clock
	logger  *zap.Logger
	metrics *Metrics

	mu      sync.Mutex
	limiter *rate.Limiter
	rng     *rand.Rand
	sound   SoundSettings
	closed  bool

	queue chan *EffectPlan
	done  chan struct{}
}

func NewReactor(opts ReactorOptions) *Reactor {
	if opts.Sink == nil {
		opts.Sink = NewLogSink(opts.Logger)
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Cooldown == 0 {
		opts.Cooldown = DefaultReactionCooldown
	}
	if opts.QueueSize == 0 {
		opts.QueueSize = DefaultEffectQueueSize
	}
	sound := DefaultSoundSettings()
	if opts.Sound != nil {
		sound = *opts.Sound
	}
	seed := opts.Seed
	if seed == 0 {
		seed = uint64(opts.Clock.Now().UnixNano())
	}

	limit := rate.Inf
	if opts.Cooldown > 0 {
		limit = rate.Every(opts.Cooldown)
	}

	r := &Reactor{
		sink:    opts.Sink,
		clock:   opts.Clock,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		limiter: rate.NewLimiter(limit, 1),
		rng:     rand.New(rand.NewPCG(seed, seed>>1|1)),
		sound:   sound,
		done:    make(chan struct{}),
	}
	if opts.QueueSize > 0 {
		r.queue = make(chan *EffectPlan, opts.QueueSize)
		go r.run()
	} else {
		close(r.done)
	}
	return r
}

// SetSoundSettings replaces the sound choices used for later reactions.
func (r *Reactor) SetSoundSettings(s SoundSettings) {
	r.mu.Lock()
	r.sound = s
	r.mu.Unlock()
}

// React plans the reaction for tier at anchor and hands it to the sink. It
// reports whether a plan was accepted; TierNone, the cooldown window, a full
// queue and a closed reactor all drop the call.
func (r *Reactor) React(tier Tier, anchor Rect) bool {
	if tier == TierNone || tier == "" {
		return false
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false
	}
	now := r.clock.Now()
	if !r.limiter.AllowN(now, 1) {
		r.mu.Unlock()
		r.metrics.recordSuppressed("cooldown")
		r.logger.Debug("reaction suppressed by cooldown", zap.String("tier", string(tier)))
		return false
	}
	plan := internal.PlanEffect(tier, anchor, now, r.rng)
	if plan == nil {
		r.mu.Unlock()
		return false
	}
	if r.sound.EnableSounds {
		if tone, ok := internal.ToneFor(tier, r.sound.SoundFor(tier)); ok {
			plan.Tone = &tone
		}
	}

	if r.queue == nil {
		r.mu.Unlock()
		r.deliver(plan)
		return true
	}

	select {
	case r.queue <- plan:
		r.mu.Unlock()
		return true
	default:
		r.mu.Unlock()
		r.metrics.recordSuppressed("queue_full")
		r.logger.Warn("effect queue full, dropping reaction", zap.String("tier", string(tier)))
		return false
	}
}

func (r *Reactor) run() {
	defer close(r.done)
	for plan := range r.queue {
		r.deliver(plan)
	}
}

func (r *Reactor) deliver(plan *EffectPlan) {
	defer func() {
		if rec := recover(); rec != nil {
			r.metrics.recordSinkFailure()
			r.logger.Error("effect sink panicked",
				zap.String("tier", string(plan.Tier)),
				zap.String("panic", fmt.Sprint(rec)))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
	defer cancel()

	if err := r.sink.Emit(ctx, plan); err != nil {
		r.metrics.recordSinkFailure()
		r.logger.Warn("effect sink failed", zap.String("tier", string(plan.Tier)), zap.Error(err))
		return
	}
	r.metrics.recordReaction(plan.Tier)
}

// Close stops accepting reactions and waits for queued plans to be
// delivered. It is safe to call more than once.
func (r *Reactor) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		<-r.done
		return
	}
	r.closed = true
	if r.queue != nil {
		close(r.queue)
	}
	r.mu.Unlock()
	<-r.done
}
