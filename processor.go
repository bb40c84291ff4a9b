// Package scorehider finds test scores on HTML pages and hides them behind a
// click-to-reveal placeholder. Revealing a score classifies it against
// configurable ranges and plays a reaction for its tier.
package scorehider

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cybergodev/scorehider/internal"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// Default configuration values.
const (
	DefaultMaxInputSize      = 50 * 1024 * 1024 // 50MB
	DefaultMaxCacheEntries   = 1000             // 1000 entries
	DefaultWorkerPoolSize    = 4                // 4 workers
	DefaultCacheTTL          = time.Hour        // 1 hour
	DefaultMaxDepth          = 100              // 100 levels
	DefaultProcessingTimeout = 30 * time.Second // 30 seconds
)

// Processor hides scores in whole documents and opens live page sessions.
// It is safe for concurrent use.
type Processor struct {
	config *Config
	cache  *internal.Cache
	logger *zap.Logger
	closed atomic.Bool
	stats  struct {
		totalProcessed   atomic.Int64
		cacheHits        atomic.Int64
		cacheMisses      atomic.Int64
		errorCount       atomic.Int64
		scoresHidden     atomic.Int64
		totalProcessTime atomic.Int64
	}
}

// Config holds processor configuration.
type Config struct {
	MaxInputSize      int
	MaxCacheEntries   int
	CacheTTL          time.Duration
	WorkerPoolSize    int
	MaxDepth          int
	ProcessingTimeout time.Duration
	// Encoding forces the input charset of ProcessBytes; empty detects it.
	Encoding string

	// Live session timing. ReactionCooldown below zero disables the cooldown.
	ScanInterval     time.Duration
	FollowUpDelay    time.Duration
	ReactionCooldown time.Duration
	EffectQueueSize  int

	// Settings is the range table and sound choice; nil uses the defaults.
	Settings *Settings
	Logger   *zap.Logger
	Metrics  *Metrics
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		MaxInputSize:      DefaultMaxInputSize,
		MaxCacheEntries:   DefaultMaxCacheEntries,
		CacheTTL:          DefaultCacheTTL,
		WorkerPoolSize:    DefaultWorkerPoolSize,
		MaxDepth:          DefaultMaxDepth,
		ProcessingTimeout: DefaultProcessingTimeout,
		ScanInterval:      DefaultScanInterval,
		FollowUpDelay:     DefaultFollowUpDelay,
		ReactionCooldown:  DefaultReactionCooldown,
		EffectQueueSize:   DefaultEffectQueueSize,
	}
}

func validateConfig(c Config) error {
	switch {
	case c.MaxInputSize <= 0:
		return fmt.Errorf("%w: MaxInputSize must be positive", ErrInvalidConfig)
	case c.MaxCacheEntries < 0:
		return fmt.Errorf("%w: MaxCacheEntries cannot be negative", ErrInvalidConfig)
	case c.CacheTTL < 0:
		return fmt.Errorf("%w: CacheTTL cannot be negative", ErrInvalidConfig)
	case c.WorkerPoolSize <= 0:
		return fmt.Errorf("%w: WorkerPoolSize must be positive", ErrInvalidConfig)
	case c.MaxDepth <= 0:
		return fmt.Errorf("%w: MaxDepth must be positive", ErrInvalidConfig)
	case c.ProcessingTimeout < 0:
		return fmt.Errorf("%w: ProcessingTimeout cannot be negative", ErrInvalidConfig)
	case c.ScanInterval < 0:
		return fmt.Errorf("%w: ScanInterval cannot be negative", ErrInvalidConfig)
	case c.FollowUpDelay < 0:
		return fmt.Errorf("%w: FollowUpDelay cannot be negative", ErrInvalidConfig)
	case c.EffectQueueSize < 0:
		return fmt.Errorf("%w: EffectQueueSize cannot be negative", ErrInvalidConfig)
	}
	return nil
}

// Result is a processed document.
type Result struct {
	HTML           string
	Scores         []HiddenScore
	PreHidden      int
	Restored       int
	Charset        string
	ProcessingTime time.Duration
}

// Statistics contains processor usage counters.
type Statistics struct {
	TotalProcessed     int64
	CacheHits          int64
	CacheMisses        int64
	ErrorCount         int64
	ScoresHidden       int64
	AverageProcessTime time.Duration
}

// New creates a Processor from config.
func New(config Config) (*Processor, error) {
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	if config.Settings != nil {
		s := config.Settings.Clone()
		if s.Ranges == nil {
			s.Ranges = DefaultRangeTable()
		}
		s.Ranges.Normalize()
		config.Settings = &s
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		config: &config,
		cache:  internal.NewCache(config.MaxCacheEntries, config.CacheTTL, nil),
		logger: logger,
	}, nil
}

// NewWithDefaults creates a Processor with DefaultConfig.
func NewWithDefaults() *Processor {
	p, _ := New(DefaultConfig())
	return p
}

// Process hides the scores of an HTML document the way a page session
// would on start: a pre-scan followed by a full scan.
func (p *Processor) Process(htmlContent string) (*Result, error) {
	if p.closed.Load() {
		return nil, ErrProcessorClosed
	}

	startTime := time.Now()

	if len(htmlContent) > p.config.MaxInputSize {
		p.stats.errorCount.Add(1)
		return nil, fmt.Errorf("%w: size=%d, max=%d", ErrInputTooLarge, len(htmlContent), p.config.MaxInputSize)
	}

	cacheKey := p.generateCacheKey(htmlContent)
	if cached := p.cache.Get(cacheKey); cached != nil {
		p.stats.cacheHits.Add(1)
		p.stats.totalProcessed.Add(1)
		if result, ok := cached.(*Result); ok {
			return result, nil
		}
	}
	p.stats.cacheMisses.Add(1)

	var result *Result
	var err error
	if p.config.ProcessingTimeout > 0 {
		result, err = p.processWithTimeout(htmlContent)
	} else {
		result, err = p.processContent(htmlContent)
	}

	if err != nil {
		p.stats.errorCount.Add(1)
		return nil, err
	}

	processingTime := time.Since(startTime)
	result.ProcessingTime = processingTime
	p.stats.totalProcessTime.Add(int64(processingTime))
	p.stats.totalProcessed.Add(1)
	p.stats.scoresHidden.Add(int64(len(result.Scores)))

	if p.config.MaxCacheEntries > 0 {
		p.cache.Set(cacheKey, result)
	}

	return result, nil
}

func (p *Processor) processWithTimeout(htmlContent string) (*Result, error) {
	type processResult struct {
		result *Result
		err    error
	}

	resultChan := make(chan processResult, 1)
	go func() {
		result, err := p.processContent(htmlContent)
		resultChan <- processResult{result: result, err: err}
	}()

	select {
	case res := <-resultChan:
		return res.result, res.err
	case <-time.After(p.config.ProcessingTimeout):
		return nil, ErrProcessingTimeout
	}
}

// ProcessBytes decodes data to UTF-8, detecting the charset unless
// Config.Encoding forces one, and processes the result.
func (p *Processor) ProcessBytes(data []byte) (*Result, error) {
	if p.closed.Load() {
		return nil, ErrProcessorClosed
	}
	if len(data) > p.config.MaxInputSize {
		p.stats.errorCount.Add(1)
		return nil, fmt.Errorf("%w: size=%d, max=%d", ErrInputTooLarge, len(data), p.config.MaxInputSize)
	}
	content, charset, err := internal.DecodeHTML(data, p.config.Encoding)
	if err != nil {
		p.stats.errorCount.Add(1)
		return nil, fmt.Errorf("%w: decode %s: %v", ErrInvalidHTML, charset, err)
	}
	result, err := p.Process(content)
	if err != nil {
		return nil, err
	}
	if result.Charset != charset {
		copied := *result
		copied.Charset = charset
		result = &copied
	}
	return result, nil
}

// ProcessFile reads and processes an HTML file.
func (p *Processor) ProcessFile(filePath string) (*Result, error) {
	if p.closed.Load() {
		return nil, ErrProcessorClosed
	}
	if filePath == "" {
		return nil, fmt.Errorf("empty file path")
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read file %q: %w", filePath, err)
	}
	return p.ProcessBytes(data)
}

// ProcessBatch processes documents concurrently on WorkerPoolSize workers.
func (p *Processor) ProcessBatch(htmlContents []string) ([]*Result, error) {
	if p.closed.Load() {
		return nil, ErrProcessorClosed
	}

	if len(htmlContents) == 0 {
		return []*Result{}, nil
	}

	results := make([]*Result, len(htmlContents))
	errs := make([]error, len(htmlContents))
	sem := make(chan struct{}, p.config.WorkerPoolSize)
	var wg sync.WaitGroup

	for i, content := range htmlContents {
		wg.Add(1)
		go func(idx int, doc string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			results[idx], errs[idx] = p.Process(doc)
		}(i, content)
	}

	wg.Wait()
	return collectResults(results, errs, nil)
}

// ProcessBatchFiles processes files concurrently on WorkerPoolSize workers.
func (p *Processor) ProcessBatchFiles(filePaths []string) ([]*Result, error) {
	if p.closed.Load() {
		return nil, ErrProcessorClosed
	}

	if len(filePaths) == 0 {
		return []*Result{}, nil
	}

	results := make([]*Result, len(filePaths))
	errs := make([]error, len(filePaths))
	sem := make(chan struct{}, p.config.WorkerPoolSize)
	var wg sync.WaitGroup

	for i, path := range filePaths {
		wg.Add(1)
		go func(idx int, filePath string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			results[idx], errs[idx] = p.ProcessFile(filePath)
		}(i, path)
	}

	wg.Wait()
	return collectResults(results, errs, filePaths)
}

func collectResults(results []*Result, errs []error, names []string) ([]*Result, error) {
	var firstErr error
	successCount := 0
	failCount := 0

	for i, err := range errs {
		if err != nil {
			failCount++
			if firstErr == nil {
				if names != nil {
					firstErr = fmt.Errorf("%s: %w", names[i], err)
				} else {
					firstErr = fmt.Errorf("item %d: %w", i, err)
				}
			}
		} else {
			successCount++
		}
	}

	switch {
	case successCount == 0:
		return results, fmt.Errorf("all %d items failed: %w", len(results), firstErr)
	case failCount > 0:
		return results, fmt.Errorf("partial failure (%d/%d succeeded): %w", successCount, len(results), firstErr)
	default:
		return results, nil
	}
}

// OpenOptions configures a live page session.
type OpenOptions struct {
	// Settings overrides the processor settings for this session.
	Settings *Settings
	// Sink receives reactions; nil logs them.
	Sink  EffectSink
	Clock Clock
}

// Open parses markup into a live page session. Drive the returned scheduler
// with Run, or with Handle and Advance, and call Session().Close when done.
func (p *Processor) Open(markup string, opts OpenOptions) (*Scheduler, error) {
	if p.closed.Load() {
		return nil, ErrProcessorClosed
	}
	if len(markup) > p.config.MaxInputSize {
		return nil, fmt.Errorf("%w: size=%d, max=%d", ErrInputTooLarge, len(markup), p.config.MaxInputSize)
	}
	doc, err := p.parse(markup)
	if err != nil {
		return nil, err
	}

	settings := opts.Settings
	if settings == nil {
		settings = p.config.Settings
	}
	var sound *SoundSettings
	if settings != nil {
		sound = settings.Sound
	}
	reactor := NewReactor(ReactorOptions{
		Sink:      opts.Sink,
		Clock:     opts.Clock,
		Cooldown:  p.config.ReactionCooldown,
		QueueSize: p.config.EffectQueueSize,
		Sound:     sound,
		Logger:    p.logger,
		Metrics:   p.config.Metrics,
	})
	session := NewSession(doc, SessionOptions{
		Settings: settings,
		Reactor:  reactor,
		Logger:   p.logger,
		Metrics:  p.config.Metrics,
		MaxDepth: p.config.MaxDepth,
	})
	return NewScheduler(session, SchedulerOptions{
		Clock:         opts.Clock,
		ScanInterval:  p.config.ScanInterval,
		FollowUpDelay: p.config.FollowUpDelay,
		Logger:        p.logger,
	}), nil
}

// GetStatistics returns a snapshot of the usage counters.
func (p *Processor) GetStatistics() Statistics {
	totalProcessed := p.stats.totalProcessed.Load()
	totalTime := time.Duration(p.stats.totalProcessTime.Load())
	var avgTime time.Duration
	if totalProcessed > 0 {
		avgTime = totalTime / time.Duration(totalProcessed)
	}
	return Statistics{
		TotalProcessed:     totalProcessed,
		CacheHits:          p.stats.cacheHits.Load(),
		CacheMisses:        p.stats.cacheMisses.Load(),
		ErrorCount:         p.stats.errorCount.Load(),
		ScoresHidden:       p.stats.scoresHidden.Load(),
		AverageProcessTime: avgTime,
	}
}

// ClearCache drops cached results and resets the cache counters.
func (p *Processor) ClearCache() {
	p.cache.Clear()
	p.stats.cacheHits.Store(0)
	p.stats.cacheMisses.Store(0)
}

// Close releases the processor. Later calls fail with ErrProcessorClosed.
func (p *Processor) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	p.cache.Clear()
	return nil
}

func (p *Processor) parse(htmlContent string) (*html.Node, error) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHTML, err)
	}
	if internal.Depth(doc) > p.config.MaxDepth {
		return nil, ErrMaxDepthExceeded
	}
	return doc, nil
}

func (p *Processor) processContent(htmlContent string) (*Result, error) {
	if strings.TrimSpace(htmlContent) == "" {
		return &Result{}, nil
	}
	doc, err := p.parse(htmlContent)
	if err != nil {
		return nil, err
	}

	session := NewSession(doc, SessionOptions{
		Settings: p.config.Settings,
		Logger:   p.logger,
		Metrics:  p.config.Metrics,
		MaxDepth: p.config.MaxDepth,
	})
	result := &Result{PreHidden: session.PreScan()}
	report := session.Scan()
	result.Restored = report.Restored
	result.Scores = session.Scores()

	out, err := session.HTML()
	if err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	result.HTML = out
	return result, nil
}

func (p *Processor) generateCacheKey(content string) string {
	h := sha256.New()
	if p.config.Settings != nil {
		if b, err := json.Marshal(p.config.Settings); err == nil {
			h.Write(b)
		}
	}
	h.Write([]byte{0})
	h.Write([]byte(content))
	var buf [64]byte
	sum := h.Sum(buf[:0])
	return hex.EncodeToString(sum)
}
