package recorder

import (
	"fmt"

	"go.uber.org/zap"

	"cassette/pkg/config"
)

// Outcome describes what the engine did with one request
type Outcome string

const (
	OutcomePassthrough Outcome = "passthrough"
	OutcomeFiltered    Outcome = "filtered"
	OutcomeRecorded    Outcome = "recorded"
	OutcomeReplayed    Outcome = "replayed"
	OutcomeMiss        Outcome = "miss"
	OutcomeError       Outcome = "error"
)

// Engine wires filters, key derivation, naming and storage together and
// dispatches requests according to the configured mode
type Engine struct {
	mode      config.Mode
	store     Store
	index     *IndexedStore
	filters   *FilterEngine
	templater *Templater
	counter   Counter
	recorder  *Recorder
	replayer  *Replayer
	logger    *zap.Logger
}

type engineOptions struct {
	counter Counter
}

// EngineOption is a functional option for configuring NewEngine.
type EngineOption func(*engineOptions)

// WithCounter makes the engine number recordings from counter instead of a
// fresh one. It carries {counter} across engine rebuilds.
func WithCounter(counter Counter) EngineOption {
	return func(o *engineOptions) {
		o.counter = counter
	}
}

// NewEngine builds every component from cfg. The recordings directory is
// created here, and an invalid url pattern fails construction.
func NewEngine(cfg *config.Config, logger *zap.Logger, opts ...EngineOption) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Mode.IsValid() {
		return nil, fmt.Errorf("invalid mode: %q", cfg.Mode)
	}

	filters, err := NewFilterEngine(cfg.Filters)
	if err != nil {
		return nil, err
	}

	fileStore, err := NewFileStore(cfg.RecordingsDir, logger.With(zap.String("component", "store")))
	if err != nil {
		return nil, err
	}

	var store Store = fileStore
	var index *IndexedStore
	if cfg.Store.Index {
		index = NewIndexedStore(fileStore, logger.With(zap.String("component", "index")))
		store = index
	}

	var options engineOptions
	for _, opt := range opts {
		opt(&options)
	}

	counter := options.counter
	if counter == nil {
		counter = NewMemoryCounter()
		if cfg.Store.PersistCounter {
			fc, err := NewDirCounter(cfg.RecordingsDir, logger.With(zap.String("component", "counter")))
			if err != nil {
				return nil, err
			}
			counter = fc
		}
	}

	templater := NewTemplater(cfg.NamingPattern, counter, nil)

	e := &Engine{
		mode:      cfg.Mode,
		store:     store,
		index:     index,
		filters:   filters,
		templater: templater,
		counter:   counter,
		recorder:  NewRecorder(store, filters, templater, cfg.Matching, logger.With(zap.String("component", "recorder"))),
		replayer:  NewReplayer(store, filters, templater, cfg.Matching, logger.With(zap.String("component", "replayer"))),
		logger:    logger,
	}

	logger.Info("Cassette engine ready",
		zap.String("mode", string(cfg.Mode)),
		zap.String("recordings_dir", cfg.RecordingsDir),
		zap.String("naming_pattern", cfg.NamingPattern),
		zap.Bool("index", cfg.Store.Index),
		zap.Bool("persist_counter", cfg.Store.PersistCounter))

	return e, nil
}

// Mode returns the operating mode
func (e *Engine) Mode() config.Mode { return e.mode }

// Store returns the store requests are recorded to and replayed from
func (e *Engine) Store() Store { return e.store }

// Recorder returns the recorder
func (e *Engine) Recorder() *Recorder { return e.recorder }

// Replayer returns the replayer
func (e *Engine) Replayer() *Replayer { return e.replayer }

// Counter returns the counter behind {counter}
func (e *Engine) Counter() Counter { return e.counter }

// Filters returns the filter engine
func (e *Engine) Filters() *FilterEngine { return e.filters }

// Invalidate drops the requestKey index, if one is in use. It is called when
// the recordings directory changes behind the engine.
func (e *Engine) Invalidate() {
	if e.index != nil {
		e.index.Invalidate()
	}
}

// Handle runs one request through the engine. next invokes the downstream
// handler and returns the response it produced; it is called at most once.
//
// In off mode next always runs. In replay mode a matching recording is
// written to w and next is skipped; otherwise next runs unchanged. In record
// mode next runs and, for eligible requests, the finished exchange is saved
// before Handle returns. Storage errors are logged and never change the
// response.
func (e *Engine) Handle(req Request, w ResponseWriter, next func() Response) Outcome {
	switch e.mode {
	case config.ModeReplay:
		return e.handleReplay(req, w, next)
	case config.ModeRecord:
		return e.handleRecord(req, next)
	default:
		next()
		return OutcomePassthrough
	}
}

func (e *Engine) handleReplay(req Request, w ResponseWriter, next func() Response) Outcome {
	if !e.filters.IsEligible(req) {
		next()
		return OutcomeFiltered
	}

	hit, err := e.replayer.Replay(req, w)
	if err != nil {
		e.logger.Error("Replay lookup failed",
			zap.String("method", req.Method()),
			zap.String("url", req.URL()),
			zap.Error(err))
		next()
		return OutcomeError
	}
	if hit {
		return OutcomeReplayed
	}

	next()
	return OutcomeMiss
}

func (e *Engine) handleRecord(req Request, next func() Response) Outcome {
	if !e.filters.IsEligible(req) {
		next()
		return OutcomeFiltered
	}

	resp := next()
	if _, err := e.recorder.Record(req, resp); err != nil {
		e.logger.Error("Failed to record interaction",
			zap.String("method", req.Method()),
			zap.String("url", req.URL()),
			zap.Error(err))
		return OutcomeError
	}
	return OutcomeRecorded
}
