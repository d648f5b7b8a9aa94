package pipeline

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hed1ad/streamguard/pkg/cache"
	"github.com/hed1ad/streamguard/pkg/config"
	"github.com/hed1ad/streamguard/pkg/errdefs"
	"github.com/hed1ad/streamguard/pkg/metrics"
	"github.com/hed1ad/streamguard/pkg/preprocess"
	"github.com/hed1ad/streamguard/pkg/series"
	"github.com/hed1ad/streamguard/pkg/severity"
	"github.com/hed1ad/streamguard/pkg/stream"
	"github.com/hed1ad/streamguard/pkg/suppress"
)

// DefaultPrefix prefixes the instance names of the pipelines.
const DefaultPrefix = "algorithm_"

// Orchestrator fans each batch out to one pipeline per configured algorithm.
//
// All pipelines share one store and one history buffer per column, sized to
// the largest detector window. One cycle runs at a time. Two orchestrators
// sharing a store must use distinct prefixes.
type Orchestrator struct {
	cfg          config.Config
	store        *cache.Store
	engine       *stream.Engine
	preprocessor *preprocess.Preprocessor
	registry     *cache.Registry
	signal       *cache.Signal
	pipelines    []*Pipeline
	maxWindow    int
	prefix       string
	raw          bool
	logger       *zap.Logger
	metrics      *metrics.Metrics

	mu sync.Mutex
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithStore sets the cache store. By default each orchestrator owns a new one.
func WithStore(s *cache.Store) Option {
	return func(o *Orchestrator) {
		o.store = s
	}
}

// WithLogger sets the logger passed to every stage.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// WithMetrics sets the metrics sink passed to every stage.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithPrefix sets the instance name prefix.
func WithPrefix(prefix string) Option {
	return func(o *Orchestrator) {
		o.prefix = prefix
	}
}

// WithoutPreprocessing passes batches to the pipelines as received. The
// caller then guarantees ordered, finite batches.
func WithoutPreprocessing() Option {
	return func(o *Orchestrator) {
		o.raw = true
	}
}

// New validates cfg and builds one pipeline per algorithm.
// Invalid or incomplete configuration fails with errdefs.ErrMissingParameter.
func New(cfg config.Config, opts ...Option) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &Orchestrator{
		cfg:      cfg,
		registry: cache.NewRegistry(),
		signal:   &cache.Signal{},
		prefix:   DefaultPrefix,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.store == nil {
		o.store = cache.NewStore()
	}
	if o.prefix == "" {
		return nil, errdefs.MissingParameter("instance prefix")
	}

	o.engine = stream.New(o.store, stream.WithLogger(o.logger), stream.WithMetrics(o.metrics))
	if !o.raw {
		o.preprocessor = preprocess.New(preprocess.Config{
			MissMaxRate: cfg.Validation.MissMaxRate,
			Interval:    cfg.Preprocess.Interval.Std(),
		}, preprocess.WithLogger(o.logger))
	}

	for i, a := range cfg.Algorithms {
		p, err := o.newPipeline(o.prefix+strconv.Itoa(i), a)
		if err != nil {
			return nil, err
		}
		o.pipelines = append(o.pipelines, p)
		o.maxWindow = max(o.maxWindow, p.Window())
	}
	return o, nil
}

func (o *Orchestrator) newPipeline(name string, a config.Algorithm) (*Pipeline, error) {
	det, err := newDetector(name, a, o.engine, o.store)
	if err != nil {
		return nil, err
	}
	suppressors, err := newSuppressors(name, o.cfg.SuppressorsFor(*a.Kind), o.store)
	if err != nil {
		return nil, err
	}

	logger := o.logger.With(zap.String("instance", name))
	return &Pipeline{
		detector: det,
		chain:    suppress.NewChain(name, suppressors, suppress.WithLogger(o.logger), suppress.WithMetrics(o.metrics)),
		combiner: severity.NewCombiner(a.Kind.String(), newMethods(name, o.cfg.Severity, o.store)...),
		store:    o.store,
		logger:   logger,
		metrics:  o.metrics,
	}, nil
}

// Pipelines returns the pipelines in configuration order.
func (o *Orchestrator) Pipelines() []*Pipeline {
	return o.pipelines
}

// MaxWindow returns the history length kept per column.
func (o *Orchestrator) MaxWindow() int {
	return o.maxWindow
}

// Store returns the cache store holding the detection state.
func (o *Orchestrator) Store() *cache.Store {
	return o.store
}

// RequestMaintenance asks the next cycle to evict the state of columns not
// seen since the previous maintenance. It is safe to call from any goroutine.
func (o *Orchestrator) RequestMaintenance() {
	o.signal.Raise()
}

// Run detects anomalies in f with every pipeline, in configuration order,
// then commits f into history. It fails with errdefs.ErrNoNewData when every
// column of f was already processed, and with errdefs.ErrDataQuality when f
// misses too many values.
func (o *Orchestrator) Run(f *series.Frame) ([]series.Detection, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	start := time.Now()
	logger := o.logger.With(zap.String("cycle", uuid.NewString()))

	results, err := o.run(logger, f)
	switch {
	case errors.Is(err, errdefs.ErrNoNewData):
		logger.Debug("batch skipped", zap.Error(err))
		o.metrics.ObserveCycle("skipped", time.Since(start))
	case err != nil:
		logger.Error("detection cycle failed", zap.Error(err))
		o.metrics.ObserveCycle("error", time.Since(start))
	default:
		o.metrics.ObserveCycle("ok", time.Since(start))
	}
	return results, err
}

func (o *Orchestrator) run(logger *zap.Logger, f *series.Frame) ([]series.Detection, error) {
	if f == nil || f.Empty() {
		return nil, errdefs.NoNewData("empty batch")
	}
	o.registry.Record(f.Columns...)

	if o.preprocessor != nil {
		var err error
		if f, err = o.preprocessor.Process(f); err != nil {
			return nil, err
		}
	}
	f, err := o.engine.FilterDisordered(f)
	if err != nil {
		return nil, err
	}

	results := make([]series.Detection, 0, len(o.pipelines))
	anomalies := 0
	for _, p := range o.pipelines {
		det, err := p.Run(f)
		if err != nil {
			return nil, err
		}
		anomalies += series.Count(det.Label)
		results = append(results, det)
	}

	o.engine.Update(o.maxWindow, f)

	if n, ok := cache.Maintain(o.store, o.registry, o.signal); ok {
		o.metrics.AddEvicted(n)
		logger.Info("cache maintenance", zap.Int("evicted", n))
	}

	logger.Debug("detection cycle finished",
		zap.Time("from", f.First()),
		zap.Time("until", f.Last()),
		zap.Int("columns", f.Width()),
		zap.Int("anomalies", anomalies),
	)
	return results, nil
}
