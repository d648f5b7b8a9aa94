package pipeline

import (
	"fmt"

	"github.com/hed1ad/streamguard/pkg/cache"
	"github.com/hed1ad/streamguard/pkg/config"
	"github.com/hed1ad/streamguard/pkg/detectors"
	"github.com/hed1ad/streamguard/pkg/detectors/bound"
	"github.com/hed1ad/streamguard/pkg/detectors/differentiate"
	"github.com/hed1ad/streamguard/pkg/detectors/incremental"
	"github.com/hed1ad/streamguard/pkg/detectors/unchanged"
	"github.com/hed1ad/streamguard/pkg/errdefs"
	"github.com/hed1ad/streamguard/pkg/severity"
	"github.com/hed1ad/streamguard/pkg/stream"
	"github.com/hed1ad/streamguard/pkg/suppress"
)

func newDetector(name string, a config.Algorithm, engine *stream.Engine, store *cache.Store) (detectors.Detector, error) {
	if a.Kind == nil {
		return nil, errdefs.MissingParameter("%s: algorithm kind", name)
	}

	switch kind := *a.Kind; kind {
	case detectors.KindThreshold:
		return bound.New(name, engine, bound.Config{
			Window: a.Window,
			Upper:  a.UpperBound,
			Lower:  a.LowerBound,
		}), nil
	case detectors.KindIncremental:
		return incremental.New(name, engine, incremental.Config{
			WindowSize:   a.WindowSize,
			WindowNumber: a.WindowNumber,
			Upper:        a.UpperBound,
			Lower:        a.LowerBound,
		})
	case detectors.KindValueChange:
		return unchanged.New(name, engine, a.Window), nil
	case detectors.KindDifferentiate, detectors.KindBatchDifferentiate:
		return differentiate.New(name, kind, engine, store, differentiate.Config{
			Window:    a.Window,
			Threshold: a.Threshold.Params(),
		})
	default:
		return nil, fmt.Errorf("%s: unsupported algorithm %s", name, kind)
	}
}

func newSuppressors(instance string, chain []config.Suppressor, store *cache.Store) ([]suppress.Suppressor, error) {
	out := make([]suppress.Suppressor, 0, len(chain))
	for i, s := range chain {
		if s.Kind == nil {
			return nil, errdefs.MissingParameter("%s: suppressor %d kind", instance, i)
		}

		switch *s.Kind {
		case suppress.KindContinuous:
			out = append(out, suppress.NewContinuous(store, instance, s.Gap.Std()))
		case suppress.KindTransient:
			out = append(out, suppress.NewTransient(store, instance, s.Window, s.Anomalies))
		case suppress.KindVariationRatio:
			out = append(out, suppress.NewVariationRatio(s.HistoryLength, s.Threshold))
		case suppress.KindBound:
			out = append(out, suppress.NewBound(s.UpperBound, s.LowerBound))
		default:
			return nil, fmt.Errorf("%s: unsupported suppressor %s", instance, *s.Kind)
		}
	}
	return out, nil
}

func newMethods(instance string, cfg config.Severity, store *cache.Store) []severity.Method {
	var methods []severity.Method
	if cfg.Algorithm != nil {
		methods = append(methods, severity.NewByAlgorithm(cfg.Algorithm))
	}
	if cfg.History != nil {
		methods = append(methods, severity.NewByHistory(store, instance, cfg.History.Gap.Std()))
	}
	return methods
}
