// Package pipeline runs configured detection algorithms over streaming batches.
package pipeline

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/hed1ad/streamguard/pkg/cache"
	"github.com/hed1ad/streamguard/pkg/detectors"
	"github.com/hed1ad/streamguard/pkg/errdefs"
	"github.com/hed1ad/streamguard/pkg/metrics"
	"github.com/hed1ad/streamguard/pkg/series"
	"github.com/hed1ad/streamguard/pkg/severity"
	"github.com/hed1ad/streamguard/pkg/suppress"
)

// Pipeline chains a detector, its suppressors and the severity combiner
// under one instance name.
type Pipeline struct {
	detector detectors.Detector
	chain    *suppress.Chain
	combiner *severity.Combiner
	store    *cache.Store
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// Name returns the instance name scoping the pipeline state.
func (p *Pipeline) Name() string {
	return p.detector.Name()
}

// Kind returns the detection rule of the pipeline.
func (p *Pipeline) Kind() detectors.Kind {
	return p.detector.Kind()
}

// Window returns the detector window.
func (p *Pipeline) Window() int {
	return p.detector.Window()
}

// Run detects, suppresses and scores anomalies of origin.
//
// Insufficient context is not an error: it is logged, recorded under the
// instance name and the returned detection carries only its origin.
func (p *Pipeline) Run(origin *series.Frame) (series.Detection, error) {
	det, err := p.detector.Detect(series.Detection{Origin: origin})
	if errors.Is(err, errdefs.ErrInsufficientData) {
		p.logger.Warn("insufficient data for detection",
			zap.Stringer("algorithm", p.Kind()),
			zap.Error(err),
		)
		p.store.Set(cache.ErrorInfo, p.Name(), err.Error())
		p.metrics.IncInsufficientData(p.Name())
		return series.Detection{Origin: origin}, nil
	}
	if err != nil {
		return series.Detection{Origin: origin}, err
	}

	det.Label = p.chain.Suppress(det.Label, origin)
	p.dropCommitted(det.Label)
	p.metrics.AddAnomalies(p.Name(), series.Count(det.Label))
	return p.combiner.Run(det), nil
}

// dropCommitted clears the labels of rows a previous batch already committed
// for their column, so overlapping batches report each anomaly once.
func (p *Pipeline) dropCommitted(labels *series.Labels) {
	if labels == nil {
		return
	}
	for c, col := range labels.Columns {
		committed, ok := cache.Lookup[time.Time](p.store, cache.StreamFilter, col)
		if !ok {
			continue
		}
		end := labels.SearchAfter(committed)
		for i := 0; i < end; i++ {
			labels.Values[c][i] = false
		}
	}
}

// LastError returns the last insufficient-data cause recorded for the instance.
func (p *Pipeline) LastError() (string, bool) {
	return cache.Lookup[string](p.store, cache.ErrorInfo, p.Name())
}
