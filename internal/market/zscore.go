package market

import (
	"context"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Defaults for the warmup gate and the degenerate-series floor.
const (
	DefaultMinSamples = 30
	DefaultMinStd     = 1e-4
	DefaultWindowSize = 30
)

// SampleSource reads the current rolling sample window for one
// (exchange, instrument, metric) key. Windows are appended by the
// upstream pipeline; this subsystem only reads them. The returned slice
// is in insertion order, oldest first.
type SampleSource interface {
	GetSampleWindow(ctx context.Context, exchange, instrument, metric string) ([]float64, error)
}

// ZScoreEstimator computes warmup-gated z-scores over rolling sample
// windows read from an injected sample source.
type ZScoreEstimator struct {
	samples    SampleSource
	minSamples int
	minStd     float64
}

// NewZScoreEstimator builds an estimator. Non-positive minSamples and
// minStd fall back to the defaults.
func NewZScoreEstimator(samples SampleSource, minSamples int, minStd float64) *ZScoreEstimator {
	if minSamples <= 0 {
		minSamples = DefaultMinSamples
	}
	if minStd <= 0 {
		minStd = DefaultMinStd
	}
	return &ZScoreEstimator{samples: samples, minSamples: minSamples, minStd: minStd}
}

// Status reads the current window and reports warmup state and, when
// the gate passes, the z-score of the latest sample. The z-score stays
// absent while warming up, when the window has fewer than two samples,
// or when the sample standard deviation is at or below the floor.
func (e *ZScoreEstimator) Status(ctx context.Context, exchange, instrument, metric string) (WarmupStatus, error) {
	window, err := e.samples.GetSampleWindow(ctx, exchange, instrument, metric)
	if err != nil {
		return WarmupStatus{MinSamples: e.minSamples}, fmt.Errorf("read sample window %s/%s/%s: %w", exchange, instrument, metric, err)
	}

	status := WarmupStatus{
		SampleCount: len(window),
		MinSamples:  e.minSamples,
	}
	if status.SampleCount < e.minSamples {
		return status, nil
	}
	status.IsWarmedUp = true

	// Bessel-corrected stdev needs n >= 2 regardless of how low the
	// warmup gate is configured.
	if len(window) < 2 {
		return status, nil
	}

	mean, stdev := meanStdev(window)
	if stdev <= e.minStd {
		return status, nil
	}

	latest := window[len(window)-1]
	z := decimal.NewFromFloat((latest - mean) / stdev).Round(2).String()
	status.ZScore = &z
	return status, nil
}

// meanStdev returns the mean and sample standard deviation (n−1
// denominator) of window. Caller guarantees len(window) >= 2.
func meanStdev(window []float64) (float64, float64) {
	var sum float64
	for _, v := range window {
		sum += v
	}
	mean := sum / float64(len(window))

	var sq float64
	for _, v := range window {
		d := v - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(window)-1))
}
