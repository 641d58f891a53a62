// Package pipeline runs coronal-hole detection for Carrington rotations:
// per-instrument compositing and thresholding, the cross-instrument
// candidate mask, morphological cleaning, magnetic validation and the
// blend-weighted output.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"coronalmap/internal/logger"
	"coronalmap/internal/models"
	"coronalmap/pkg/blend"
	"coronalmap/pkg/composite"
	"coronalmap/pkg/config"
	"coronalmap/pkg/mask"
	"coronalmap/pkg/remap"
	"coronalmap/pkg/retrieve"
	"coronalmap/pkg/threshold"
	"coronalmap/pkg/validate"
)

// Reasons an instrument is skipped for a rotation.
const (
	ReasonNoFrames      = "no-frames"
	ReasonNoValidFrames = "no-valid-frames"
	ReasonEmpty         = "empty-composite"
	ReasonNoThreshold   = "threshold-undetermined"
)

// InstrumentResult is the outcome of compositing and thresholding one
// instrument for one rotation.
type InstrumentResult struct {
	Instrument models.Instrument

	// Frames is the number of frames folded into the composite; Rejected
	// counts the frames dropped for zero exposure or unreadable files
	Frames   int
	Rejected int

	// Composite is the finalized minimum-intensity map, nil when no frame
	// was folded
	Composite *models.Map

	// Threshold is the estimate for the composite
	Threshold threshold.Result

	// Skipped instruments take no part in the candidate mask
	Skipped bool
	Reason  string
}

// Result holds every intermediate product of a detection.
type Result struct {
	Instruments []InstrumentResult
	Candidate   *models.Mask
	Cleaned     *models.Mask
	Final       *models.Mask
	Regions     []validate.Region

	// Blend is the merged normalized intensity map
	Blend *models.Map

	// Weighted is the final mask multiplied by the blend map
	Weighted *models.Map
}

// Skipped lists the names of the skipped instruments.
func (r *Result) Skipped() []string {
	var names []string
	for _, ir := range r.Instruments {
		if ir.Skipped {
			names = append(names, ir.Instrument.Name)
		}
	}
	return names
}

// Detector holds the configured stages of the pipeline. A Detector keeps no
// per-rotation state and may serve several rotations concurrently.
type Detector struct {
	cfg       *config.Config
	source    retrieve.Source
	remapper  *remap.Remapper
	estimator *threshold.Estimator
	validator *validate.Validator
	structure mask.Structure
	workers   int
	log       zerolog.Logger
}

// NewDetector builds the stages from the configuration.
func NewDetector(cfg *config.Config, source retrieve.Source, log zerolog.Logger) *Detector {
	structure := mask.Structure{Size: cfg.Morphology.StructureSize}

	tp := threshold.Params{
		TileLat:         cfg.Threshold.TileLat,
		TileLon:         cfg.Threshold.TileLon,
		Bins:            cfg.Threshold.Bins,
		SmoothingWindow: cfg.Threshold.SmoothingWindow,
		MinScale:        cfg.Threshold.MinScale,
		MaxScale:        cfg.Threshold.MaxScale,
		FallbackLow:     cfg.Threshold.FallbackLow,
		FallbackHigh:    cfg.Threshold.FallbackHigh,
	}
	vp := validate.Params{
		MinSamples:       cfg.Validation.MinSamples,
		MinSkewness:      cfg.Validation.MinSkewness,
		ExemptFirstLabel: cfg.Validation.ExemptFirstLabel,
		Structure:        structure,
	}

	return &Detector{
		cfg:       cfg,
		source:    source,
		remapper:  remap.NewRemapper(cfg.Grid),
		estimator: threshold.NewEstimator(tp, logger.Component(log, "threshold")),
		validator: validate.NewValidator(vp, logger.Component(log, "validate")),
		structure: structure,
		workers:   max(1, cfg.Processing.NumCores),
		log:       log,
	}
}

// SetWorkers sets how many frames are loaded and remapped concurrently.
func (d *Detector) SetWorkers(n int) {
	d.workers = max(1, n)
}

// remapped is a frame on the grid, or the reason it could not be.
type remapped struct {
	rec      retrieve.Record
	m        *models.Map
	exposure float64
	err      error
}

// BuildInstrument composites the instrument's frames in [start, end) and
// estimates its threshold. Missing or degenerate data marks the result
// skipped; only retrieval failures are returned as errors.
func (d *Detector) BuildInstrument(ctx context.Context, inst models.Instrument, start, end time.Time) (InstrumentResult, error) {
	res := InstrumentResult{Instrument: inst}
	log := d.log.With().Str("instrument", inst.Name).Logger()

	searchCtx, cancel := d.retrieval(ctx)
	records, err := d.source.Search(searchCtx, retrieve.Query{
		Instrument: inst,
		Start:      start,
		End:        end,
		Cadence:    d.cfg.Retrieval.Cadence,
	})
	cancel()
	if errors.Is(err, retrieve.ErrNoFrames) {
		return d.skip(log, res, ReasonNoFrames), nil
	}
	if err != nil {
		return res, fmt.Errorf("search %s: %w", inst.Name, err)
	}

	comp := composite.NewCompositor(d.cfg.Grid, d.remapper)

	// Load and remap in parallel; fold results as they arrive since the
	// minimum does not depend on order
	jobs := make(chan retrieve.Record)
	results := make(chan remapped)
	var wg sync.WaitGroup
	for w := 0; w < d.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range jobs {
				loadCtx, cancel := d.retrieval(ctx)
				f, err := d.source.Load(loadCtx, rec)
				cancel()
				if err != nil {
					results <- remapped{rec: rec, err: err}
					continue
				}
				m, err := d.remapper.Remap(f)
				results <- remapped{rec: rec, m: m, exposure: f.Exposure, err: err}
			}
		}()
	}
	go func() {
		defer close(jobs)
		for _, rec := range records {
			select {
			case jobs <- rec:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	for r := range results {
		switch {
		case r.err == nil:
			if err := comp.Fold(r.m, r.exposure); err != nil {
				res.Rejected++
				log.Warn().Err(err).Str("file", r.rec.Path).Msg("frame not folded")
			}
		case errors.Is(r.err, remap.ErrZeroExposure):
			res.Rejected++
			log.Debug().Str("file", r.rec.Path).Msg("zero exposure frame skipped")
		case ctx.Err() != nil:
			// reported once the results are drained
		default:
			res.Rejected++
			log.Warn().Err(r.err).Str("file", r.rec.Path).Msg("frame skipped")
		}
	}
	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("retrieve %s: %w", inst.Name, err)
	}

	res.Frames = comp.Frames()
	if res.Frames == 0 {
		return d.skip(log, res, ReasonNoValidFrames), nil
	}
	return d.threshold(log, res, comp.Finalize()), nil
}

// retrieval bounds a single call to the data source by the retrieval
// timeout. Remapping and compositing run under the caller's context only.
func (d *Detector) retrieval(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.cfg.Retrieval.Timeout > 0 {
		return context.WithTimeout(ctx, d.cfg.Retrieval.Timeout)
	}
	return context.WithCancel(ctx)
}

// FromComposite thresholds an already finalized composite.
func (d *Detector) FromComposite(inst models.Instrument, m *models.Map) InstrumentResult {
	res := InstrumentResult{Instrument: inst}
	log := d.log.With().Str("instrument", inst.Name).Logger()
	if m == nil {
		return d.skip(log, res, ReasonNoValidFrames)
	}
	return d.threshold(log, res, m)
}

func (d *Detector) threshold(log zerolog.Logger, res InstrumentResult, m *models.Map) InstrumentResult {
	res.Composite = m
	if m.Empty() {
		return d.skip(log, res, ReasonEmpty)
	}

	est, err := d.estimator.Estimate(m)
	res.Threshold = est
	if err != nil {
		return d.skip(log, res, ReasonNoThreshold)
	}

	valid := 0
	for _, t := range est.Tiles {
		if t.OK {
			valid++
		}
	}
	log.Info().
		Int("frames", res.Frames).
		Float64("median", est.Median).
		Float64("threshold", est.Threshold).
		Int("tiles", valid).
		Msg("instrument composited")
	return res
}

func (d *Detector) skip(log zerolog.Logger, res InstrumentResult, reason string) InstrumentResult {
	res.Skipped = true
	res.Reason = reason
	log.Warn().Str("reason", reason).Int("rejected", res.Rejected).Msg("instrument skipped")
	return res
}

// Combine merges the instrument results into the final mask and blend map,
// validating regions against the magnetic field.
func (d *Detector) Combine(instruments []InstrumentResult, field *models.Map) (*Result, error) {
	g := d.cfg.Grid
	if field.Grid != g {
		return nil, fmt.Errorf("magnetic map %dx%d does not match grid %dx%d", field.Rows, field.Cols, g.Rows, g.Cols)
	}
	res := &Result{Instruments: instruments}

	inputs := make([]mask.Input, 0, len(instruments))
	var composites []*models.Map
	for _, ir := range instruments {
		inputs = append(inputs, mask.Input{
			Composite: ir.Composite,
			Threshold: ir.Threshold.Threshold,
			Skipped:   ir.Skipped,
		})
		if ir.Composite != nil && !ir.Composite.Empty() {
			composites = append(composites, ir.Composite)
		}
	}

	res.Candidate = mask.Candidates(g, inputs)
	res.Cleaned = mask.Clean(res.Candidate, d.structure, d.cfg.Morphology.Iterations)

	final, regions, err := d.validator.Validate(res.Cleaned, field)
	if err != nil {
		return nil, err
	}
	res.Final, res.Regions = final, regions

	if len(composites) == 0 {
		res.Blend = models.NewMap(g)
	} else if res.Blend, err = blend.Blend(composites); err != nil {
		return nil, err
	}
	if res.Weighted, err = blend.Weight(res.Final, res.Blend); err != nil {
		return nil, err
	}

	d.log.Info().
		Int("candidates", res.Candidate.Count()).
		Int("cleaned", res.Cleaned.Count()).
		Int("regions", len(regions)).
		Int("kept", validate.Kept(regions)).
		Int("final", res.Final.Count()).
		Strs("skipped", res.Skipped()).
		Msg("detection combined")
	return res, nil
}
