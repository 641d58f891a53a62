package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"coronalmap/internal/models"
	"coronalmap/pkg/carrington"
	"coronalmap/pkg/config"
	"coronalmap/pkg/resample"
	"coronalmap/pkg/store"
	"coronalmap/pkg/validate"
)

// RotationReport summarizes the processing of one rotation. A failed
// rotation carries its error; it never stops the other rotations.
type RotationReport struct {
	Rotation   int
	Start, End time.Time

	// Skipped lists the instruments that took no part in the mask
	Skipped []string

	// Regions is the number of regions that survived validation and Cells
	// the number of final mask cells
	Regions int
	Cells   int

	// Existing is set when the artifacts were already present and the
	// rotation was not recomputed
	Existing bool

	Duration time.Duration
	Err      error
}

// Runner processes rotations end to end and persists their artifacts.
type Runner struct {
	cfg      *config.Config
	detector *Detector
	store    *store.Store
	log      zerolog.Logger

	// Force recomputes rotations whose artifacts already exist
	Force bool
}

// NewRunner returns a runner writing to st.
func NewRunner(cfg *config.Config, detector *Detector, st *store.Store, log zerolog.Logger) *Runner {
	return &Runner{cfg: cfg, detector: detector, store: st, log: log}
}

// ProcessRotation detects the coronal holes of rotation cr and writes the
// blend map and the weighted final mask.
func (r *Runner) ProcessRotation(ctx context.Context, cr int) RotationReport {
	began := time.Now()
	report := RotationReport{Rotation: cr}
	report.Start, report.End = carrington.Interval(cr, r.cfg.Retrieval.RoundToDay)
	log := r.log.With().Int("rotation", cr).Logger()

	fail := func(err error) RotationReport {
		report.Err = err
		report.Duration = time.Since(began)
		log.Error().Err(err).Msg("rotation failed")
		return report
	}

	if !r.Force {
		exists, err := r.store.Exists(cr, store.KindFinalMask)
		if err != nil {
			return fail(err)
		}
		if exists {
			report.Existing = true
			log.Info().Msg("artifacts exist, skipping")
			return report
		}
	}

	log.Info().Time("start", report.Start).Time("end", report.End).Msg("Step 1: compositing instruments")
	instruments := make([]InstrumentResult, 0, len(r.cfg.Instruments))
	for _, inst := range r.cfg.Instruments {
		ir, err := r.detector.BuildInstrument(ctx, inst, report.Start, report.End)
		if err != nil {
			return fail(err)
		}
		instruments = append(instruments, ir)
	}

	log.Info().Msg("Step 2: loading magnetogram")
	field, err := resample.Load(r.cfg.Paths.MagDir, cr, r.cfg.Grid)
	if err != nil {
		return fail(err)
	}

	log.Info().Msg("Step 3: building and validating the mask")
	res, err := r.detector.Combine(instruments, field)
	if err != nil {
		return fail(err)
	}
	report.Skipped = res.Skipped()
	report.Regions = validate.Kept(res.Regions)
	report.Cells = res.Final.Count()

	log.Info().Msg("Step 4: saving artifacts")
	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	header := models.NewHeader(r.cfg.Grid)
	header.Rotation = cr
	header.Start, header.End = report.Start, report.End
	header.Skipped = report.Skipped
	header.Regions = report.Regions

	// the final mask goes last: its presence marks a complete rotation
	if err := r.store.Write(cr, store.KindBlend, res.Blend, header); err != nil {
		return fail(err)
	}
	if err := r.store.Write(cr, store.KindFinalMask, res.Weighted, header); err != nil {
		return fail(err)
	}

	report.Duration = time.Since(began)
	log.Info().
		Int("regions", report.Regions).
		Int("cells", report.Cells).
		Dur("took", report.Duration).
		Msg("rotation done")
	return report
}

// Run processes the rotations cr0..cr1 inclusive, at most NumCores at a
// time. Reports are returned in rotation order.
func (r *Runner) Run(ctx context.Context, cr0, cr1 int) ([]RotationReport, error) {
	if cr1 < cr0 {
		return nil, fmt.Errorf("invalid rotation range %d..%d", cr0, cr1)
	}
	reports := make([]RotationReport, cr1-cr0+1)

	var g errgroup.Group
	g.SetLimit(max(1, r.cfg.Processing.NumCores))
	for i := range reports {
		i := i // per-iteration copy (go 1.21 loop-variable semantics)
		cr := cr0 + i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				reports[i] = RotationReport{Rotation: cr, Err: err}
				return nil
			}
			reports[i] = r.ProcessRotation(ctx, cr)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return reports, err
	}

	failed := 0
	for _, rep := range reports {
		if rep.Err != nil {
			failed++
		}
	}
	r.log.Info().
		Int("rotations", len(reports)).
		Int("failed", failed).
		Msg("batch done")
	return reports, nil
}
