package scheduler

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/NordCoder/pingwatch/internal/domain/service"
	"github.com/NordCoder/pingwatch/internal/obs"
)

const defaultConcurrency = 8

type Prober interface {
	Probe(ctx context.Context, url string, timeout time.Duration) (service.ProbeResult, error)
}

type Options struct {
	Concurrency  int
	ProbeTimeout time.Duration
}

type Usecase struct {
	Repo   service.Repo
	Prober Prober
	Clock  service.Clock
	Log    *zap.Logger
	Opts   Options

	busy *inflight
}

func NewUC(repo service.Repo, prober Prober, clock service.Clock, log *zap.Logger, opts Options) *Usecase {
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if clock == nil {
		clock = service.SystemClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Usecase{Repo: repo, Prober: prober, Clock: clock, Log: log, Opts: opts, busy: newInflight()}
}

// RunCycle reads the due set, probes it with bounded parallelism and writes every result back.
// Failures are collected into the summary; one service never blocks the others.
func (u *Usecase) RunCycle(ctx context.Context) CycleSummary {
	started := u.Clock.Now()
	t0 := time.Now()
	sum := newTally(started)

	tr := otel.Tracer("scheduler.uc")
	ctx, span := tr.Start(ctx, "scheduler.cycle",
		trace.WithAttributes(attribute.Int("cycle.concurrency", u.Opts.Concurrency)),
	)
	defer span.End()
	log := obs.WithTrace(ctx, u.Log)

	list, err := u.Repo.ListServices(ctx, service.ListFilter{ActiveOnly: true, DueBefore: &started})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list services")
		log.Error("list services", zap.Error(err))
		sum.add(func(s *CycleSummary) {
			s.ReadFailed = true
			s.Errors = append(s.Errors, "list services: "+err.Error())
		})
		return sum.result(time.Since(t0))
	}

	due := SelectDue(list, started)
	sum.add(func(s *CycleSummary) { s.Due = len(due) })
	span.SetAttributes(attribute.Int("cycle.due", len(due)))

	var g errgroup.Group
	g.SetLimit(u.Opts.Concurrency)
	for _, svc := range due {
		if ctx.Err() != nil {
			break
		}
		switch u.busy.acquire(svc.ID, svc.TotalProbes) {
		case claimBusy:
			sum.add(func(s *CycleSummary) { s.Skipped++ })
			log.Debug("probe still in flight, skipping", zap.Stringer("service_id", svc.ID))
			continue
		case claimStale:
			sum.add(func(s *CycleSummary) { s.Skipped++ })
			log.Debug("probed by another cycle since listing, skipping", zap.Stringer("service_id", svc.ID))
			continue
		}
		g.Go(func() error {
			defer u.busy.release(svc.ID)
			u.probeOne(ctx, svc, sum)
			return nil
		})
	}
	_ = g.Wait()

	out := sum.result(time.Since(t0))
	span.SetAttributes(
		attribute.Int("cycle.probed", out.Probed),
		attribute.Int("cycle.succeeded", out.Succeeded),
		attribute.Int("cycle.failed", out.Failed),
		attribute.Int("cycle.skipped", out.Skipped),
	)
	if out.Failed > 0 {
		span.SetStatus(codes.Error, "partial failure")
	}
	return out
}

func (u *Usecase) probeOne(ctx context.Context, svc service.Service, sum *tally) {
	tr := otel.Tracer("scheduler.uc")
	ctx, sp := tr.Start(ctx, "scheduler.probe",
		trace.WithAttributes(
			attribute.String("service.id", svc.ID.String()),
			attribute.String("service.url", svc.URL),
		),
	)
	defer sp.End()
	log := obs.WithTrace(ctx, u.Log).With(
		zap.Stringer("service_id", svc.ID),
		zap.String("service_name", svc.Name),
		zap.String("url", svc.URL),
	)

	res, err := u.Prober.Probe(ctx, svc.URL, u.Opts.ProbeTimeout)
	if err != nil {
		sp.RecordError(err)
		if errors.Is(err, service.ErrInvalidURL) {
			log.Warn("skipping service with malformed url", zap.Error(err))
		} else {
			log.Error("probe", zap.Error(err))
		}
		sum.fail("service %s: %v", svc.ID, err)
		return
	}
	if ctx.Err() != nil {
		sum.add(func(s *CycleSummary) { s.Canceled++ })
		log.Debug("probe discarded on shutdown")
		return
	}

	sp.SetAttributes(attribute.Bool("probe.success", res.Success))
	sum.add(func(s *CycleSummary) {
		s.Probed++
		if res.Success {
			s.Online++
		} else {
			s.Offline++
		}
	})

	updated := service.ApplyResult(svc, res)
	if err := u.Repo.Save(ctx, &updated); err != nil {
		sp.RecordError(err)
		sp.SetStatus(codes.Error, "save")
		if errors.Is(err, service.ErrStale) {
			log.Warn("probe result superseded by a concurrent write", zap.Error(err))
		} else {
			log.Error("save probe result", zap.Error(err))
		}
		sum.fail("service %s: save: %v", svc.ID, err)
		return
	}
	u.busy.markApplied(svc.ID, updated.TotalProbes)
	sum.add(func(s *CycleSummary) { s.Succeeded++ })

	if updated.Status != svc.Status {
		log.Info("service status changed",
			zap.String("old", string(svc.Status)),
			zap.String("new", string(updated.Status)),
			zap.Int64("latency_ms", res.LatencyMs),
			zap.String("error", res.ErrorMessage),
		)
	}
}

// InFlight reports how many probes are currently running.
func (u *Usecase) InFlight() int { return u.busy.len() }
