package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	config "github.com/NordCoder/pingwatch/internal/config/scheduler"
)

type Runner struct {
	Log *zap.Logger
	UC  *Usecase
	Cfg *config.SchedCfg

	// OnCycle, when set, is called after every cycle.
	OnCycle func(CycleSummary)

	mu   sync.RWMutex
	last *CycleSummary

	mCycles    prometheus.Counter
	mDue       prometheus.Counter
	mProbes    *prometheus.CounterVec
	mErr       prometheus.Counter
	mReadErr   prometheus.Counter
	mSkipped   prometheus.Counter
	mLoopDur   prometheus.Histogram
	mLastCycle prometheus.Gauge
}

func New(log *zap.Logger, uc *Usecase, cfg *config.SchedCfg, reg prometheus.Registerer) *Runner {
	f := promauto.With(reg)
	return &Runner{
		Log: log,
		UC:  uc,
		Cfg: cfg,
		mCycles: f.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_cycles_total", Help: "Scheduling cycles run",
		}),
		mDue: f.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_services_due_total", Help: "Services found due",
		}),
		mProbes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scheduler_probes_total", Help: "Probes applied by outcome",
		}, []string{"status"}),
		mErr: f.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_errors_total", Help: "Per-service failures in scheduler cycles",
		}),
		mReadErr: f.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_read_errors_total", Help: "Cycles aborted because the due set could not be read",
		}),
		mSkipped: f.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_skipped_total", Help: "Due services skipped because a probe was already in flight",
		}),
		mLoopDur: f.NewHistogram(prometheus.HistogramOpts{
			Name: "scheduler_cycle_duration_seconds", Help: "Scheduler cycle duration",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		mLastCycle: f.NewGauge(prometheus.GaugeOpts{
			Name: "scheduler_last_cycle_timestamp_seconds", Help: "Unix time of the last finished cycle",
		}),
	}
}

func (r *Runner) tick(ctx context.Context) CycleSummary {
	start := time.Now()
	sum := r.UC.RunCycle(ctx)

	r.mCycles.Inc()
	r.mDue.Add(float64(sum.Due))
	r.mProbes.WithLabelValues("online").Add(float64(sum.Online))
	r.mProbes.WithLabelValues("offline").Add(float64(sum.Offline))
	r.mErr.Add(float64(sum.Failed))
	r.mSkipped.Add(float64(sum.Skipped))
	if sum.ReadFailed {
		r.mReadErr.Inc()
	}
	r.mLoopDur.Observe(time.Since(start).Seconds())
	r.mLastCycle.SetToCurrentTime()

	fields := []zap.Field{
		zap.String("cycle_id", sum.ID),
		zap.Int("due", sum.Due),
		zap.Int("probed", sum.Probed),
		zap.Int("succeeded", sum.Succeeded),
		zap.Int("failed", sum.Failed),
		zap.Int("skipped", sum.Skipped),
		zap.Duration("took", sum.Duration),
	}
	switch {
	case sum.HasErrors():
		r.Log.Warn("cycle finished with errors", append(fields, zap.Strings("errors", sum.Errors))...)
	case sum.Due > 0:
		r.Log.Info("cycle finished", fields...)
	default:
		r.Log.Debug("cycle finished", fields...)
	}

	r.mu.Lock()
	r.last = &sum
	r.mu.Unlock()
	if r.OnCycle != nil {
		r.OnCycle(sum)
	}
	return sum
}

// Run waits InitialDelay, runs a cycle and then one per Tick until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	if r.Cfg.InitialDelay > 0 {
		t := time.NewTimer(r.Cfg.InitialDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}

	ticker := time.NewTicker(r.Cfg.Tick)
	defer ticker.Stop()

	r.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

// Trigger runs one cycle out of band. Services already being probed are skipped.
func (r *Runner) Trigger(ctx context.Context) CycleSummary {
	return r.tick(ctx)
}

// Last returns the most recent summary, false before the first cycle.
func (r *Runner) Last() (CycleSummary, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.last == nil {
		return CycleSummary{}, false
	}
	return *r.last, true
}
