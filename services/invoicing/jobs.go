package invoicing

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/R3E-Network/billing_layer/internal/logging"
	"github.com/R3E-Network/billing_layer/internal/metrics"
)

const (
	JobMarkOverdue  = "mark_overdue"
	JobEvictDrafts  = "evict_drafts"
	jobRunTimeout   = 2 * time.Minute
	defaultDraftTTL = 2 * time.Hour
)

// JobsConfig schedules the background maintenance jobs. Empty specs disable
// a job.
type JobsConfig struct {
	Service      *Service
	Sessions     *Sessions
	OverdueSpec  string
	EvictionSpec string
	DraftTTL     time.Duration
	Logger       *logging.Logger
}

// Jobs runs the overdue sweep and draft eviction on cron schedules.
type Jobs struct {
	cron     *cron.Cron
	service  *Service
	sessions *Sessions
	draftTTL time.Duration
	logger   *logging.Logger
}

// cronLogger adapts logrus to cron.Logger.
type cronLogger struct {
	entry *logrus.Entry
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(kv(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(kv(keysAndValues)).WithError(err).Error(msg)
}

func kv(keysAndValues []interface{}) logrus.Fields {
	f := logrus.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		f[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return f
}

// NewJobs registers the configured jobs. Nothing runs until Start.
func NewJobs(cfg JobsConfig) (*Jobs, error) {
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	if cfg.DraftTTL <= 0 {
		cfg.DraftTTL = defaultDraftTTL
	}
	clog := cronLogger{entry: cfg.Logger.WithFields(map[string]interface{}{"component": "jobs"})}
	j := &Jobs{
		cron: cron.New(
			cron.WithLogger(clog),
			cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
		),
		service:  cfg.Service,
		sessions: cfg.Sessions,
		draftTTL: cfg.DraftTTL,
		logger:   cfg.Logger,
	}

	if cfg.OverdueSpec != "" && cfg.Service != nil {
		if _, err := j.cron.AddFunc(cfg.OverdueSpec, func() { j.run(JobMarkOverdue, j.MarkOverdue) }); err != nil {
			return nil, fmt.Errorf("schedule %s %q: %w", JobMarkOverdue, cfg.OverdueSpec, err)
		}
	}
	if cfg.EvictionSpec != "" && cfg.Sessions != nil {
		if _, err := j.cron.AddFunc(cfg.EvictionSpec, func() { j.run(JobEvictDrafts, j.EvictDrafts) }); err != nil {
			return nil, fmt.Errorf("schedule %s %q: %w", JobEvictDrafts, cfg.EvictionSpec, err)
		}
	}
	return j, nil
}

func (j *Jobs) run(name string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), jobRunTimeout)
	defer cancel()
	ctx = logging.WithTraceID(ctx, logging.NewTraceID())

	err := fn(ctx)
	metrics.RecordJobRun(name, err == nil)
	if err != nil {
		j.logger.WithContext(ctx).WithError(err).WithField("job", name).Warn("job failed")
	}
}

// MarkOverdue runs the overdue sweep once.
func (j *Jobs) MarkOverdue(ctx context.Context) error {
	n, err := j.service.MarkOverdue(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		j.logger.WithContext(ctx).WithField("count", n).Info("invoices marked overdue")
	}
	return nil
}

// EvictDrafts closes idle draft sessions once.
func (j *Jobs) EvictDrafts(ctx context.Context) error {
	if n := j.sessions.Evict(j.draftTTL); n > 0 {
		j.logger.WithContext(ctx).WithField("count", n).Info("idle drafts evicted")
	}
	return nil
}

// Len returns the number of scheduled jobs.
func (j *Jobs) Len() int {
	return len(j.cron.Entries())
}

// Run starts the scheduler and blocks until ctx is done, then waits for
// running jobs to finish.
func (j *Jobs) Run(ctx context.Context) {
	j.cron.Start()
	<-ctx.Done()
	<-j.cron.Stop().Done()
}
