package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultCronSchedule runs the daily CRON command shortly after 4 AM,
// before the earliest sunrise in the supported latitudes.
const DefaultCronSchedule = "15 4 * * *"

// CronRunner issues the CRON command on a schedule so sunrise and sunset
// alarms are queued every day without an external crontab.
type CronRunner struct {
	cron    *cron.Cron
	gateway *Gateway
	logger  Logger
}

// NewCronRunner creates a runner for the given standard five-field
// schedule, evaluated in loc.
func NewCronRunner(g *Gateway, schedule string, loc *time.Location) (*CronRunner, error) {
	if loc == nil {
		loc = time.Local
	}
	r := &CronRunner{
		cron:    cron.New(cron.WithLocation(loc)),
		gateway: g,
		logger:  g.logger,
	}
	if _, err := r.cron.AddFunc(schedule, r.runDaily); err != nil {
		return nil, fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
	}
	return r, nil
}

// Start runs the daily job once immediately and then on schedule until ctx
// is cancelled.
func (r *CronRunner) Start(ctx context.Context) {
	r.runDaily()
	r.cron.Start()
	r.logger.Info("cron scheduler started", "entries", len(r.cron.Entries()))

	go func() {
		<-ctx.Done()
		r.Stop()
	}()
}

// Stop halts the scheduler and waits for a running job to finish.
func (r *CronRunner) Stop() {
	<-r.cron.Stop().Done()
}

// Next returns the next scheduled run.
func (r *CronRunner) Next() time.Time {
	entries := r.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (r *CronRunner) runDaily() {
	resp := r.gateway.Dispatch(context.Background(), "CRON", nil)
	if resp.Failed() {
		r.logger.Warn("daily cron run reported errors", "error", resp.Error.Main, "detail", resp.Error.Message)
		return
	}
	r.logger.Info("daily cron run complete", "result", resp.Text)
}
