package sekaisync

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/sekaicookie"
	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/sekairegion"
)

const cookieRefreshCron = "0 0 */20 * * *"

// RegionJobs describes the jobs the scheduler should bind for one region.
type RegionJobs struct {
	Region sekairegion.Region

	RequireCookies bool
	Cookie         *sekaicookie.Helper

	EnableMasterUpdater bool
	MasterUpdaterCron   string
	Master              *MasterSyncTask

	EnableAppHashUpdater bool
	AppHashUpdaterCron   string
	AppHash              *AppHashSyncTask
}

// Scheduler binds cron jobs across every configured region. It runs
// independently of the HTTP surface — starting and stopping it has no
// effect on request handling.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger
}

// NewScheduler builds a scheduler using a 6-field (seconds-included) cron
// parser, since the fixed cookie-refresh expression carries a seconds
// field.
func NewScheduler(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithSeconds()),
		log:  log,
	}
}

// Bind registers every enabled job for one region. Cron parse errors are
// logged and that job is skipped; other jobs still get bound.
func (s *Scheduler) Bind(ctx context.Context, jobs RegionJobs) {
	if jobs.RequireCookies && jobs.Cookie != nil {
		s.addJob(jobs.Region, "cookie refresh", cookieRefreshCron, func() {
			if err := jobs.Cookie.Refresh(ctx); err != nil {
				s.log.Error().Err(err).Str("region", string(jobs.Region)).Msg("cookie refresh failed")
			}
		})
	}

	if jobs.EnableMasterUpdater && jobs.MasterUpdaterCron != "" && jobs.Master != nil {
		s.addJob(jobs.Region, "master sync", jobs.MasterUpdaterCron, func() {
			if err := jobs.Master.Run(ctx); err != nil {
				s.log.Error().Err(err).Str("region", string(jobs.Region)).Msg("master sync failed")
			}
		})
	}

	if jobs.EnableAppHashUpdater && jobs.AppHashUpdaterCron != "" && jobs.AppHash != nil && len(jobs.AppHash.sources) > 0 {
		s.addJob(jobs.Region, "app hash sync", jobs.AppHashUpdaterCron, func() {
			if err := jobs.AppHash.Run(ctx); err != nil {
				s.log.Error().Err(err).Str("region", string(jobs.Region)).Msg("app hash sync failed")
			}
		})
	}
}

func (s *Scheduler) addJob(region sekairegion.Region, name, expr string, fn func()) {
	if _, err := s.cron.AddFunc(expr, fn); err != nil {
		s.log.Error().Err(err).Str("region", string(region)).Str("job", name).Str("cron", expr).Msg("failed to parse cron expression, job not added")
		return
	}
	s.log.Info().Str("region", string(region)).Str("job", name).Str("cron", expr).Msg("scheduled job")
}

// Start begins running bound jobs on their own goroutine managed by the
// underlying cron scheduler.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts the scheduler and waits for any running job to finish.
func (s *Scheduler) Stop() { <-s.cron.Stop().Done() }
