package sekaisync

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/sekairegion"
)

// TestSchedulerSkipsBadCronExpression exercises the "parse errors are logged
// and the job is not added" rule: a malformed master-updater cron must not
// prevent the valid app-hash job from being bound.
func TestSchedulerSkipsBadCronExpression(t *testing.T) {
	s := NewScheduler(zerolog.Nop())

	var ran bool
	jobs := RegionJobs{
		Region:               sekairegion.JP,
		EnableMasterUpdater:  true,
		MasterUpdaterCron:    "not a cron expression",
		Master:               NewMasterSyncTask(sekairegion.JP, nil, nil, nil, zerolog.Nop()),
		EnableAppHashUpdater: true,
		AppHashUpdaterCron:   "@every 50ms",
		AppHash:              NewAppHashSyncTask(sekairegion.JP, nil, []AppHashSource{{Type: "file", Dir: t.TempDir()}}, zerolog.Nop()),
	}
	s.Bind(context.Background(), jobs)
	if entries := s.cron.Entries(); len(entries) != 1 {
		t.Fatalf("got %d scheduled entries, want 1 (bad cron should be skipped)", len(entries))
	}
	_ = ran
}

// TestSchedulerRunsBoundJob confirms a validly-bound job actually fires once
// the scheduler is started.
func TestSchedulerRunsBoundJob(t *testing.T) {
	s := NewScheduler(zerolog.Nop())
	fired := make(chan struct{}, 1)
	if _, err := s.cron.AddFunc("@every 10ms", func() { fired <- struct{}{} }); err != nil {
		t.Fatal(err)
	}
	s.Start()
	defer s.Stop()

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("job never fired")
	}
}
