package sekaiengine

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/sekaiaccount"
	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/sekaisession"
)

const (
	reloadDebounce = 2 * time.Second
	reloadDrain    = 3 * time.Second
)

// Init performs the first account-file load and login, then starts the
// hot-reload watcher in the background until ctx is done.
func (e *Engine) Init(ctx context.Context) error {
	if err := e.reloadAccounts(ctx); err != nil {
		return err
	}
	go e.watchAccountDir(ctx)
	return nil
}

// watchAccountDir triggers a reload after any create/modify/remove event in
// the account directory, debounced so a burst of events within 2s collapses
// into exactly one reload.
func (e *Engine) watchAccountDir(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		e.log.Error().Err(err).Msg("account directory watcher unavailable")
		return
	}
	defer watcher.Close()
	if err := watcher.Add(e.cfg.AccountDir); err != nil {
		e.log.Error().Err(err).Str("dir", e.cfg.AccountDir).Msg("watch account directory failed")
		return
	}

	var timer *time.Timer
	trigger := func() {
		if err := e.reload(ctx); err != nil {
			e.log.Error().Err(err).Msg("account pool reload failed")
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.AfterFunc(reloadDebounce, trigger)
			} else {
				timer.Reset(reloadDebounce)
			}
		case werr, ok := <-watcher.Errors:
			if !ok {
				return
			}
			e.log.Warn().Err(werr).Msg("account directory watcher error")
		}
	}
}

// reload sets the reload flag (spin-waited on by HighLevelGet), waits the
// soft 3s drain window, then rebuilds the pool from the account directory.
func (e *Engine) reload(ctx context.Context) error {
	e.reloading.Store(true)
	defer e.reloading.Store(false)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(reloadDrain):
	}
	return e.reloadAccounts(ctx)
}

func (e *Engine) reloadAccounts(ctx context.Context) error {
	accounts, err := sekaiaccount.LoadDir(e.cfg.AccountDir, e.region.Dialect(), e.log)
	if err != nil {
		return err
	}

	sessions := make([]*sekaisession.Session, 0, len(accounts))
	for _, account := range accounts {
		session := sekaisession.New(account)
		if _, err := e.Login(ctx, session); err != nil {
			e.log.Warn().Err(err).Str("device_id", account.DeviceID()).Msg("account login failed during reload")
			continue
		}
		sessions = append(sessions, session)
	}
	e.pool.swap(sessions)
	e.log.Info().Int("sessions", len(sessions)).Str("region", string(e.region)).Msg("account pool reloaded")
	return nil
}
