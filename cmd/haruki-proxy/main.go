// Command haruki-proxy runs the regional game-client engine: one
// sekaiengine per configured server, the public HTTP surface in front of
// them, and the cron-driven master-data/app-hash sync loop.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/haruki-proxy/haruki-sekai-proxy/db/authdb"
	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/authstore"
	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/gitpush"
	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/harlog"
	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/sekaiapi"
	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/sekaiconfig"
	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/sekaiengine"
	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/sekairegion"
	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/sekaisync"
)

// version is set via -ldflags "-X main.version=..." at build time.
var version = "dev"

var opt struct {
	Help bool
}

func init() {
	pflag.BoolVarP(&opt.Help, "help", "h", false, "Show this help text")
}

func main() {
	pflag.Parse()
	if opt.Help {
		fmt.Printf("usage: %s [options]\n\noptions:\n%s\nnote: config is read from CONFIG_PATH (default haruki-sekai-configs.yaml)\n", os.Args[0], pflag.CommandLine.FlagUsages())
		os.Exit(2)
	}

	cfg, err := sekaiconfig.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: load config: %v\n", err)
		os.Exit(1)
	}

	log := configureLogging(cfg.Backend.LogLevel)

	authStore, err := buildAuthStore(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: configure auth store: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	recorder := harlog.New(cfg.Harlog, log)
	git := buildGitPush(cfg)
	scheduler := sekaisync.NewScheduler(log)

	engines := make(map[sekairegion.Region]*sekaiengine.Engine)
	for region, rc := range cfg.Servers {
		if !rc.Enabled {
			continue
		}
		rlog := log.With().Str("region", string(region)).Logger()

		engine, err := sekaiengine.New(region, rc, cfg.Proxy, cfg.JPSekaiCookieURL, rlog)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: initialize engine for %q: %v\n", region, err)
			os.Exit(1)
		}
		engine.WrapTransport(recorder.WrapTransport)

		if err := engine.Init(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "error: start engine for %q: %v\n", region, err)
			os.Exit(1)
		}
		engines[region] = engine

		scheduler.Bind(ctx, sekaisync.RegionJobs{
			Region:               region,
			RequireCookies:       rc.RequireCookies,
			Cookie:               engine.Cookie(),
			EnableMasterUpdater:  rc.EnableMasterUpdater,
			MasterUpdaterCron:    rc.MasterUpdaterCron,
			Master:               sekaisync.NewMasterSyncTask(region, engine, cfg.AssetUpdaters, git, rlog),
			EnableAppHashUpdater: rc.EnableAppHashUpdater,
			AppHashUpdaterCron:   rc.AppHashUpdaterCron,
			AppHash:              sekaisync.NewAppHashSyncTask(region, engine, cfg.AppHashSources, rlog),
		})

		log.Info().Str("region", string(region)).Int("accounts", engine.PoolSize()).Msg("engine ready")
	}

	scheduler.Start()
	defer scheduler.Stop()

	api := sekaiapi.New(engines, authStore, version, log)

	addr := cfg.Backend.Host + ":" + strconv.Itoa(int(cfg.Backend.Port))
	httpServer := &http.Server{
		Addr:    addr,
		Handler: api.Handler(),
	}

	errch := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Bool("ssl", cfg.Backend.SSL).Msg("starting server")
		if cfg.Backend.SSL {
			errch <- httpServer.ListenAndServeTLS(cfg.Backend.SSLCert, cfg.Backend.SSLKey)
		} else {
			errch <- httpServer.ListenAndServe()
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errch:
		if err != nil && err != http.ErrServerClosed {
			log.Err(err).Msg("server failed")
			os.Exit(1)
		}
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Err(err).Msg("graceful shutdown failed")
	}
}

func configureLogging(levelName string) zerolog.Logger {
	level, err := zerolog.ParseLevel(levelName)
	if err != nil {
		level = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
		Level(level).
		With().
		Timestamp().
		Logger()
}

func buildAuthStore(cfg *sekaiconfig.Config) (*authstore.Store, error) {
	if !cfg.Database.Enabled || cfg.Backend.SekaiUserJWTSigningKey == "" {
		return authstore.New("", nil, false), nil
	}
	db, err := authdb.Open(cfg.Database.Driver, cfg.Database.DSN, cfg.Database.MaxConnections)
	if err != nil {
		return nil, err
	}
	current, required, err := db.Version()
	if err != nil {
		return nil, err
	}
	if current != required {
		if err := db.MigrateUp(context.Background(), required); err != nil {
			return nil, err
		}
	}
	return authstore.New(cfg.Backend.SekaiUserJWTSigningKey, db, cfg.Redis.Enabled), nil
}

func buildGitPush(cfg *sekaiconfig.Config) *gitpush.Helper {
	if !cfg.Git.Enabled {
		return nil
	}
	return gitpush.New(cfg.Git.Username, cfg.Git.Email, cfg.Git.Password, cfg.Proxy)
}
