package sekaisync

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/apperror"
	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/sekaiengine"
	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/sekairegion"
)

const appHashFetchTimeout = 10 * time.Second

type appInfo struct {
	AppVersion string `json:"appVersion"`
	AppHash    string `json:"appHash"`
}

// AppHashSyncTask pulls a fresh {appVersion, appHash} pair from the first
// configured source that yields one, and merges it into the region's version
// manifest.
type AppHashSyncTask struct {
	region  sekairegion.Region
	engine  *sekaiengine.Engine
	sources []AppHashSource
	log     zerolog.Logger
}

// NewAppHashSyncTask builds an App-Hash Sync Task for one region.
func NewAppHashSyncTask(region sekairegion.Region, engine *sekaiengine.Engine, sources []AppHashSource, log zerolog.Logger) *AppHashSyncTask {
	return &AppHashSyncTask{region: region, engine: engine, sources: sources, log: log}
}

// Run checks each configured source in order, stopping at the first one
// that yields a value, and rewrites the manifest's appVersion/appHash fields
// if they differ.
func (t *AppHashSyncTask) Run(ctx context.Context) error {
	t.log.Info().Str("region", string(t.region)).Msg("checking for app hash updates")

	current := t.engine.VersionStore().Get()
	for _, source := range t.sources {
		info, err := t.fetchFromSource(ctx, source)
		if err != nil {
			t.log.Warn().Err(err).Str("region", string(t.region)).Str("type", source.Type).Msg("app hash source failed")
			continue
		}
		if info == nil {
			continue
		}
		if info.AppVersion != current.AppVersion || info.AppHash != current.AppHash {
			t.log.Info().Str("region", string(t.region)).Str("app_version", info.AppVersion).Msg("found new app version")
			updated := current
			updated.AppVersion = info.AppVersion
			updated.AppHash = info.AppHash
			if err := t.engine.VersionStore().SaveAs(updated, ""); err != nil {
				return err
			}
		}
		break
	}

	t.log.Info().Str("region", string(t.region)).Msg("app hash check complete")
	return nil
}

func (t *AppHashSyncTask) fetchFromSource(ctx context.Context, source AppHashSource) (*appInfo, error) {
	switch source.Type {
	case "file":
		return t.fetchFromFile(source)
	case "url":
		return t.fetchFromURL(ctx, source)
	default:
		return nil, nil
	}
}

func (t *AppHashSyncTask) fetchFromFile(source AppHashSource) (*appInfo, error) {
	path := filepath.Join(source.Dir, string(t.region)+".json")
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperror.New(apperror.KindIoError, "read app hash file: %v", err)
	}
	var info appInfo
	if err := json.Unmarshal(b, &info); err != nil {
		return nil, apperror.New(apperror.KindParseError, "parse app hash file: %v", err)
	}
	return &info, nil
}

func (t *AppHashSyncTask) fetchFromURL(ctx context.Context, source AppHashSource) (*appInfo, error) {
	url := strings.ReplaceAll(source.URL, "{region}", string(t.region))
	b, err := t.engine.FetchRawURL(ctx, url, appHashFetchTimeout)
	if err != nil {
		t.log.Warn().Err(err).Str("url", url).Msg("app hash url fetch failed")
		return nil, nil
	}
	var info appInfo
	if err := json.Unmarshal(b, &info); err != nil {
		return nil, apperror.New(apperror.KindParseError, "parse app hash response: %v", err)
	}
	return &info, nil
}
