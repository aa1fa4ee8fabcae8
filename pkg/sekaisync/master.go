package sekaisync

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/OneOfOne/xxhash"
	"github.com/rs/zerolog"

	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/apperror"
	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/gitpush"
	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/nuverse"
	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/sekaicrypto"
	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/sekaiengine"
	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/sekairegion"
	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/sekaisession"
	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/sekaiversion"
)

const masterDownloadConcurrency = 3

// assetUpdaterRetryDelay is a var (not const) so tests can shrink it.
var assetUpdaterRetryDelay = 60 * time.Second

// MasterSyncTask checks one region's upstream for a newer master-data or
// asset version, fans that change out to configured asset-updater services,
// downloads and writes any new master tables, and persists the bumped
// version manifest.
type MasterSyncTask struct {
	region  sekairegion.Region
	engine  *sekaiengine.Engine
	updaters []AssetUpdaterServer
	git     *gitpush.Helper
	log     zerolog.Logger

	hashMu sync.Mutex
	hashes map[string]uint64
}

// NewMasterSyncTask builds a Master Sync Task for one region. git may be nil
// if git push is disabled for this deployment.
func NewMasterSyncTask(region sekairegion.Region, engine *sekaiengine.Engine, updaters []AssetUpdaterServer, git *gitpush.Helper, log zerolog.Logger) *MasterSyncTask {
	return &MasterSyncTask{
		region:   region,
		engine:   engine,
		updaters: updaters,
		git:      git,
		log:      log,
		hashes:   make(map[string]uint64),
	}
}

// Run executes one sync pass: login probe, version comparison, asset-updater
// fan-out, master download, and manifest persistence.
func (t *MasterSyncTask) Run(ctx context.Context) error {
	t.log.Info().Str("region", string(t.region)).Msg("checking for master data updates")

	current := t.engine.VersionStore().Get()
	session, err := t.engine.PickAnySession()
	if err != nil {
		return err
	}
	login, err := t.engine.Login(ctx, session)
	if err != nil {
		return apperror.New(apperror.KindNetworkError, "master sync login probe: %v", err)
	}

	var needMaster, needAsset bool
	if t.region.Dialect() == sekairegion.DialectNuverse {
		needMaster = sekaiversion.CompareVersion(login.CdnVersion, current.CdnVersion)
		needAsset = needMaster
	} else {
		needMaster = sekaiversion.CompareVersion(login.DataVersion, current.DataVersion)
		needAsset = sekaiversion.CompareVersion(login.AssetVersion, current.AssetVersion)
	}

	if needAsset {
		t.notifyAssetUpdaters(ctx, login)
	}

	if !needMaster && !needAsset {
		t.log.Info().Str("region", string(t.region)).Msg("master data check complete, no changes")
		return nil
	}

	if needMaster {
		written, failed, err := t.downloadMaster(ctx, session, login)
		if err != nil {
			return err
		}
		if written == 0 && failed > 0 {
			return apperror.New(apperror.KindParseError, "all %d master fragment writes failed", failed)
		}
		t.log.Info().Str("region", string(t.region)).Int("written", written).Int("unchanged_or_failed", failed).Msg("master data updated")
	}

	newManifest := sekaiversion.Manifest{
		AppVersion:   current.AppVersion,
		AppHash:      current.AppHash,
		DataVersion:  login.DataVersion,
		AssetVersion: login.AssetVersion,
		AssetHash:    login.AssetHash,
		CdnVersion:   login.CdnVersion,
	}
	cfg := t.engine.Config()
	snapshotPath := filepath.Join(filepath.Dir(cfg.VersionPath), newManifest.DataVersion+".json")
	if err := t.engine.VersionStore().SaveAs(newManifest, snapshotPath); err != nil {
		return err
	}

	if t.git != nil {
		pushed, err := t.git.PushChanges(cfg.MasterDir, newManifest.DataVersion)
		if err != nil {
			t.log.Error().Err(err).Str("region", string(t.region)).Msg("git push failed")
		} else if pushed {
			t.log.Info().Str("region", string(t.region)).Msg("git pushed master data changes")
		}
	}

	t.log.Info().Str("region", string(t.region)).Msg("master data check complete")
	return nil
}

func (t *MasterSyncTask) notifyAssetUpdaters(ctx context.Context, login *sekaiengine.LoginResponse) {
	if len(t.updaters) == 0 {
		return
	}
	payload := assetUpdaterPayload{
		Server:       string(t.region),
		AssetVersion: login.AssetVersion,
		AssetHash:    login.AssetHash,
	}
	var wg sync.WaitGroup
	for _, server := range t.updaters {
		server := server
		wg.Add(1)
		go func() {
			defer wg.Done()
			t.callAssetUpdater(ctx, server, payload)
		}()
	}
	wg.Wait()
}

type assetUpdaterPayload struct {
	Server       string `json:"server"`
	AssetVersion string `json:"assetVersion"`
	AssetHash    string `json:"assetHash"`
}

func (t *MasterSyncTask) callAssetUpdater(ctx context.Context, server AssetUpdaterServer, payload assetUpdaterPayload) {
	body, err := json.Marshal(payload)
	if err != nil {
		t.log.Warn().Err(err).Str("url", server.URL).Msg("failed to encode asset updater payload")
		return
	}
	client := t.engine.HTTPClient()
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, server.URL, bytes.NewReader(body))
		if err != nil {
			t.log.Warn().Err(err).Str("url", server.URL).Msg("asset updater call failed")
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "Haruki-Sekai-API/1.0")
		if server.Authorization != "" {
			req.Header.Set("Authorization", "Bearer "+server.Authorization)
		}
		resp, err := client.Do(req)
		if err != nil {
			t.log.Warn().Err(err).Str("url", server.URL).Msg("asset updater call failed")
			return
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusConflict {
			select {
			case <-ctx.Done():
				return
			case <-time.After(assetUpdaterRetryDelay):
			}
			continue
		}
		return
	}
}

// downloadMaster fetches the new master bundle for the configured dialect
// and writes every top-level entry to master_dir/<key>.json. It returns the
// number of fragments actually written and the number skipped (unchanged
// content hash) or failed.
func (t *MasterSyncTask) downloadMaster(ctx context.Context, session *sekaisession.Session, login *sekaiengine.LoginResponse) (written, skippedOrFailed int, err error) {
	cfg := t.engine.Config()
	if err := os.MkdirAll(cfg.MasterDir, 0o755); err != nil {
		return 0, 0, apperror.New(apperror.KindIoError, "create master dir: %v", err)
	}

	if t.region.Dialect() == sekairegion.DialectNuverse {
		return t.downloadNuverseMaster(ctx, login)
	}
	return t.downloadCPMaster(ctx, session, login)
}

func (t *MasterSyncTask) downloadCPMaster(ctx context.Context, session *sekaisession.Session, login *sekaiengine.LoginResponse) (written, skippedOrFailed int, err error) {
	cfg := t.engine.Config()
	paths := make([]string, len(login.SuiteMasterSplitPath))
	for i, p := range login.SuiteMasterSplitPath {
		if !strings.HasPrefix(p, "/") {
			p = "/" + p
		}
		paths[i] = p
	}

	sem := make(chan struct{}, masterDownloadConcurrency)
	results := make([]*sekaicrypto.OrderedValue, len(paths))
	var wg sync.WaitGroup
	for i, p := range paths {
		i, p := i, p
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			ordered, err := t.engine.FetchOrdered(ctx, session, p)
			if err != nil {
				t.log.Warn().Err(err).Str("path", p).Msg("master fragment fetch failed")
				return
			}
			results[i] = ordered
		}()
	}
	wg.Wait()

	for _, ordered := range results {
		if ordered == nil || ordered.Kind != sekaicrypto.KindObject {
			continue
		}
		for pair := ordered.Object.Oldest(); pair != nil; pair = pair.Next() {
			w, err := t.writeFragment(cfg.MasterDir, pair.Key, pair.Value)
			if err != nil {
				t.log.Warn().Err(err).Str("key", pair.Key).Msg("failed to write master fragment")
				skippedOrFailed++
				continue
			}
			if w {
				written++
			} else {
				skippedOrFailed++
			}
		}
	}
	return written, skippedOrFailed, nil
}

func (t *MasterSyncTask) downloadNuverseMaster(ctx context.Context, login *sekaiengine.LoginResponse) (written, skippedOrFailed int, err error) {
	cfg := t.engine.Config()
	url := strings.TrimRight(cfg.NuverseMasterDataURL, "/") + "/master-data-" + login.CdnVersion + ".info"
	raw, err := t.engine.FetchRawURL(ctx, url, sekaiengine.MasterFetchTimeout)
	if err != nil {
		return 0, 0, err
	}
	ordered, err := t.engine.Crypto().UnpackOrdered(raw)
	if err != nil {
		return 0, 0, err
	}

	structures, err := loadStructures(cfg.NuverseStructureFilePath)
	if err != nil {
		return 0, 0, err
	}
	restored, err := nuverse.Restore(ordered, structures)
	if err != nil {
		return 0, 0, err
	}

	for k, v := range restored {
		w, err := t.writeFragment(cfg.MasterDir, k, v)
		if err != nil {
			t.log.Warn().Err(err).Str("key", k).Msg("failed to write master fragment")
			skippedOrFailed++
			continue
		}
		if w {
			written++
		} else {
			skippedOrFailed++
		}
	}
	return written, skippedOrFailed, nil
}

func loadStructures(path string) (map[string]any, error) {
	if path == "" {
		return map[string]any{}, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, apperror.New(apperror.KindIoError, "read structures file: %v", err)
	}
	var structures map[string]any
	if err := json.Unmarshal(b, &structures); err != nil {
		return nil, apperror.New(apperror.KindParseError, "parse structures file: %v", err)
	}
	return structures, nil
}

// writeFragment pretty-prints value and writes it to <masterDir>/<key>.json,
// skipping the write (reporting changed=false) if its content hash matches
// the last write for this key during this engine run.
func (t *MasterSyncTask) writeFragment(masterDir, key string, value any) (changed bool, err error) {
	b, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return false, apperror.New(apperror.KindParseError, "marshal %s: %v", key, err)
	}
	sum := xxhash.Checksum64(b)

	t.hashMu.Lock()
	prev, ok := t.hashes[key]
	t.hashMu.Unlock()
	if ok && prev == sum {
		return false, nil
	}

	path := filepath.Join(masterDir, key+".json")
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return false, apperror.New(apperror.KindIoError, "write %s: %v", path, err)
	}

	t.hashMu.Lock()
	t.hashes[key] = sum
	t.hashMu.Unlock()
	return true, nil
}
