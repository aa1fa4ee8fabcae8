package sekaisync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/sekaiaccount"
	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/sekaicrypto"
	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/sekaiengine"
	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/sekairegion"
	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/sekaisession"
)

const (
	testKeyHex = "00112233445566778899aabbccddeeff"
	testIVHex  = "ffeeddccbbaa99887766554433221100"
)

// TestCallAssetUpdaterRetriesOn409 exercises the "sleep and retry forever on
// 409" fan-out rule, bounded here to three attempts before success.
func TestCallAssetUpdaterRetriesOn409(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&attempts, 1)
		var payload assetUpdaterPayload
		_ = json.NewDecoder(r.Body).Decode(&payload)
		if n < 3 {
			w.WriteHeader(http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := sekaiengine.Config{APIURL: "http://127.0.0.1:1", AESKeyHex: testKeyHex, AESIVHex: testIVHex}
	engine, err := sekaiengine.New(sekairegion.JP, cfg, "", "", zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	task := NewMasterSyncTask(sekairegion.JP, engine, nil, nil, zerolog.Nop())

	origDelay := assetUpdaterRetryDelay
	assetUpdaterRetryDelay = time.Millisecond
	defer func() { assetUpdaterRetryDelay = origDelay }()

	task.callAssetUpdater(context.Background(), AssetUpdaterServer{URL: srv.URL}, assetUpdaterPayload{Server: "jp"})

	if n := atomic.LoadInt32(&attempts); n != 3 {
		t.Fatalf("attempts = %d, want 3", n)
	}
}

// TestWriteFragmentSkipsUnchanged exercises the xxhash-based no-op dedup: an
// identical fragment written twice only touches the file once.
func TestWriteFragmentSkipsUnchanged(t *testing.T) {
	dir := t.TempDir()
	task := NewMasterSyncTask(sekairegion.JP, nil, nil, nil, zerolog.Nop())

	changed, err := task.writeFragment(dir, "cards", map[string]any{"a": 1})
	if err != nil || !changed {
		t.Fatalf("first write: changed=%v err=%v, want true/nil", changed, err)
	}

	path := filepath.Join(dir, "cards.json")
	info1, _ := os.Stat(path)

	changed, err = task.writeFragment(dir, "cards", map[string]any{"a": 1})
	if err != nil || changed {
		t.Fatalf("second identical write: changed=%v err=%v, want false/nil", changed, err)
	}
	info2, _ := os.Stat(path)
	if info1.ModTime() != info2.ModTime() {
		t.Fatal("file was rewritten despite unchanged content")
	}

	changed, err = task.writeFragment(dir, "cards", map[string]any{"a": 2})
	if err != nil || !changed {
		t.Fatalf("changed content write: changed=%v err=%v, want true/nil", changed, err)
	}
}

// TestDownloadCPMasterWritesFragments exercises the CP split-path download:
// two fragment endpoints, each contributing distinct top-level keys.
func TestDownloadCPMasterWritesFragments(t *testing.T) {
	cryptor, err := sekaicrypto.FromHex(testKeyHex, testIVHex)
	if err != nil {
		t.Fatal(err)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/user/", func(w http.ResponseWriter, r *http.Request) {
		body, _ := cryptor.Pack(map[string]any{"sessionToken": "tok"})
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(body)
	})
	mux.HandleFunc("/api/suite/1", func(w http.ResponseWriter, r *http.Request) {
		body, _ := cryptor.Pack(map[string]any{"cards": []int{1, 2}})
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(body)
	})
	mux.HandleFunc("/api/suite/2", func(w http.ResponseWriter, r *http.Request) {
		body, _ := cryptor.Pack(map[string]any{"events": []int{3}})
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(body)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := sekaiengine.Config{APIURL: srv.URL, AESKeyHex: testKeyHex, AESIVHex: testIVHex, MasterDir: t.TempDir()}
	engine, err := sekaiengine.New(sekairegion.JP, cfg, "", "", zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	session := sekaisession.New(&sekaiaccount.CP{UserID_: "1", DeviceID_: "dev", Credential: "cred"})
	if _, err := engine.Login(context.Background(), session); err != nil {
		t.Fatal(err)
	}

	task := NewMasterSyncTask(sekairegion.JP, engine, nil, nil, zerolog.Nop())
	login := &sekaiengine.LoginResponse{SuiteMasterSplitPath: []string{"suite/1", "suite/2"}}
	written, failed, err := task.downloadCPMaster(context.Background(), session, login)
	if err != nil {
		t.Fatal(err)
	}
	if written != 2 || failed != 0 {
		t.Fatalf("written=%d failed=%d, want 2/0", written, failed)
	}
	for _, name := range []string{"cards.json", "events.json"} {
		if _, err := os.Stat(filepath.Join(cfg.MasterDir, name)); err != nil {
			t.Fatalf("expected %s to exist: %v", name, err)
		}
	}
}
