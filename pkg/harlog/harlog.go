// Package harlog optionally records failed upstream exchanges as HAR files
// for offline diagnosis, grounded on the teacher's AuthMgr.SaveHAR pattern
// (pkg/origin/authmgr.go): wrap a transport with harhar's recording
// RoundTripper, then persist the captured HAR only when the exchange itself
// looks like a failure.
package harlog

import (
	"bytes"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"

	"github.com/cardigann/harhar"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/xid"
	"github.com/rs/zerolog"
)

// Config controls whether and where HAR captures are written.
type Config struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
	Gzip    bool   `yaml:"gzip"`
}

// Recorder wraps an http.RoundTripper so every request/response pair that
// either errors in transport or returns a status of 400 or above is written out as
// an HAR file under Dir.
type Recorder struct {
	cfg Config
	log zerolog.Logger
}

// New builds a Recorder. If cfg.Enabled is false, WrapTransport is a no-op.
func New(cfg Config, log zerolog.Logger) *Recorder {
	return &Recorder{cfg: cfg, log: log}
}

// WrapTransport returns rt unchanged if HAR capture is disabled, otherwise a
// RoundTripper that records every exchange and writes the capture to disk
// when the exchange failed.
func (r *Recorder) WrapTransport(rt http.RoundTripper) http.RoundTripper {
	if !r.cfg.Enabled {
		return rt
	}
	if rt == nil {
		rt = http.DefaultTransport
	}
	return &recordingTransport{inner: rt, r: r}
}

type recordingTransport struct {
	inner http.RoundTripper
	r     *Recorder
}

func (t *recordingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	rec := harhar.NewRecorder()
	rec.RoundTripper = t.inner
	resp, err := rec.RoundTrip(req)
	failed := err != nil || (resp != nil && resp.StatusCode >= 400)
	if failed {
		t.r.save(rec.HAR, req.URL.Path, err)
	}
	return resp, err
}

func (r *Recorder) save(har any, label string, cause error) {
	if r.cfg.Dir == "" {
		return
	}
	if err := os.MkdirAll(r.cfg.Dir, 0o755); err != nil {
		r.log.Warn().Err(err).Msg("harlog: failed to create capture dir")
		return
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(har); err != nil {
		r.log.Warn().Err(err).Msg("harlog: failed to encode HAR")
		return
	}

	name := sanitize(label) + "-" + xid.New().String() + ".har"
	if r.cfg.Gzip {
		name += ".gz"
	}
	path := filepath.Join(r.cfg.Dir, name)

	var payload []byte
	if r.cfg.Gzip {
		var gz bytes.Buffer
		w := gzip.NewWriter(&gz)
		if _, err := w.Write(buf.Bytes()); err != nil {
			r.log.Warn().Err(err).Msg("harlog: failed to gzip HAR")
			return
		}
		w.Close()
		payload = gz.Bytes()
	} else {
		payload = buf.Bytes()
	}

	if err := os.WriteFile(path, payload, 0o644); err != nil {
		r.log.Warn().Err(err).Msg("harlog: failed to write HAR capture")
		return
	}
	r.log.Info().Str("path", path).AnErr("cause", cause).Msg("harlog: wrote capture of failed exchange")
}

func sanitize(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c == '/' || c == '\\' || c == ' ' {
			b[i] = '_'
		}
	}
	if len(b) == 0 {
		return "exchange"
	}
	return string(b)
}
