package sekaiapi

import (
	"encoding/base64"
	"net/http"
	"net/url"
	"time"

	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/apperror"
	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/sekaicrypto"
	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/sekaiengine"
	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/sekairegion"
)

const mysekaiImageFetchTimeout = 15 * time.Second

// proxyGameAPI issues an encrypted, bounded-retry GET against the engine and
// writes the decoded MessagePack value back out as JSON, preserving key
// order the way the game client would see it.
func (s *Server) proxyGameAPI(w http.ResponseWriter, r *http.Request, engine *sekaiengine.Engine, path string, query url.Values) {
	ordered, err := engine.HighLevelGet(r.Context(), path, query)
	if err != nil {
		writeError(w, err)
		return
	}
	b, err := ordered.MarshalJSON()
	if err != nil {
		writeError(w, apperror.New(apperror.KindParseError, "encode response: %v", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// fetchMysekaiImage dispatches by dialect: CP fetches raw PNG bytes directly
// from the asset CDN path (no /api prefix, no encryption); Nuverse makes the
// usual encrypted API call and extracts a base64-encoded "thumbnail" field
// from the decoded response.
func (s *Server) fetchMysekaiImage(r *http.Request, engine *sekaiengine.Engine, region sekairegion.Region, p1, p2 string) ([]byte, string, error) {
	if region.Dialect() == sekairegion.DialectCP {
		assetURL := engine.Config().APIURL + "/image/mysekai-photo/" + p1 + "/" + p2
		b, err := engine.FetchRawURL(r.Context(), assetURL, mysekaiImageFetchTimeout)
		if err != nil {
			return nil, "", err
		}
		return b, "image/png", nil
	}

	ordered, err := engine.HighLevelGet(r.Context(), "/user/"+p1+"/mysekai/photo/"+p2, nil)
	if err != nil {
		return nil, "", err
	}
	if ordered.Object == nil {
		return nil, "", apperror.New(apperror.KindParseError, "missing thumbnail in response")
	}
	thumb, ok := ordered.Object.Get("thumbnail")
	if !ok || thumb.Kind != sekaicrypto.KindString {
		return nil, "", apperror.New(apperror.KindParseError, "missing thumbnail in response")
	}
	b, err := base64.StdEncoding.DecodeString(thumb.Str)
	if err != nil {
		return nil, "", apperror.New(apperror.KindParseError, "decode thumbnail: %v", err)
	}
	return b, "image/png", nil
}
