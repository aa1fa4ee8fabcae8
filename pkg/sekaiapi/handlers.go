package sekaiapi

import (
	"net/http"
	"net/url"
	"regexp"
	"time"

	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/apperror"
)

type healthResponse struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	UptimeSecs int64  `json:"uptime_secs"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:     "ok",
		Version:    s.Version,
		UptimeSecs: int64(time.Since(s.startedAt).Seconds()),
	})
}

var (
	hex64Pattern  = regexp.MustCompile(`^[a-f0-9]{64}$`)
	digitsPattern = regexp.MustCompile(`^\d+$`)
)

// handleMysekaiImage proxies the CP or Nuverse "mysekai photo" asset,
// grounded on original_source/src/api/image.rs's per-dialect path
// validation and original_source/src/client/sekai_client.rs's two fetch
// strategies (CP: raw passthrough byte fetch; Nuverse: encrypted API call
// whose response embeds a base64 thumbnail).
func (s *Server) handleMysekaiImage(w http.ResponseWriter, r *http.Request) {
	engine, region, err := s.engineFor(r)
	if region == "" {
		writeError(w, err)
		return
	}

	p1, p2 := r.PathValue("param1"), r.PathValue("param2")
	if region.IsCP() {
		if !hex64Pattern.MatchString(p1) || !hex64Pattern.MatchString(p2) {
			writeError(w, apperror.New(apperror.KindParseError, "invalid path format, expected 64-char hex"))
			return
		}
	} else {
		if !digitsPattern.MatchString(p1) || !digitsPattern.MatchString(p2) {
			writeError(w, apperror.New(apperror.KindParseError, "invalid path format, expected numeric ids"))
			return
		}
	}
	if err != nil {
		writeError(w, err)
		return
	}

	body, contentType, err := s.fetchMysekaiImage(r, engine, region, p1, p2)
	if err != nil {
		writeError(w, err)
		return
	}
	if contentType == "" {
		contentType = "image/png"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	if !digitsPattern.MatchString(userID) {
		writeError(w, apperror.New(apperror.KindParseError, "user_id must be numeric"))
		return
	}
	engine, _, err := s.engineFor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	s.proxyGameAPI(w, r, engine, "/user/{userId}/"+userID+"/profile", nil)
}

func (s *Server) handleSystem(w http.ResponseWriter, r *http.Request) {
	engine, _, err := s.engineFor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	s.proxyGameAPI(w, r, engine, "/system", nil)
}

func (s *Server) handleInformation(w http.ResponseWriter, r *http.Request) {
	engine, _, err := s.engineFor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	s.proxyGameAPI(w, r, engine, "/information", nil)
}

func (s *Server) handleRankingTop100(w http.ResponseWriter, r *http.Request) {
	engine, _, err := s.engineFor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	eventID := r.PathValue("event_id")
	if !digitsPattern.MatchString(eventID) {
		writeError(w, apperror.New(apperror.KindParseError, "event_id must be numeric"))
		return
	}
	query := url.Values{"rankingViewType": {"top100"}}
	s.proxyGameAPI(w, r, engine, "/user/{userId}/event/"+eventID+"/ranking", query)
}

func (s *Server) handleRankingBorder(w http.ResponseWriter, r *http.Request) {
	engine, _, err := s.engineFor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	eventID := r.PathValue("event_id")
	if !digitsPattern.MatchString(eventID) {
		writeError(w, apperror.New(apperror.KindParseError, "event_id must be numeric"))
		return
	}
	s.proxyGameAPI(w, r, engine, "/event/"+eventID+"/ranking-border", nil)
}
