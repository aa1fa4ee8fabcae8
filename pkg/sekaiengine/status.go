package sekaiengine

import (
	"net/http"
	"strings"

	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/apperror"
)

// ServerStatus is the §3 Data Model classification of an upstream exchange,
// derived from both its HTTP status code and Content-Type. Content-Type
// matters because the upstream reuses the same status codes for different
// outcomes depending on whether the body is the binary game protocol or an
// XML error page (see classifyStatus).
type ServerStatus int

const (
	StatusOK ServerStatus = iota
	StatusSessionError
	StatusCookieExpired
	StatusGameUpgrade
	StatusUnderMaintenance
	StatusUnknown
)

// classifyStatus implements the §4.6 content-type/status table as a single
// ServerStatus value. isBinary is the decodeable game-protocol body;
// everything else (including XML) is treated as an error page.
func classifyStatus(status int, isBinary, isXML bool) ServerStatus {
	if isBinary {
		switch status {
		case http.StatusOK, http.StatusBadRequest, http.StatusNotFound, http.StatusConflict:
			return StatusOK
		case http.StatusForbidden:
			return StatusSessionError
		case 426:
			return StatusGameUpgrade
		case http.StatusServiceUnavailable:
			return StatusUnderMaintenance
		default:
			return StatusUnknown
		}
	}

	switch {
	case status == http.StatusServiceUnavailable:
		return StatusUnderMaintenance
	case isXML && status == http.StatusForbidden:
		return StatusCookieExpired
	default:
		return StatusUnknown
	}
}

// classifyResponse implements the §4.6 content-type/status table. On a
// decodeable outcome it returns the raw (still-encrypted) response body and
// a nil error; any other outcome returns a nil body and the classified
// *apperror.Error.
func classifyResponse(status int, contentType string, body []byte) ([]byte, error) {
	isBinary := strings.Contains(contentType, "octet-stream") || strings.Contains(contentType, "binary")
	isXML := strings.Contains(contentType, "xml")

	switch classifyStatus(status, isBinary, isXML) {
	case StatusOK:
		return body, nil
	case StatusSessionError:
		return nil, apperror.New(apperror.KindSessionError, "upstream returned 403")
	case StatusGameUpgrade:
		return nil, apperror.New(apperror.KindUpgradeRequired, "upstream returned 426")
	case StatusUnderMaintenance:
		return nil, apperror.New(apperror.KindUnderMaintenance, "upstream returned 503")
	case StatusCookieExpired:
		return nil, apperror.New(apperror.KindCookieExpired, "upstream returned 403 xml")
	default:
		return nil, apperror.Unknown(status, body)
	}
}
