package sekaiengine

import (
	"testing"

	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/apperror"
)

func TestClassifyResponseTable(t *testing.T) {
	cases := []struct {
		name        string
		status      int
		contentType string
		wantKind    apperror.Kind
		wantDecode  bool
	}{
		{"binary 200 decodes", 200, "application/octet-stream", "", true},
		{"binary 400 decodes", 400, "application/octet-stream", "", true},
		{"binary 404 decodes", 404, "application/octet-stream", "", true},
		{"binary 409 decodes", 409, "application/octet-stream", "", true},
		{"binary 403 is SessionError", 403, "application/octet-stream", apperror.KindSessionError, false},
		{"binary 426 is UpgradeRequired", 426, "application/octet-stream", apperror.KindUpgradeRequired, false},
		{"binary 503 is UnderMaintenance", 503, "application/octet-stream", apperror.KindUnderMaintenance, false},
		{"binary other is Unknown", 418, "application/octet-stream", apperror.KindUnknown, false},
		{"non-binary 503 is UnderMaintenance", 503, "text/plain", apperror.KindUnderMaintenance, false},
		{"non-binary 500 is Unknown", 500, "text/plain", apperror.KindUnknown, false},
		{"xml 403 is CookieExpired", 403, "application/xml", apperror.KindCookieExpired, false},
		{"other 403 is Unknown", 403, "text/plain", apperror.KindUnknown, false},
		{"binary-alias 'binary' 200 decodes", 200, "application/x-binary", "", true},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			body := []byte("payload")
			got, err := classifyResponse(c.status, c.contentType, body)
			if c.wantDecode {
				if err != nil {
					t.Fatalf("classifyResponse() error = %v, want nil", err)
				}
				if string(got) != string(body) {
					t.Fatalf("classifyResponse() body = %q, want %q", got, body)
				}
				return
			}
			if err == nil {
				t.Fatalf("classifyResponse() error = nil, want Kind %s", c.wantKind)
			}
			appErr, ok := err.(*apperror.Error)
			if !ok {
				t.Fatalf("classifyResponse() error type = %T, want *apperror.Error", err)
			}
			if appErr.Kind != c.wantKind {
				t.Fatalf("classifyResponse() kind = %s, want %s", appErr.Kind, c.wantKind)
			}
		})
	}
}
