package sekaiapi

import (
	"encoding/json"
	"net/http"

	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/apperror"
	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/sekairegion"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	ae, ok := err.(*apperror.Error)
	if !ok {
		ae = apperror.New(apperror.KindInternal, "%v", err)
	}
	writeJSON(w, ae.HTTPStatus(), ae.Response())
}

func notAvailable(region sekairegion.Region) *apperror.Error {
	return apperror.New(apperror.KindNoClientAvailable, "server %q is not available", region.String())
}
