package httpx

import (
	"net/http"

	domainauth "github.com/itiportal/portal-session/internal/domain/auth"
)

type healthResponse struct {
	Status  string           `json:"status"`
	Session domainauth.Phase `json:"session"`
	Loading bool             `json:"loading"`
}

// healthHandler reports liveness plus the session phase. The gateway is live
// while the session is still reconciling, so the status is always 200.
func healthHandler(src SessionSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			return
		}
		st := src.Snapshot()
		WriteJSON(w, http.StatusOK, healthResponse{Status: "ok", Session: st.Phase, Loading: st.Loading})
	}
}
