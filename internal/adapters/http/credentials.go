package httpadapter

import (
	"encoding/json"
	"net/http"
)

type storeCredentialRequest struct {
	Service string `json:"service"`
	APIKey  string `json:"api_key"`
}

func (rt *Router) storeCredential(w http.ResponseWriter, r *http.Request) {
	var req storeCredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	if err := rt.credentials.Store(r.Context(), req.Service, req.APIKey); err != nil {
		rt.writeError(w, err)
		return
	}
	// The key itself is never echoed back.
	writeJSON(w, http.StatusCreated, map[string]string{"service": req.Service})
}

func (rt *Router) listCredentials(w http.ResponseWriter, r *http.Request) {
	services, err := rt.credentials.ListServices(r.Context())
	if err != nil {
		rt.writeError(w, err)
		return
	}
	if services == nil {
		services = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": services})
}

func (rt *Router) deleteCredential(w http.ResponseWriter, r *http.Request) {
	if err := rt.credentials.Delete(r.Context(), r.PathValue("service")); err != nil {
		rt.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
