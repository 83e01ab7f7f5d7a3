package handler

import "net/http"

// MetaHandler serves liveness and service identity.
type MetaHandler struct {
	name    string
	version string
}

// NewMetaHandler creates a new MetaHandler.
func NewMetaHandler(name, version string) *MetaHandler {
	return &MetaHandler{name: name, version: version}
}

// HandleHealth handles GET /health requests.
func (h *MetaHandler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "UP"})
}

// HandleRoot handles GET / requests.
func (h *MetaHandler) HandleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"name": h.name, "version": h.version})
}

// HandleNotFound renders unknown routes.
func HandleNotFound(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusNotFound, errorResponse("Not found"))
}

// HandleMethodNotAllowed renders known routes hit with the wrong method.
func HandleMethodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, errorResponse("Method not allowed"))
}
