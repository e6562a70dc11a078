package handler

import "net/http"

// ListCatalog handles GET /api/catalog.
func (h *Handler) ListCatalog(w http.ResponseWriter, _ *http.Request) {
	entries := h.catalog.Entries()
	out := make([]catalogEntry, len(entries))
	for i, e := range entries {
		out[i] = newCatalogEntry(e)
	}
	writeJSON(w, http.StatusOK, out)
}
