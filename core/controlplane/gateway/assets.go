package gateway

import (
	"errors"
	"net/http"

	"github.com/brandguard/brandguard/core/fault"
	"github.com/brandguard/brandguard/core/infra/blob"
)

// handleUploadAsset stores the raw request body for a brand and returns its
// key and URL, which callers pass as assetUrl to evaluations.
func (s *server) handleUploadAsset(w http.ResponseWriter, r *http.Request) {
	if s.assets == nil {
		writeErrorBody(w, http.StatusServiceUnavailable, errorBody{
			Code:    "ASSETS_DISABLED",
			Message: "asset storage is not configured",
			Field:   "ASSET_BUCKET",
		})
		return
	}
	brandID, err := pathValue(r, "brandId")
	if err != nil {
		writeError(w, r, err)
		return
	}
	data, err := readBody(w, r, maxAssetBytes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	obj, err := s.assets.Put(r.Context(), brandID, r.Header.Get("Content-Type"), data)
	if errors.Is(err, blob.ErrEmpty) {
		writeError(w, r, fault.Validation("body", "asset body is empty"))
		return
	}
	if err != nil {
		writeError(w, r, fault.Database("store asset", err))
		return
	}
	writeJSON(w, http.StatusCreated, obj)
}
