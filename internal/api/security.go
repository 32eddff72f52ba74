package api

import (
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/xenking/storefront-promo/internal/domain/auth"
)

// requireAPIKey wraps a handler with API key authentication. The key is
// expected in the api_key header, stored server-side as an HMAC-SHA256 hash.
func (h *Handler) requireAPIKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("api_key")
		if key == "" {
			writeError(w, r, http.StatusUnauthorized, "api key required")
			return
		}

		computed := auth.HashKey(key, h.pepper)
		info, err := h.apikeys.FindByHash(r.Context(), computed)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}

		// Constant-time comparison guards against timing side-channels even
		// though the lookup already succeeded.
		stored, err := hex.DecodeString(info.KeyHash)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}
		computedBytes, _ := hex.DecodeString(computed)
		if subtle.ConstantTimeCompare(computedBytes, stored) != 1 {
			writeError(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}

		next(w, r)
	}
}
