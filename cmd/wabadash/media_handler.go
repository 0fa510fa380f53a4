package main

import (
	"errors"
	"net/http"

	"wabadash/pkg/media"
)

type mediaDownloadRequest struct {
	ImageURL string `json:"imageUrl"`
}

// handleMediaDownload proxies a provider media URL and returns it base64
// encoded, since the browser cannot send the access token itself
func (s *Server) handleMediaDownload() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req mediaDownloadRequest
		if err := s.decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		result, err := s.deps.Media.Fetch(r.Context(), req.ImageURL)
		if err != nil {
			var upstream *media.UpstreamError
			if errors.As(err, &upstream) {
				writeJSON(w, upstream.StatusCode, map[string]any{
					"error":  "Failed to download image",
					"status": upstream.StatusCode,
				})
				return
			}
			s.writeError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}
