package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	apperrors "wabadash/internal/errors"
	"wabadash/internal/middleware"
	"wabadash/internal/models"
	"wabadash/internal/service"

	"github.com/sirupsen/logrus"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError logs err and writes the standard error body. Server-side
// failures log at error level, caller mistakes at warn.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	entry := service.LogWithContext(r.Context(), s.logger).WithError(err).WithFields(logrus.Fields{
		service.LogFieldMethod:     r.Method,
		service.LogFieldURL:        r.URL.Path,
		service.LogFieldStatusCode: status,
		service.LogFieldErrorCode:  apperrors.GetCode(err),
	})
	if status >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Warn("Request rejected")
	}
	middleware.WriteError(w, r, err)
}

// decodeJSON reads a bounded JSON body into dst
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, s.maxBodyBytes())
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return apperrors.NewInputError("Request body too large", err)
		case errors.Is(err, io.EOF):
			return apperrors.NewInputError("Request body is required", err)
		default:
			return apperrors.NewInputError("Invalid JSON body", err)
		}
	}
	return nil
}

func queryInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return n
}

func queryBool(r *http.Request, key string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return b
}

// pageFromQuery reads page and page_size; the store clamps them
func pageFromQuery(r *http.Request) models.Page {
	return models.Page{
		Number: queryInt(r, "page"),
		Size:   queryInt(r, "page_size"),
	}.Normalize()
}

func queryString(r *http.Request, key string) string {
	return strings.TrimSpace(r.URL.Query().Get(key))
}
