package main

import (
	"errors"
	"net/http"

	apperrors "wabadash/internal/errors"
	"wabadash/internal/models"
	"wabadash/internal/monitor"
	"wabadash/internal/service"
	"wabadash/pkg/whatsapp/types"

	"github.com/gorilla/mux"
)

func (s *Server) handleSendText() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req service.SendTextRequest
		if err := s.decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		result, err := s.deps.Messaging.SendText(r.Context(), req)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func (s *Server) handleSendTemplate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req service.SendTemplateRequest
		if err := s.decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		result, err := s.deps.Messaging.SendTemplate(r.Context(), req)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func (s *Server) handleListResponses() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := s.deps.Responses.List(r.Context(), models.ClientResponseFilter{
			MessageType:     queryString(r, "type"),
			Search:          queryString(r, "search"),
			IncludeArchived: queryBool(r, "include_archived"),
			FlaggedOnly:     queryBool(r, "flagged_only"),
			Page:            pageFromQuery(r),
		})
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
	}
}

func (s *Server) handleGetResponse() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := s.deps.Responses.Get(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) handleArchiveResponse() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := s.deps.Responses.Archive(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) handleToggleFlag() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := s.deps.Responses.ToggleFlag(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) handleDeleteResponse() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.deps.Responses.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleListTemplates() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := s.deps.Templates.List(r.Context(), queryInt(r, "limit"), queryString(r, "after"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// handleSubmitTemplate creates the template and starts watching its review.
// The response carries the submission snapshot; clients poll it by id.
func (s *Server) handleSubmitTemplate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var def types.TemplateDefinition
		if err := s.decodeJSON(w, r, &def); err != nil {
			s.writeError(w, r, err)
			return
		}
		handle, err := s.deps.Monitor.Submit(r.Context(), def)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, handle.Snapshot())
	}
}

func (s *Server) handleListSubmissions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"items": s.deps.Monitor.List()})
	}
}

func (s *Server) handleGetSubmission() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		snap, err := s.deps.Monitor.Get(id)
		if err != nil {
			s.writeError(w, r, submissionError(id, err))
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

// handleStopSubmission stops monitoring. With forget=true a finished
// submission is also dropped and 204 is returned.
func (s *Server) handleStopSubmission() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		if err := s.deps.Monitor.Stop(id); err != nil {
			s.writeError(w, r, submissionError(id, err))
			return
		}

		if queryBool(r, "forget") {
			if err := s.deps.Monitor.Forget(id); err != nil {
				s.writeError(w, r, submissionError(id, err))
				return
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}

		snap, err := s.deps.Monitor.Get(id)
		if err != nil {
			s.writeError(w, r, submissionError(id, err))
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

func submissionError(id string, err error) error {
	if errors.Is(err, monitor.ErrNotFound) {
		return apperrors.NewNotFoundError("Template submission", id)
	}
	return err
}

func (s *Server) handleGetSettings() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		settings, err := s.deps.Admin.Public(r.Context())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, settings)
	}
}

func (s *Server) handleUpdateSettings() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in models.APISettings
		if err := s.decodeJSON(w, r, &in); err != nil {
			s.writeError(w, r, err)
			return
		}
		settings, err := s.deps.Admin.Update(r.Context(), in)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, settings)
	}
}

func (s *Server) handleTestSettings() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, err := s.deps.Admin.Test(r.Context())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "phone_number": info})
	}
}

func (s *Server) handleListLogs() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := s.deps.History.ListAPILogs(r.Context(), models.APILogFilter{
			Endpoint: queryString(r, "endpoint"),
			Status:   queryInt(r, "status"),
			Page:     pageFromQuery(r),
		})
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
	}
}

func (s *Server) handleListSentMessages() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := s.deps.History.ListSentMessages(r.Context(), pageFromQuery(r))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
	}
}
