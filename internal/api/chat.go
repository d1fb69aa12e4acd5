package api

import (
	"net/http"
	"strings"

	"github.com/tablechat/tablechat/internal/auth"
)

type chatRequest struct {
	Message string   `json:"message"`
	Tables  []string `json:"tables"`
}

func handleChat(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if err := requireAnyRole(r, auth.RoleQueryReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid chat request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "MESSAGE_REQUIRED", "message is required", false, nil)
		return
	}
	if len(req.Tables) == 0 {
		writeError(r.Context(), w, http.StatusBadRequest, "TABLES_REQUIRED", "tables must name at least one table", false, nil)
		return
	}

	answer, err := deps.Assistant.Ask(r.Context(), req.Message, req.Tables)
	if err != nil {
		writeServiceError(deps, w, r, err)
		return
	}
	if answer.Data == nil {
		answer.Data = []map[string]any{}
	}
	writeJSON(w, http.StatusOK, answer)
}
