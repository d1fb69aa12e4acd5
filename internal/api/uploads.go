package api

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tablechat/tablechat/internal/auth"
)

const multipartMemory = 8 << 20

func handleUpload(deps Dependencies, maxBytes int64, w http.ResponseWriter, r *http.Request) {
	if err := requireAnyRole(r, auth.RoleUploadWriter); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	if maxBytes > 0 {
		if r.ContentLength > maxBytes {
			writeError(r.Context(), w, http.StatusRequestEntityTooLarge, "DOCUMENT_TOO_LARGE", fmt.Sprintf("upload exceeds %d bytes", maxBytes), false, nil)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(r.Context(), w, http.StatusRequestEntityTooLarge, "DOCUMENT_TOO_LARGE", fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit), false, nil)
			return
		}
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_MULTIPART", "request must be multipart/form-data", false, map[string]any{"details": err.Error()})
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "FILE_REQUIRED", "multipart field \"file\" is required", false, nil)
		return
	}
	defer func() { _ = file.Close() }()

	body, err := io.ReadAll(file)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_MULTIPART", "failed to read uploaded file", false, map[string]any{"details": err.Error()})
		return
	}

	upload, err := deps.Assistant.IngestDocument(r.Context(), filepath.Base(header.Filename), body)
	if err != nil {
		writeServiceError(deps, w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, upload)
}

func handleListUploads(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if err := requireAnyRole(r, auth.RoleQueryReader, auth.RoleUploadWriter); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": deps.Assistant.EphemeralTables()})
}

func handleRemoveUpload(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if err := requireAnyRole(r, auth.RoleUploadWriter); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	tableName := strings.TrimSpace(r.PathValue("table"))
	if err := deps.Assistant.RemoveEphemeral(r.Context(), tableName); err != nil {
		writeServiceError(deps, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Table removed successfully", "table_name": tableName})
}

func handleUploadSource(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if err := requireAnyRole(r, auth.RoleQueryReader, auth.RoleUploadWriter); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	document, err := deps.Assistant.OpenDocument(r.Context(), strings.TrimSpace(r.PathValue("table")))
	if err != nil {
		writeServiceError(deps, w, r, err)
		return
	}
	defer func() { _ = document.Body.Close() }()

	w.Header().Set("Content-Type", document.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": document.Filename}))
	if document.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(document.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, document.Body)
}
