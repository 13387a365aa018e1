// Package handler はHTTPハンドラを提供する。
package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"vault-secret-store/internal/domain"
	"vault-secret-store/internal/middleware"
	"vault-secret-store/internal/usecase"
	"vault-secret-store/pkg/httputil"
)

// EntryHandler はエントリ操作のHTTPハンドラを提供する。
type EntryHandler struct {
	service *usecase.VaultService
}

// NewEntryHandler は新しいEntryHandlerを生成する。
func NewEntryHandler(service *usecase.VaultService) *EntryHandler {
	return &EntryHandler{service: service}
}

// EntryRequest はエントリ作成・更新のリクエスト形式。
type EntryRequest struct {
	Title    string `json:"title"`
	Username string `json:"username"`
	Password string `json:"password"`
	Note     string `json:"note"`
	Category string `json:"category"`
}

func (r EntryRequest) toInput() domain.EntryInput {
	return domain.EntryInput{
		Title:    r.Title,
		Username: r.Username,
		Password: r.Password,
		Note:     r.Note,
		Category: r.Category,
	}
}

// EntryMetadataResponse はパスワードを含まないエントリのレスポンス形式。
type EntryMetadataResponse struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Username     string `json:"username"`
	Note         string `json:"note"`
	Category     string `json:"category"`
	SecretFormat string `json:"secret_format"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

// EntrySavedResponse は保存結果のレスポンス形式。
// secret_state は sealed / degraded / empty のいずれか。
type EntrySavedResponse struct {
	EntryMetadataResponse
	SecretState string `json:"secret_state"`
}

// EntryResponse は復号済みエントリのレスポンス形式。
// password_state が unreadable の場合 password は含まれない。
type EntryResponse struct {
	EntryMetadataResponse
	Password      string `json:"password,omitempty"`
	PasswordState string `json:"password_state"`
}

// EntryListResponse はエントリ一覧のレスポンス形式。
type EntryListResponse struct {
	Entries []EntryMetadataResponse `json:"entries"`
}

// ResealResponse は再暗号化のレスポンス形式。
type ResealResponse struct {
	Resealed   int      `json:"resealed"`
	Unreadable []string `json:"unreadable"`
}

func newEntryMetadataResponse(e *domain.VaultEntry) EntryMetadataResponse {
	return EntryMetadataResponse{
		ID:           e.ID,
		Title:        e.Title,
		Username:     e.Username,
		Note:         e.Note,
		Category:     e.Category,
		SecretFormat: string(e.SecretFormat),
		CreatedAt:    e.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    e.UpdatedAt.Format(time.RFC3339),
	}
}

// writeServiceError はサービス層のエラーをHTTPステータスに変換する。
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidEntry):
		httputil.Error(w, http.StatusBadRequest, "INVALID_ENTRY", err.Error())
	case errors.Is(err, domain.ErrEntryNotFound):
		httputil.Error(w, http.StatusNotFound, "ENTRY_NOT_FOUND", "entry not found")
	case errors.Is(err, domain.ErrKeyNotFound):
		httputil.Error(w, http.StatusNotFound, "KEY_NOT_FOUND", "key has not been generated yet")
	case errors.Is(err, domain.ErrKeyFacility):
		httputil.Error(w, http.StatusServiceUnavailable, "KEY_FACILITY_UNAVAILABLE", "key facility is unavailable")
	default:
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}

// auditSaved は保存結果を監査ログに残す。退避符号化は区別して記録する。
func auditSaved(r *http.Request, operation, entryID string, result usecase.EncodeResult) string {
	if result.Degraded() {
		middleware.WriteAuditLog(r.Context(), operation, entryID, middleware.AuditResultDegradedEncoding)
		return string(usecase.OutcomeDegraded)
	}
	middleware.WriteAuditLog(r.Context(), operation, entryID, middleware.AuditResultSuccess)
	return string(result.Outcome)
}

// CreateEntry は新しいエントリを作成する。
func (h *EntryHandler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	var req EntryRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}

	entry, result, err := h.service.CreateEntry(r.Context(), req.toInput())
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "CREATE_ENTRY", "", middleware.AuditResultFailure)
		writeServiceError(w, err)
		return
	}

	state := auditSaved(r, "CREATE_ENTRY", entry.ID, result)
	httputil.JSON(w, http.StatusCreated, EntrySavedResponse{
		EntryMetadataResponse: newEntryMetadataResponse(entry),
		SecretState:           state,
	})
}

// GetEntry はエントリを取得し、パスワードを復号して返す。
func (h *EntryHandler) GetEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	decoded, err := h.service.GetEntry(r.Context(), id)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "GET_ENTRY", id, middleware.AuditResultFailure)
		writeServiceError(w, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "GET_ENTRY", id, middleware.AuditResultSuccess)
	httputil.JSON(w, http.StatusOK, EntryResponse{
		EntryMetadataResponse: newEntryMetadataResponse(decoded.Entry),
		Password:              decoded.Password,
		PasswordState:         string(decoded.SecretState),
	})
}

// ListEntries はエントリ一覧を返す。パスワードは含まない。
func (h *EntryHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.ListEntries(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	response := EntryListResponse{
		Entries: make([]EntryMetadataResponse, len(entries)),
	}
	for i, e := range entries {
		response.Entries[i] = newEntryMetadataResponse(e)
	}
	httputil.JSON(w, http.StatusOK, response)
}

// UpdateEntry はエントリを更新する。
func (h *EntryHandler) UpdateEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req EntryRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}

	entry, result, err := h.service.UpdateEntry(r.Context(), id, req.toInput())
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "UPDATE_ENTRY", id, middleware.AuditResultFailure)
		writeServiceError(w, err)
		return
	}

	state := auditSaved(r, "UPDATE_ENTRY", entry.ID, result)
	httputil.JSON(w, http.StatusOK, EntrySavedResponse{
		EntryMetadataResponse: newEntryMetadataResponse(entry),
		SecretState:           state,
	})
}

// DeleteEntry はエントリを削除する。
func (h *EntryHandler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.service.DeleteEntry(r.Context(), id); err != nil {
		middleware.WriteAuditLog(r.Context(), "DELETE_ENTRY", id, middleware.AuditResultFailure)
		writeServiceError(w, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "DELETE_ENTRY", id, middleware.AuditResultSuccess)
	w.WriteHeader(http.StatusNoContent)
}

// Reseal は旧形式のエントリを現行形式で再暗号化する。
func (h *EntryHandler) Reseal(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Reseal(r.Context())
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "RESEAL", "", middleware.AuditResultFailure)
		writeServiceError(w, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "RESEAL", "", middleware.AuditResultSuccess)
	unreadable := report.Unreadable
	if unreadable == nil {
		unreadable = []string{}
	}
	httputil.JSON(w, http.StatusOK, ResealResponse{
		Resealed:   report.Resealed,
		Unreadable: unreadable,
	})
}
