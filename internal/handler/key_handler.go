package handler

import (
	"net/http"
	"time"

	"vault-secret-store/internal/domain"
	"vault-secret-store/internal/middleware"
	"vault-secret-store/internal/usecase"
	"vault-secret-store/pkg/httputil"
)

// KeyHandler は鍵メタデータのHTTPハンドラを提供する。鍵の生バイトは返さない。
type KeyHandler struct {
	inventory *usecase.KeyInventory
}

// NewKeyHandler は新しいKeyHandlerを生成する。
func NewKeyHandler(inventory *usecase.KeyInventory) *KeyHandler {
	return &KeyHandler{inventory: inventory}
}

// KeyMetadataResponse は鍵メタデータのレスポンス形式。
type KeyMetadataResponse struct {
	Alias     string `json:"alias"`
	Algorithm string `json:"algorithm"`
	CreatedAt string `json:"created_at"`
}

// KeyListResponse は鍵一覧のレスポンス形式。
type KeyListResponse struct {
	Keys []KeyMetadataResponse `json:"keys"`
}

func newKeyMetadataResponse(h *domain.KeyHandle) KeyMetadataResponse {
	return KeyMetadataResponse{
		Alias:     h.Alias,
		Algorithm: h.Algorithm,
		CreatedAt: h.CreatedAt.Format(time.RFC3339),
	}
}

// GetCurrentKey は使用中の鍵のメタデータを返す。
func (h *KeyHandler) GetCurrentKey(w http.ResponseWriter, r *http.Request) {
	handle, err := h.inventory.CurrentKey(r.Context())
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "GET_CURRENT_KEY", "", middleware.AuditResultFailure)
		writeServiceError(w, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "GET_CURRENT_KEY", handle.Alias, middleware.AuditResultSuccess)
	httputil.JSON(w, http.StatusOK, newKeyMetadataResponse(handle))
}

// ListKeys は鍵一覧を返す。
func (h *KeyHandler) ListKeys(w http.ResponseWriter, r *http.Request) {
	handles, err := h.inventory.ListKeys(r.Context())
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "LIST_KEYS", "", middleware.AuditResultFailure)
		writeServiceError(w, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "LIST_KEYS", "", middleware.AuditResultSuccess)
	response := KeyListResponse{
		Keys: make([]KeyMetadataResponse, len(handles)),
	}
	for i, k := range handles {
		response.Keys[i] = newKeyMetadataResponse(k)
	}
	httputil.JSON(w, http.StatusOK, response)
}
