package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"vault-secret-store/internal/middleware"
)

// NewRouter はルーターを生成する。
func NewRouter(entries *EntryHandler, keys *KeyHandler, serviceName string) http.Handler {
	r := chi.NewRouter()

	// ミドルウェア
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// ルート定義
	r.Route("/v1/entries", func(r chi.Router) {
		r.Post("/", entries.CreateEntry)
		r.Get("/", entries.ListEntries)
		r.Post("/reseal", entries.Reseal)
		r.Get("/{id}", entries.GetEntry)
		r.Put("/{id}", entries.UpdateEntry)
		r.Delete("/{id}", entries.DeleteEntry)
	})
	r.Route("/v1/keys", func(r chi.Router) {
		r.Get("/", keys.ListKeys)
		r.Get("/current", keys.GetCurrentKey)
	})

	return otelhttp.NewHandler(r, serviceName)
}
