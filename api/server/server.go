package server

import (
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vaultbox/vaultbox/api/controller"
)

// Router assemble the upload api router.
func Router(upload *controller.UploadController) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/api/upload", func(r chi.Router) {
		r.Post("/", upload.DirectUpload)
		r.Post("/init", upload.InitUpload)
		r.Post("/chunks", upload.UploadChunk)
		r.Post("/finalize", upload.FinalizeUpload)
		r.Post("/cancel", upload.CancelUpload)
		r.Get("/status/{sessionID}", upload.GetUploadStatus)
		r.Options("/", upload.HandleOptions)
		r.Options("/*", upload.HandleOptions)
	})
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// ListenAndServe serve the router on addr.
func ListenAndServe(addr string, handler http.Handler) error {
	return http.ListenAndServe(addr, handler)
}
