package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"pki-ca-service/internal/middleware"
)

// Handlers はルーターに登録するハンドラの集合。
type Handlers struct {
	Auth         *AuthHandler
	Applications *ApplicationHandler
	Revocations  *RevocationHandler
	Certificates *CertificateHandler
}

// NewRouter はルーターを生成する。
func NewRouter(h Handlers) http.Handler {
	r := chi.NewRouter()

	// ミドルウェア
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/v1", func(r chi.Router) {
		// 認証不要
		r.Post("/users", h.Auth.Register)
		r.Post("/auth/challenge", h.Auth.Challenge)
		r.Post("/auth/login", h.Auth.Login)
		r.Get("/crl", h.Certificates.RevocationList)
		r.Get("/ca/certificate", h.Certificates.CACertificate)
		r.Get("/certificates/{serial}/status", h.Certificates.Status)
		r.Get("/certificates/{serial}/verify", h.Certificates.Verify)

		// 利用者名が必要
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireIdentity)

			r.Route("/applications", func(r chi.Router) {
				r.Post("/challenge", h.Applications.Challenge)
				r.Post("/", h.Applications.Submit)
				r.Get("/", h.Applications.List)
				r.Get("/{id}", h.Applications.Get)
				r.Post("/{id}/approve", h.Applications.Approve)
				r.Post("/{id}/reject", h.Applications.Reject)
			})

			r.Route("/revocations", func(r chi.Router) {
				r.Post("/", h.Revocations.Submit)
				r.Get("/", h.Revocations.List)
				r.Get("/{id}", h.Revocations.Get)
				r.Post("/{id}/approve", h.Revocations.Approve)
				r.Post("/{id}/reject", h.Revocations.Reject)
			})

			r.Get("/certificates", h.Certificates.ListMine)
			r.Get("/certificates/{serial}/download", h.Certificates.Download)
		})
	})

	return r
}
