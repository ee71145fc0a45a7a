package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pki-ca-service/internal/domain"
	"pki-ca-service/internal/middleware"
	"pki-ca-service/internal/usecase"
	"pki-ca-service/pkg/httputil"
)

// CertificateHandler は証明書の参照と状態評価のHTTPハンドラ。
type CertificateHandler struct {
	service *usecase.CertificateService
}

// NewCertificateHandler は新しいCertificateHandlerを生成する。
func NewCertificateHandler(service *usecase.CertificateService) *CertificateHandler {
	return &CertificateHandler{service: service}
}

// ListCertificatesResponse は証明書一覧のレスポンス形式。
type ListCertificatesResponse struct {
	Certificates []CertificateResponse `json:"certificates"`
}

// VerifyResponse は有効性確認のレスポンス形式。
type VerifyResponse struct {
	Valid       bool   `json:"valid"`
	Status      string `json:"status"`
	StatusLabel string `json:"status_label"`
	EvaluatedAt string `json:"evaluated_at"`
}

// RevocationListResponse は失効一覧のレスポンス形式。
type RevocationListResponse struct {
	Revoked []RevocationRecordResponse `json:"revoked"`
}

// ListMine は呼び出し元の証明書を状態付きで返す。
func (h *CertificateHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.Identity(r.Context())

	views, err := h.service.ListMine(r.Context(), user)
	if err != nil {
		writeError(w, r, err)
		return
	}

	l := labelerFor(r)
	resp := ListCertificatesResponse{Certificates: make([]CertificateResponse, len(views))}
	for i, view := range views {
		resp.Certificates[i] = toCertificateResponse(l, view, false)
	}
	httputil.JSON(w, http.StatusOK, resp)
}

// Status はシリアル番号で証明書の状態を返す。
func (h *CertificateHandler) Status(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.StatusBySerial(r.Context(), chi.URLParam(r, "serial"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, toCertificateResponse(labelerFor(r), view, false))
}

// Verify は証明書が現在有効かを返す。有効でない場合も 200 で valid=false を返す。
func (h *CertificateHandler) Verify(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Verify(r.Context(), chi.URLParam(r, "serial"))
	if err != nil && !errors.Is(err, domain.ErrCertificateNotValid) {
		writeError(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, VerifyResponse{
		Valid:       err == nil,
		Status:      string(view.Status),
		StatusLabel: labelerFor(r).Label(string(view.Status)),
		EvaluatedAt: formatTime(view.EvaluatedAt),
	})
}

// Download は所有者に証明書をPEMで返す。
func (h *CertificateHandler) Download(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.Identity(r.Context())
	serial := chi.URLParam(r, "serial")

	cert, err := h.service.Download(r.Context(), user, serial)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "DOWNLOAD_CERTIFICATE", user, serial, middleware.ResultFailed)
		writeError(w, r, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "DOWNLOAD_CERTIFICATE", user, serial, middleware.ResultSuccess)
	httputil.PEM(w, cert.SerialNumber+".pem", cert.CertificatePEM)
}

// RevocationList は失効済み証明書の一覧を返す。
func (h *CertificateHandler) RevocationList(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.RevocationList(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := RevocationListResponse{Revoked: make([]RevocationRecordResponse, len(records))}
	for i, rec := range records {
		resp.Revoked[i] = toRecordResponse(rec)
	}
	httputil.JSON(w, http.StatusOK, resp)
}

// CACertificate はCA証明書をPEMで返す。
func (h *CertificateHandler) CACertificate(w http.ResponseWriter, r *http.Request) {
	httputil.PEM(w, "ca.pem", h.service.CACertificatePEM())
}
