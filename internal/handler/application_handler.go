package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"pki-ca-service/internal/domain"
	"pki-ca-service/internal/middleware"
	"pki-ca-service/internal/usecase"
	"pki-ca-service/pkg/httputil"
)

// ApplicationHandler は証明書発行申請のHTTPハンドラ。
type ApplicationHandler struct {
	service *usecase.ApplicationService
	certs   *usecase.CertificateService
}

// NewApplicationHandler は新しいApplicationHandlerを生成する。
func NewApplicationHandler(service *usecase.ApplicationService, certs *usecase.CertificateService) *ApplicationHandler {
	return &ApplicationHandler{service: service, certs: certs}
}

// SubmitApplicationRequest は発行申請のリクエスト形式。
type SubmitApplicationRequest struct {
	CSR       string `json:"csr"`
	Signature string `json:"signature"`
}

// RejectRequest は却下のリクエスト形式。
type RejectRequest struct {
	Reason string `json:"reason"`
}

// ListApplicationsResponse は申請一覧のレスポンス形式。
type ListApplicationsResponse struct {
	Applications []ApplicationResponse `json:"applications"`
}

// Challenge は呼び出し元にCSR鍵所持証明用のチャレンジを発行する。
func (h *ApplicationHandler) Challenge(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.Identity(r.Context())

	nonce, err := h.service.IssueCSRChallenge(r.Context(), user)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, toChallengeResponse(nonce))
}

// Submit はCSRとチャレンジ署名で発行申請を提出する。
func (h *ApplicationHandler) Submit(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.Identity(r.Context())

	var body SubmitApplicationRequest
	if err := httputil.DecodeJSON(r, &body); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	req, err := h.service.Submit(r.Context(), user, body.CSR, body.Signature)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "SUBMIT_APPLICATION", user, "", middleware.ResultFailed)
		writeError(w, r, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "SUBMIT_APPLICATION", user, req.ID, middleware.ResultSuccess)
	httputil.JSON(w, http.StatusCreated, toApplicationResponse(labelerFor(r), req))
}

// List は申請一覧を返す。status 指定がなければ呼び出し元の申請を返す。
func (h *ApplicationHandler) List(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.Identity(r.Context())

	var (
		reqs []*domain.ApplicationRequest
		err  error
	)
	if s := r.URL.Query().Get("status"); s != "" {
		status := domain.RequestStatus(s)
		if !status.Valid() {
			writeBadRequest(w, "unknown status: "+s)
			return
		}
		reqs, err = h.service.ListByStatus(r.Context(), status)
	} else {
		reqs, err = h.service.ListByRequestor(r.Context(), user)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	l := labelerFor(r)
	resp := ListApplicationsResponse{Applications: make([]ApplicationResponse, len(reqs))}
	for i, req := range reqs {
		resp.Applications[i] = toApplicationResponse(l, req)
	}
	httputil.JSON(w, http.StatusOK, resp)
}

// Get は申請を1件返す。
func (h *ApplicationHandler) Get(w http.ResponseWriter, r *http.Request) {
	req, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, toApplicationResponse(labelerFor(r), req))
}

// Approve は申請を承認し、発行した証明書を返す。
func (h *ApplicationHandler) Approve(w http.ResponseWriter, r *http.Request) {
	approver, _ := middleware.Identity(r.Context())
	id := chi.URLParam(r, "id")

	cert, err := h.service.Approve(r.Context(), id, approver)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "APPROVE_APPLICATION", approver, id, middleware.ResultFailed)
		writeError(w, r, err)
		return
	}
	middleware.WriteAuditLog(r.Context(), "APPROVE_APPLICATION", approver, id, middleware.ResultSuccess)

	view, err := h.certs.Evaluate(r.Context(), cert)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusCreated, toCertificateResponse(labelerFor(r), view, true))
}

// Reject は申請を却下する。
func (h *ApplicationHandler) Reject(w http.ResponseWriter, r *http.Request) {
	approver, _ := middleware.Identity(r.Context())
	id := chi.URLParam(r, "id")

	var body RejectRequest
	if r.ContentLength != 0 {
		if err := httputil.DecodeJSON(r, &body); err != nil {
			writeBadRequest(w, err.Error())
			return
		}
	}

	req, err := h.service.Reject(r.Context(), id, approver, body.Reason)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "REJECT_APPLICATION", approver, id, middleware.ResultFailed)
		writeError(w, r, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "REJECT_APPLICATION", approver, id, middleware.ResultSuccess)
	httputil.JSON(w, http.StatusOK, toApplicationResponse(labelerFor(r), req))
}
