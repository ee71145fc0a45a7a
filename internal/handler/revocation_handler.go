package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"pki-ca-service/internal/domain"
	"pki-ca-service/internal/middleware"
	"pki-ca-service/internal/usecase"
	"pki-ca-service/pkg/httputil"
)

// RevocationHandler は証明書失効申請のHTTPハンドラ。
type RevocationHandler struct {
	service *usecase.RevocationService
}

// NewRevocationHandler は新しいRevocationHandlerを生成する。
func NewRevocationHandler(service *usecase.RevocationService) *RevocationHandler {
	return &RevocationHandler{service: service}
}

// SubmitRevocationRequest は失効申請のリクエスト形式。
type SubmitRevocationRequest struct {
	SerialNumber string `json:"serial_number"`
	Reason       string `json:"reason"`
}

// ListRevocationsResponse は失効申請一覧のレスポンス形式。
type ListRevocationsResponse struct {
	Revocations []RevocationResponse `json:"revocations"`
}

// Submit は自身の証明書の失効を申請する。
func (h *RevocationHandler) Submit(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.Identity(r.Context())

	var body SubmitRevocationRequest
	if err := httputil.DecodeJSON(r, &body); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	req, err := h.service.Submit(r.Context(), user, body.SerialNumber, body.Reason)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "SUBMIT_REVOCATION", user, body.SerialNumber, middleware.ResultFailed)
		writeError(w, r, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "SUBMIT_REVOCATION", user, body.SerialNumber, middleware.ResultSuccess)
	httputil.JSON(w, http.StatusCreated, toRevocationResponse(labelerFor(r), req))
}

// List は指定状態の失効申請を返す。既定は PENDING。
func (h *RevocationHandler) List(w http.ResponseWriter, r *http.Request) {
	status := domain.RequestStatusPending
	if s := r.URL.Query().Get("status"); s != "" {
		status = domain.RequestStatus(s)
		if !status.Valid() {
			writeBadRequest(w, "unknown status: "+s)
			return
		}
	}

	reqs, err := h.service.ListByStatus(r.Context(), status)
	if err != nil {
		writeError(w, r, err)
		return
	}

	l := labelerFor(r)
	resp := ListRevocationsResponse{Revocations: make([]RevocationResponse, len(reqs))}
	for i, req := range reqs {
		resp.Revocations[i] = toRevocationResponse(l, req)
	}
	httputil.JSON(w, http.StatusOK, resp)
}

// Get は失効申請を1件返す。
func (h *RevocationHandler) Get(w http.ResponseWriter, r *http.Request) {
	req, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, toRevocationResponse(labelerFor(r), req))
}

// Approve は失効申請を承認し、失効記録を返す。
func (h *RevocationHandler) Approve(w http.ResponseWriter, r *http.Request) {
	approver, _ := middleware.Identity(r.Context())
	id := chi.URLParam(r, "id")

	rec, err := h.service.Approve(r.Context(), id, approver)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "APPROVE_REVOCATION", approver, id, middleware.ResultFailed)
		writeError(w, r, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "APPROVE_REVOCATION", approver, id, middleware.ResultSuccess)
	httputil.JSON(w, http.StatusCreated, toRecordResponse(rec))
}

// Reject は失効申請を却下する。
func (h *RevocationHandler) Reject(w http.ResponseWriter, r *http.Request) {
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
		middleware.WriteAuditLog(r.Context(), "REJECT_REVOCATION", approver, id, middleware.ResultFailed)
		writeError(w, r, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "REJECT_REVOCATION", approver, id, middleware.ResultSuccess)
	httputil.JSON(w, http.StatusOK, toRevocationResponse(labelerFor(r), req))
}
