package handler

import (
	"net/http"

	"pki-ca-service/internal/middleware"
	"pki-ca-service/internal/usecase"
	"pki-ca-service/pkg/httputil"
)

// AuthHandler は利用者登録と署名ログインのHTTPハンドラ。
type AuthHandler struct {
	service *usecase.AuthService
}

// NewAuthHandler は新しいAuthHandlerを生成する。
func NewAuthHandler(service *usecase.AuthService) *AuthHandler {
	return &AuthHandler{service: service}
}

// RegisterRequest は利用者登録のリクエスト形式。
type RegisterRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	PublicKey string `json:"public_key"`
}

// ChallengeRequest はログインチャレンジ発行のリクエスト形式。
type ChallengeRequest struct {
	Username string `json:"username"`
}

// LoginRequest は署名ログインのリクエスト形式。
type LoginRequest struct {
	Username  string `json:"username"`
	Signature string `json:"signature"`
}

// Register は利用者を登録する。
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var body RegisterRequest
	if err := httputil.DecodeJSON(r, &body); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	user, err := h.service.Register(r.Context(), body.Username, body.Email, body.PublicKey)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "REGISTER_USER", body.Username, body.Username, middleware.ResultFailed)
		writeError(w, r, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "REGISTER_USER", user.Username, user.Username, middleware.ResultSuccess)
	httputil.JSON(w, http.StatusCreated, UserResponse{
		Username:     user.Username,
		Email:        user.Email,
		RegisteredAt: formatTime(user.RegisteredAt),
	})
}

// Challenge はログインチャレンジを発行する。
func (h *AuthHandler) Challenge(w http.ResponseWriter, r *http.Request) {
	var body ChallengeRequest
	if err := httputil.DecodeJSON(r, &body); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	nonce, err := h.service.IssueLoginChallenge(r.Context(), body.Username)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, toChallengeResponse(nonce))
}

// Login はチャレンジへの署名を検証する。
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var body LoginRequest
	if err := httputil.DecodeJSON(r, &body); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	user, err := h.service.VerifyLogin(r.Context(), body.Username, body.Signature)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "LOGIN", body.Username, body.Username, middleware.ResultFailed)
		writeError(w, r, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "LOGIN", user.Username, user.Username, middleware.ResultSuccess)
	httputil.JSON(w, http.StatusOK, UserResponse{
		Username: user.Username,
		Email:    user.Email,
	})
}
