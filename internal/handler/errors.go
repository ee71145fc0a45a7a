// Package handler はHTTPハンドラを提供する。
package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"pki-ca-service/internal/domain"
	"pki-ca-service/pkg/httputil"
)

// errorMapping はドメインエラーとHTTPステータス・エラーコードの対応。上から順に評価する。
var errorMapping = []struct {
	err    error
	status int
	code   string
}{
	{domain.ErrChallengeNotFound, http.StatusBadRequest, "CHALLENGE_NOT_FOUND"},
	{domain.ErrChallengeExpired, http.StatusBadRequest, "CHALLENGE_EXPIRED"},
	{domain.ErrKeyFormat, http.StatusBadRequest, "INVALID_PUBLIC_KEY"},
	{domain.ErrSignatureFormat, http.StatusBadRequest, "INVALID_SIGNATURE"},
	{domain.ErrPopVerification, http.StatusBadRequest, "POP_VERIFICATION_FAILED"},
	{domain.ErrCsrFormat, http.StatusBadRequest, "INVALID_CSR"},
	{domain.ErrInvalidUsername, http.StatusBadRequest, "INVALID_USERNAME"},
	{domain.ErrInvalidReason, http.StatusBadRequest, "INVALID_REASON"},
	{domain.ErrLoginVerification, http.StatusUnauthorized, "LOGIN_FAILED"},
	{domain.ErrNotCertificateOwner, http.StatusForbidden, "NOT_CERTIFICATE_OWNER"},
	{domain.ErrUserNotFound, http.StatusNotFound, "USER_NOT_FOUND"},
	{domain.ErrRequestNotFound, http.StatusNotFound, "REQUEST_NOT_FOUND"},
	{domain.ErrCertificateNotFound, http.StatusNotFound, "CERTIFICATE_NOT_FOUND"},
	{domain.ErrUserAlreadyExists, http.StatusConflict, "USER_ALREADY_EXISTS"},
	{domain.ErrCertificateNotValid, http.StatusConflict, "CERTIFICATE_NOT_VALID"},
	{domain.ErrInvalidStateTransition, http.StatusConflict, "INVALID_STATE_TRANSITION"},
	{domain.ErrDuplicateSerial, http.StatusConflict, "DUPLICATE_SERIAL"},
	{domain.ErrIssuance, http.StatusInternalServerError, "ISSUANCE_FAILED"},
}

// writeError はエラーを対応するHTTPレスポンスに変換する。未知のエラーは詳細を返さない。
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range errorMapping {
		if errors.Is(err, m.err) {
			httputil.Error(w, m.status, m.code, err.Error())
			return
		}
	}
	slog.ErrorContext(r.Context(), "unhandled error",
		"method", r.Method,
		"path", r.URL.Path,
		"error", err,
	)
	httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
}

func writeBadRequest(w http.ResponseWriter, message string) {
	httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", message)
}
