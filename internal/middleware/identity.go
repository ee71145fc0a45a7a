package middleware

import (
	"context"
	"net/http"
	"strings"

	"pki-ca-service/pkg/httputil"
)

// IdentityHeader は前段の認証プロキシが設定する利用者名のヘッダ。
const IdentityHeader = "X-User"

type identityKey struct{}

// WithIdentity は利用者名をコンテキストに設定する。
func WithIdentity(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, identityKey{}, username)
}

// Identity はコンテキストの利用者名を返す。
func Identity(ctx context.Context) (string, bool) {
	username, ok := ctx.Value(identityKey{}).(string)
	return username, ok && username != ""
}

// RequireIdentity は IdentityHeader を必須とし、値をコンテキストに設定する。
// ロールによる認可は行わない。
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username := strings.TrimSpace(r.Header.Get(IdentityHeader))
		if username == "" {
			httputil.Error(w, http.StatusUnauthorized, "UNAUTHENTICATED", "missing "+IdentityHeader+" header")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), username)))
	})
}
