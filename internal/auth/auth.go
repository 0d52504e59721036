// Package auth 驗證 HS256 JWT 並把身分放進 request context
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/form3tech-oss/jwt-go"

	apperrors "github.com/koopa0/durak/pkg/errors"
)

// ErrInvalidToken 簽章錯誤、演算法不符、過期或缺少 subject
var ErrInvalidToken = apperrors.ErrInvalidToken

// Identity 通過驗證的身分
type Identity struct {
	SubjectID string `json:"subjectId"`
	Username  string `json:"username"`
}

// Claims JWT 內容：sub 與 username
type Claims struct {
	Username string `json:"username"`
	jwt.StandardClaims
}

// Verifier 以共享密鑰簽發與驗證 token
type Verifier struct {
	secret []byte
	ttl    time.Duration
}

// NewVerifier 建立 Verifier；secret 為空時所有 token 都視為無效
func NewVerifier(secret string, ttl time.Duration) *Verifier {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Verifier{secret: []byte(secret), ttl: ttl}
}

// Enabled 是否設定了密鑰
func (v *Verifier) Enabled() bool {
	return len(v.secret) > 0
}

// Verify 驗證 token 並取出身分
func (v *Verifier) Verify(token string) (Identity, error) {
	if !v.Enabled() || token == "" {
		return Identity{}, ErrInvalidToken
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return Identity{}, apperrors.Wrap(err, apperrors.ErrCodeInvalidToken, "invalid or expired token")
	}
	if !parsed.Valid || claims.Subject == "" {
		return Identity{}, ErrInvalidToken
	}

	return Identity{SubjectID: claims.Subject, Username: claims.Username}, nil
}

// Issue 簽發 token（開發與測試用）
func (v *Verifier) Issue(subject, username string) (string, error) {
	if !v.Enabled() {
		return "", fmt.Errorf("jwt secret not configured")
	}
	now := time.Now()
	claims := Claims{
		Username: username,
		StandardClaims: jwt.StandardClaims{
			Subject:   subject,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(v.ttl).Unix(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// BearerToken 取出 Authorization: Bearer <token>，WebSocket 握手時退回 ?token= 參數
func BearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			return strings.TrimSpace(h[7:])
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

type identityKey struct{}

// WithIdentity 把身分放進 context
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext 取出身分
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// Middleware 必須登入的路由
func Middleware(v *Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				writeError(w, apperrors.ErrMissingToken)
				return
			}
			id, err := v.Verify(token)
			if err != nil {
				writeError(w, apperrors.ErrInvalidToken)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

func writeError(w http.ResponseWriter, err *apperrors.AppError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apperrors.HTTPStatus(err.Code))
	_ = json.NewEncoder(w).Encode(map[string]any{"error": err})
}
