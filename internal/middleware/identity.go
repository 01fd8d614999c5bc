package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/healthwise/companion/internal/config"
	"github.com/healthwise/companion/pkg/utils"
)

type contextKey string

const contextUserID contextKey = "userID"

// AnonymousUser 未启用鉴权且未携带 X-User-ID 时使用的用户。
const AnonymousUser = "anonymous"

// ErrInvalidToken token 缺失或校验失败。
var ErrInvalidToken = errors.New("invalid token")

// UserID 返回请求上下文中的用户 ID。
func UserID(ctx context.Context) string {
	if id, ok := ctx.Value(contextUserID).(string); ok && id != "" {
		return id
	}
	return AnonymousUser
}

// WithUserID 把用户 ID 写入上下文。
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, contextUserID, userID)
}

// Verifier 校验 HS256 签名的访问令牌，subject 即用户 ID。
type Verifier struct {
	secret []byte
	issuer string
}

func NewVerifier(cfg config.AuthConfig) *Verifier {
	if cfg.JWTSecret == "" {
		return nil
	}
	return &Verifier{secret: []byte(cfg.JWTSecret), issuer: cfg.Issuer}
}

func (v *Verifier) Verify(token string) (string, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.NewParser(opts...).ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// Issue 签发访问令牌，供命令行工具与测试使用。
func (v *Verifier) Issue(userID string, claims jwt.RegisteredClaims) (string, error) {
	claims.Subject = userID
	if claims.Issuer == "" {
		claims.Issuer = v.issuer
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// Identity 解析请求的用户身份。verifier 为 nil 时信任 X-User-ID 头。
func Identity(verifier *Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if verifier == nil {
				userID := strings.TrimSpace(r.Header.Get("X-User-ID"))
				if userID == "" {
					userID = AnonymousUser
				}
				next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
				return
			}

			token := bearerToken(r)
			if token == "" {
				utils.RespondError(w, r, http.StatusUnauthorized, "missing access token")
				return
			}
			userID, err := verifier.Verify(token)
			if err != nil {
				utils.RespondError(w, r, http.StatusUnauthorized, "invalid access token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// bearerToken 读取 Authorization 头；浏览器 websocket 无法设置头，允许 access_token 查询参数。
func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return strings.TrimSpace(r.URL.Query().Get("access_token"))
}
