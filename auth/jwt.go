package auth

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/golang-jwt/jwt/v5/request"
	"github.com/programme-lv/handin/httpjson"
	"github.com/programme-lv/handin/logger"
	"github.com/programme-lv/handin/srvcerror"
)

// ScopeAdmin grants the operator routes: lifecycle inspection and deletion.
const ScopeAdmin = "admin"

type JwtClaims struct {
	Email  string   `json:"email,omitempty"`
	Scopes []string `json:"scopes,omitempty"`
	jwt.RegisteredClaims
}

func (c *JwtClaims) HasScope(scope string) bool {
	return c != nil && slices.Contains(c.Scopes, scope)
}

type ClaimsKeyType string

var CtxJwtClaimsKey ClaimsKeyType = "jwtClaims"

func GenerateJWT(subject string, email string, scopes []string, jwtKey []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &JwtClaims{
		Email:  email,
		Scopes: scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtKey)
}

func ValidateJWT(tokenStr string, jwtKey []byte) (*JwtClaims, error) {
	claims := &JwtClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return jwtKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil {
		if errors.Is(err, jwt.ErrSignatureInvalid) {
			return nil, errors.New("invalid token signature")
		}
		return nil, err
	}

	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	return claims, nil
}

func ClaimsFromContext(ctx context.Context) *JwtClaims {
	claims, _ := ctx.Value(CtxJwtClaimsKey).(*JwtClaims)
	return claims
}

func ErrUnauthorized() *srvcerror.Error {
	return srvcerror.New("unauthorized", "a valid bearer token is required").
		SetHttpStatusCode(http.StatusUnauthorized)
}

func ErrForbidden(scope string) *srvcerror.Error {
	return srvcerror.New("forbidden", "the "+scope+" scope is required").
		SetHttpStatusCode(http.StatusForbidden)
}

// GetJwtAuthMiddleware validates JWT token and adds the claims to the request context.
// Requests without a token pass through with nil claims.
func GetJwtAuthMiddleware(jwtKey []byte) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		hfn := func(w http.ResponseWriter, r *http.Request) {
			token, err := request.BearerExtractor{}.ExtractToken(r)
			if err != nil {
				if errors.Is(err, request.ErrNoTokenInRequest) {
					ctx := context.WithValue(r.Context(), CtxJwtClaimsKey, (*JwtClaims)(nil))
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
				httpjson.HandleError(logger.FromContext(r.Context()), w, ErrUnauthorized().SetDebug(err))
				return
			}

			claims, err := ValidateJWT(token, jwtKey)
			if err != nil {
				httpjson.HandleError(logger.FromContext(r.Context()), w, ErrUnauthorized().SetDebug(err))
				return
			}

			ctx := context.WithValue(r.Context(), CtxJwtClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		}
		return http.HandlerFunc(hfn)
	}
}

// RequireToken rejects requests without valid claims.
func RequireToken(next http.Handler) http.Handler {
	return RequireScope("")(next)
}

// RequireScope rejects requests whose claims lack scope. An empty scope
// only requires a valid token.
func RequireScope(scope string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			log := logger.FromContext(r.Context())
			if claims == nil {
				httpjson.HandleError(log, w, ErrUnauthorized())
				return
			}
			if scope != "" && !claims.HasScope(scope) {
				httpjson.HandleError(log, w, ErrForbidden(scope))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
