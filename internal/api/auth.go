package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dharsanguruparan/VineLedger/internal/model"
)

type contextKey string

const accountCtxKey contextKey = "account"

// Claims carries the account resolved by the session layer.
type Claims struct {
	AccountID string `json:"account_id"`
	Tier      string `json:"tier,omitempty"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 bearer token for an account.
func IssueToken(secret []byte, accountID, tier string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		AccountID: accountID,
		Tier:      tier,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString(secret)
}

// AuthMiddleware resolves the bearer token into a model.Account.
func AuthMiddleware(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			parts := strings.Fields(authHeader)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				respondError(w, http.StatusUnauthorized, "invalid token format")
				return
			}

			var claims Claims
			token, err := jwt.ParseWithClaims(parts[1], &claims, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, errors.New("unexpected signing method")
				}
				return secret, nil
			})
			if err != nil || !token.Valid {
				respondError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}
			if claims.AccountID == "" {
				respondError(w, http.StatusUnauthorized, "account_id not found in token")
				return
			}

			account := model.Account{ID: claims.AccountID, Tier: claims.Tier}
			ctx := context.WithValue(r.Context(), accountCtxKey, account)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AccountFromContext returns the account set by AuthMiddleware.
func AccountFromContext(ctx context.Context) (model.Account, bool) {
	account, ok := ctx.Value(accountCtxKey).(model.Account)
	return account, ok
}
