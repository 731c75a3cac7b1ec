package middleware

import (
	"net/http"

	"orderpay-be/internal/auth"
	"orderpay-be/internal/logger"
	"orderpay-be/internal/utils"

	"go.uber.org/zap"
)

// RequireRole rejects requests without a valid token carrying role:
// 401 when the token is missing or invalid, 403 when the role is wrong.
func RequireRole(secret []byte, role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := logger.FromCtx(r.Context()).With(zap.String("layer", "middleware"))

			tokenStr := auth.ExtractAccessToken(r)
			if tokenStr == "" {
				utils.WriteJSONError(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := auth.ParseToken(secret, tokenStr)
			if err != nil {
				log.Warn("rejected access token", zap.Error(err))
				utils.WriteJSONError(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			if claims.Role != role {
				log.Warn("insufficient role",
					zap.String("user_id", claims.UserID),
					zap.String("role", claims.Role),
					zap.String("required", role),
				)
				utils.WriteJSONError(w, "forbidden", http.StatusForbidden)
				return
			}

			ctx := utils.SetUserContext(r.Context(), claims.UserID, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
