package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/angelmondragon/towndrop-backend/api/responses"
	pkgerrors "github.com/angelmondragon/towndrop-backend/pkg/errors"
	"github.com/angelmondragon/towndrop-backend/pkg/logger"
)

const (
	WebhookSecretHeader = "X-Webhook-Secret"
	webhookSecretQuery  = "secret"
)

// WebhookSecret rejects processor callbacks that do not present the shared
// secret, either as a header or as the secret query parameter. With no secret
// configured every call is rejected.
func WebhookSecret(secret string, logg *logger.Logger) func(http.Handler) http.Handler {
	expected := []byte(strings.TrimSpace(secret))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if len(expected) == 0 {
				if logg != nil {
					logg.Warn(ctx, "webhook.secret_not_configured")
				}
				responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "webhook secret not configured"))
				return
			}

			supplied := strings.TrimSpace(r.Header.Get(WebhookSecretHeader))
			if supplied == "" {
				supplied = strings.TrimSpace(r.URL.Query().Get(webhookSecretQuery))
			}
			if subtle.ConstantTimeCompare([]byte(supplied), expected) != 1 {
				if logg != nil {
					logg.Warn(ctx, "webhook.secret_mismatch")
				}
				responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook secret"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
