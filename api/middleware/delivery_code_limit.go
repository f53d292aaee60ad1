package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/angelmondragon/towndrop-backend/api/responses"
	pkgerrors "github.com/angelmondragon/towndrop-backend/pkg/errors"
	"github.com/angelmondragon/towndrop-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/towndrop-backend/pkg/redis"
)

// AttemptLimiter is implemented by the redis client.
type AttemptLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
	ResetWindow(ctx context.Context, scope string) error
}

// CodeAttemptPolicy bounds delivery-code guesses per order.
type CodeAttemptPolicy struct {
	Limit  int
	Window time.Duration
}

func (p CodeAttemptPolicy) enabled() bool {
	return p.Limit > 0 && p.Window > 0
}

// DeliveryCodeRateLimit counts completion attempts per order in a fixed
// window. A successful completion clears the counter.
func DeliveryCodeRateLimit(policy CodeAttemptPolicy, store AttemptLimiter, param string, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			orderID := strings.TrimSpace(chi.URLParam(r, param))
			if orderID == "" {
				next.ServeHTTP(w, r)
				return
			}

			scope := pkgredis.DeliveryCodeAttemptScope(orderID)
			allowed, count, err := store.FixedWindowAllow(ctx, scope, int64(policy.Limit), policy.Window)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
				return
			}
			if !allowed {
				if logg != nil {
					logCtx := logg.WithFields(ctx, map[string]any{
						"order_id":       orderID,
						"attempts":       count,
						"limit":          policy.Limit,
						"window_seconds": int(policy.Window.Seconds()),
					})
					logg.Warn(logCtx, "delivery_code.rate_limit.blocked")
				}
				w.Header().Set("Retry-After", retryAfterSeconds(policy.Window))
				responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many delivery code attempts"))
				return
			}

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			if status := ww.Status(); status >= 200 && status < 300 {
				if err := store.ResetWindow(ctx, scope); err != nil {
					logg.Error(ctx, "delivery_code.rate_limit.reset_failed", err)
				}
			}
		})
	}
}

func retryAfterSeconds(window time.Duration) string {
	return strconv.Itoa(int(window.Seconds()))
}
