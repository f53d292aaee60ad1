package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/angelmondragon/towndrop-backend/api/responses"
	pkgerrors "github.com/angelmondragon/towndrop-backend/pkg/errors"
	"github.com/angelmondragon/towndrop-backend/pkg/logger"
)

// Recoverer answers a panicking handler with a 500 envelope. The
// http.ErrAbortHandler sentinel is re-raised so net/http drops the
// connection as the handler intended.
func Recoverer(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				switch rec := recover(); {
				case rec == nil:
				case rec == http.ErrAbortHandler:
					panic(rec)
				default:
					err := panicError(rec)
					ctx := logg.WithFields(r.Context(), map[string]any{
						"method":     r.Method,
						"path":       r.URL.Path,
						"panic_type": fmt.Sprintf("%T", rec),
					})
					logg.Error(ctx, "http.panic_recovered", err)
					responses.WriteError(ctx, nil, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "panic"))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func panicError(rec any) error {
	if err, ok := rec.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return errors.New("panic: " + fmt.Sprint(rec))
}
