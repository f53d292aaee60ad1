package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/angelmondragon/towndrop-backend/api/responses"
	momowebhook "github.com/angelmondragon/towndrop-backend/internal/webhooks/momo"
	pkgerrors "github.com/angelmondragon/towndrop-backend/pkg/errors"
	"github.com/angelmondragon/towndrop-backend/pkg/logger"
)

const maxWebhookBodyBytes = 1 << 20

type MomoWebhookService interface {
	Reconcile(ctx context.Context, payload []byte) (*momowebhook.Result, error)
}

// MomoWebhook applies a processor callback to the goods payment it names.
// The shared secret is checked by middleware before this handler runs.
func MomoWebhook(svc MomoWebhookService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		result, err := svc.Reconcile(ctx, payload)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}
