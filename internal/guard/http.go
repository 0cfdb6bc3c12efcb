package guard

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"warden/internal/signature"
	dErrors "warden/pkg/domain-errors"
	"warden/pkg/platform/httputil"
	"warden/pkg/requestcontext"
)

// Webhook delivery headers. The timestamp is unix seconds.
const (
	HeaderSignature = "X-Signature"
	HeaderTimestamp = "X-Signature-Timestamp"
	maxWebhookBody  = 256 << 10
)

// WebhookHandler is the HTTP ingress for signed webhook deliveries.
type WebhookHandler struct {
	guard  *Guard
	logger *slog.Logger
}

func NewWebhookHandler(g *Guard, logger *slog.Logger) *WebhookHandler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &WebhookHandler{guard: g, logger: logger}
}

// Register mounts POST /webhooks/{source}.
func (h *WebhookHandler) Register(r chi.Router) {
	r.Post("/webhooks/{source}", h.HandleWebhook)
}

// HandleWebhook answers 202 for an accepted delivery, 429 with Retry-After
// when throttled and 401 when the signature is rejected.
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody+1))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "read body"))
		return
	}
	if len(body) > maxWebhookBody {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "body too large"))
		return
	}

	payload := signature.SignedPayload{
		Source:    chi.URLParam(r, "source"),
		RawBody:   body,
		Signature: r.Header.Get(HeaderSignature),
	}
	if unix, err := strconv.ParseInt(r.Header.Get(HeaderTimestamp), 10, 64); err == nil {
		payload.Timestamp = time.Unix(unix, 0)
	}

	verdict, err := h.guard.HandleWebhook(ctx, payload)
	switch {
	case err != nil:
		h.logger.WarnContext(ctx, "webhook rejected",
			"request_id", requestcontext.RequestID(ctx),
			"source", payload.Source,
			"reason", verdict.Reason,
		)
		httputil.WriteError(w, err)
	case !verdict.Allowed:
		httputil.WriteRateLimited(w, verdict.RetryAfter)
	default:
		httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	}
}
