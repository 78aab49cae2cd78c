package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/qiupay/gateway/internal/apperrors"
	"github.com/qiupay/gateway/internal/storage"
)

// handleListFailedWebhooks serves GET /admin/webhooks?limit=100, the
// operator-facing view onto notify attempts that exhausted their retry
// schedule without the merchant ever returning "success".
func (h *handlers) handleListFailedWebhooks(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 1000 {
			writeError(w, apperrors.New(apperrors.CodeInvalidField, "limit must be between 1 and 1000"))
			return
		}
		limit = parsed
	}

	webhooks, err := h.dlq.ListFailedWebhooks(r.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("httpapi: list failed webhooks failed")
		writeError(w, apperrors.New(apperrors.CodeInternal, "internal error"))
		return
	}

	writeOK(w, map[string]interface{}{
		"webhooks": webhooks,
		"count":    len(webhooks),
	})
}

// handleRenotify serves POST /admin/orders/{trade_no}/renotify: a single
// immediate notify attempt on any order carrying a notify_url, whether it
// is still PENDING or already PAID; other statuses are rejected.
func (h *handlers) handleRenotify(w http.ResponseWriter, r *http.Request) {
	tradeNo := chi.URLParam(r, "trade_no")
	if tradeNo == "" {
		writeError(w, apperrors.New(apperrors.CodeMissingField, "trade_no is required"))
		return
	}

	if err := h.callback.ManualRenotify(r.Context(), tradeNo); err != nil {
		if err == storage.ErrNotFound {
			writeError(w, apperrors.New(apperrors.CodeOrderNotFound, "order not found"))
			return
		}
		writeError(w, err)
		return
	}

	writeOK(w, map[string]interface{}{
		"trade_no": tradeNo,
	})
}
