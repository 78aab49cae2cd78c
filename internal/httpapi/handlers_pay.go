package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/qiupay/gateway/internal/apperrors"
	"github.com/qiupay/gateway/internal/money"
	"github.com/qiupay/gateway/internal/orders"
	"github.com/qiupay/gateway/internal/signing"
	"github.com/qiupay/gateway/internal/storage"
)

var requiredCreateFields = []string{"pid", "out_trade_no", "type", "name", "money", "sign"}

// handleCreate implements POST /pay/create: validates the form body and
// signature, delegates to the order engine, and starts the poller on
// success. The sign field covers every other non-empty field per
// signing.Sign/Verify's canonical ordering, so it must be computed over the
// full params map, not just the required subset.
func (h *handlers) handleCreate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, apperrors.New(apperrors.CodeInvalidField, "invalid form body"))
		return
	}

	params := map[string]string{
		"pid":          r.PostFormValue("pid"),
		"type":         r.PostFormValue("type"),
		"out_trade_no": r.PostFormValue("out_trade_no"),
		"name":         r.PostFormValue("name"),
		"money":        r.PostFormValue("money"),
		"notify_url":   r.PostFormValue("notify_url"),
		"return_url":   r.PostFormValue("return_url"),
		"clientip":     r.PostFormValue("clientip"),
		"device":       r.PostFormValue("device"),
		"param":        r.PostFormValue("param"),
		"channel_id":   r.PostFormValue("channel_id"),
		"sign_type":    r.PostFormValue("sign_type"),
	}
	sign := r.PostFormValue("sign")

	for _, field := range requiredCreateFields {
		if field == "sign" {
			if sign == "" {
				writeError(w, apperrors.Newf(apperrors.CodeMissingField, "missing required field %q", field))
				return
			}
			continue
		}
		if params[field] == "" {
			writeError(w, apperrors.Newf(apperrors.CodeMissingField, "missing required field %q", field))
			return
		}
	}

	merchant, err := h.store.GetMerchantByUsername(r.Context(), params["pid"])
	if err == storage.ErrNotFound {
		writeError(w, orders.ErrMerchantMissing)
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("httpapi: lookup merchant for create failed")
		writeError(w, apperrors.New(apperrors.CodeInternal, "internal error"))
		return
	}
	if !merchant.Active {
		writeError(w, orders.ErrMerchantInactive)
		return
	}

	if !signing.Verify(params, merchant.Key, sign) {
		writeError(w, apperrors.New(apperrors.CodeBadSignature, "invalid signature"))
		return
	}

	result, err := h.orders.CreateOrder(r.Context(), orders.CreateParams{
		MerchantID: merchant.ID,
		OutTradeNo: params["out_trade_no"],
		Money:      params["money"],
		Type:       params["type"],
		Name:       params["name"],
		NotifyURL:  params["notify_url"],
		ReturnURL:  params["return_url"],
		Param:      params["param"],
	})
	if err != nil {
		var aerr *apperrors.Error
		reason := "unknown"
		if errors.As(err, &aerr) {
			reason = string(aerr.Code)
		}
		h.metrics.ObserveOrderRejected(reason)
		writeError(w, err)
		return
	}

	h.pollerStarter.Start(h.appCtx, result.Order.TradeNo)

	writeOK(w, map[string]interface{}{
		"trade_no": result.Order.TradeNo,
		"qrcode":   result.QRCodeURL,
		"money":    money.New(money.CNY, result.Order.Money).ToMajor(),
	})
}

// handleQuery implements GET /pay/query, dispatching on act=order|query.
// The merchant secret is validated in plaintext here, not signed — this is
// a lookup endpoint, not a state mutation, matching the upstream reference
// behavior this endpoint is ported from.
func (h *handlers) handleQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	act := q.Get("act")
	pid := q.Get("pid")
	key := q.Get("key")

	if pid == "" || key == "" {
		writeError(w, apperrors.New(apperrors.CodeMissingField, "pid and key are required"))
		return
	}

	merchant, err := h.store.GetMerchantByUsername(r.Context(), pid)
	if err == storage.ErrNotFound {
		writeError(w, orders.ErrMerchantMissing)
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("httpapi: lookup merchant for query failed")
		writeError(w, apperrors.New(apperrors.CodeInternal, "internal error"))
		return
	}
	if merchant.Key != key {
		writeError(w, apperrors.New(apperrors.CodeBadSignature, "invalid key"))
		return
	}

	switch act {
	case "order":
		h.handleOrderQuery(w, r, merchant)
	case "query":
		h.handleMerchantQuery(w, r, merchant)
	default:
		writeError(w, apperrors.Newf(apperrors.CodeInvalidField, "unsupported act %q", act))
	}
}

func (h *handlers) handleOrderQuery(w http.ResponseWriter, r *http.Request, merchant storage.Merchant) {
	q := r.URL.Query()
	tradeNo := q.Get("trade_no")
	outTradeNo := q.Get("out_trade_no")
	if tradeNo == "" && outTradeNo == "" {
		writeError(w, apperrors.New(apperrors.CodeMissingField, "trade_no or out_trade_no is required"))
		return
	}

	var (
		order storage.Order
		err   error
	)
	if tradeNo != "" {
		order, err = h.store.GetOrderByTradeNo(r.Context(), tradeNo)
	} else {
		order, err = h.store.GetOrderByOutTradeNo(r.Context(), merchant.ID, outTradeNo)
	}
	if err == storage.ErrNotFound || (err == nil && order.MerchantID != merchant.ID) {
		writeError(w, apperrors.New(apperrors.CodeOrderNotFound, "order not found"))
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("httpapi: lookup order for query failed")
		writeError(w, apperrors.New(apperrors.CodeInternal, "internal error"))
		return
	}

	if order.Status == storage.OrderPending {
		if _, cerr := h.checker.CheckPayment(r.Context(), order.TradeNo); cerr != nil {
			h.logger.Warn().Err(cerr).Str("trade_no", order.TradeNo).Msg("httpapi: inline reconciliation check failed")
		} else if refreshed, rerr := h.store.GetOrderByTradeNo(r.Context(), order.TradeNo); rerr == nil {
			order = refreshed
		}
	}

	writeOK(w, map[string]interface{}{
		"trade_no":     order.TradeNo,
		"out_trade_no": order.OutTradeNo,
		"type":         order.Type,
		"pid":          merchant.Username,
		"name":         order.Name,
		"money":        money.New(money.CNY, order.OriginalMoney).ToMajor(),
		"status":       int(order.Status),
		"param":        order.Param,
		"addtime":      order.CreatedAt.Format(time.DateTime),
		"endtime":      formatOptionalTime(order.PaidAt),
	})
}

func (h *handlers) handleMerchantQuery(w http.ResponseWriter, r *http.Request, merchant storage.Merchant) {
	now := time.Now()
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	yesterdayStart := todayStart.AddDate(0, 0, -1)

	total, err := h.store.CountOrdersByMerchant(r.Context(), merchant.ID, time.Time{})
	if err != nil {
		h.logger.Error().Err(err).Msg("httpapi: count orders failed")
		writeError(w, apperrors.New(apperrors.CodeInternal, "internal error"))
		return
	}
	today, err := h.store.CountOrdersByMerchant(r.Context(), merchant.ID, todayStart)
	if err != nil {
		h.logger.Error().Err(err).Msg("httpapi: count orders failed")
		writeError(w, apperrors.New(apperrors.CodeInternal, "internal error"))
		return
	}
	lastday, err := h.store.CountOrdersByMerchant(r.Context(), merchant.ID, yesterdayStart)
	if err != nil {
		h.logger.Error().Err(err).Msg("httpapi: count orders failed")
		writeError(w, apperrors.New(apperrors.CodeInternal, "internal error"))
		return
	}
	lastday -= today

	writeOK(w, map[string]interface{}{
		"pid":           merchant.Username,
		"money":         money.New(money.CNY, merchant.Money).ToMajor(),
		"orders":        total,
		"order_today":   today,
		"order_lastday": lastday,
	})
}

// handleStatus implements GET /pay/status/{trade_no}, a read-only poll
// endpoint for frontends to watch an order's status without triggering
// reconciliation — the background poller, not this handler, owns that.
func (h *handlers) handleStatus(w http.ResponseWriter, r *http.Request) {
	tradeNo := chi.URLParam(r, "trade_no")
	order, err := h.store.GetOrderByTradeNo(r.Context(), tradeNo)
	if err == storage.ErrNotFound {
		writeError(w, apperrors.New(apperrors.CodeOrderNotFound, "order not found"))
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("httpapi: lookup order for status failed")
		writeError(w, apperrors.New(apperrors.CodeInternal, "internal error"))
		return
	}

	writeOK(w, map[string]interface{}{
		"trade_no": order.TradeNo,
		"status":   int(order.Status),
		"money":    money.New(money.CNY, order.OriginalMoney).ToMajor(),
	})
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.DateTime)
}
