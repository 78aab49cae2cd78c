package httpapi

import (
	"errors"
	"net/http"

	"github.com/qiupay/gateway/internal/apperrors"
	"github.com/qiupay/gateway/pkg/responders"
)

// envelope is the merchant-facing response shape: code=1 with the
// operation's own fields on success, code=-1 with msg on failure. Both
// cases are served with HTTP 200 — the code field, not the status line,
// carries the outcome, matching the merchant-facing contract this gateway
// speaks (an Alipay-style epay API, not a REST-status API).
type errorEnvelope struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func writeError(w http.ResponseWriter, err error) {
	var aerr *apperrors.Error
	if errors.As(err, &aerr) {
		responders.JSON(w, http.StatusOK, errorEnvelope{Code: -1, Msg: aerr.Message})
		return
	}
	responders.JSON(w, http.StatusOK, errorEnvelope{Code: -1, Msg: "internal error"})
}

func writeOK(w http.ResponseWriter, payload map[string]interface{}) {
	payload["code"] = 1
	responders.JSON(w, http.StatusOK, payload)
}
