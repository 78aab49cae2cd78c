package callbacks

import (
	"fmt"
	"net/url"

	"github.com/qiupay/gateway/internal/money"
	"github.com/qiupay/gateway/internal/signing"
	"github.com/qiupay/gateway/internal/storage"
)

var cny = money.MustGetAsset("CNY")

// buildNotifyParams assembles the unsigned notify payload per the
// merchant-facing notify/return contract: pid, trade_no, out_trade_no,
// type, name, money (2-decimal-place string), a fixed trade_status, param,
// and sign_type.
func buildNotifyParams(order storage.Order, merchant storage.Merchant) map[string]string {
	return map[string]string{
		"pid":          merchant.Username,
		"trade_no":     order.TradeNo,
		"out_trade_no": order.OutTradeNo,
		"type":         order.Type,
		"name":         order.Name,
		"money":        money.New(cny, order.Money).ToMajor(),
		"trade_status": "TRADE_SUCCESS",
		"param":        order.Param,
		"sign_type":    "MD5",
	}
}

// signedNotifyParams builds and signs the notify payload, returning the
// full parameter set including "sign".
func signedNotifyParams(order storage.Order, merchant storage.Merchant) map[string]string {
	params := buildNotifyParams(order, merchant)
	params["sign"] = signing.Sign(params, merchant.Key)
	return params
}

// mergeReturnURL appends the signed notify params as query parameters on
// merchant.ReturnURL, preserving any pre-existing query components;
// notify params override on key collision.
func mergeReturnURL(returnURL string, order storage.Order, merchant storage.Merchant) (string, error) {
	parsed, err := url.Parse(returnURL)
	if err != nil {
		return "", fmt.Errorf("callbacks: parse return_url: %w", err)
	}

	existing := parsed.Query()
	signed := signedNotifyParams(order, merchant)

	merged := url.Values{}
	for k, vs := range existing {
		if len(vs) > 0 {
			merged.Set(k, vs[0])
		}
	}
	for k, v := range signed {
		merged.Set(k, v)
	}

	parsed.RawQuery = merged.Encode()
	return parsed.String(), nil
}
