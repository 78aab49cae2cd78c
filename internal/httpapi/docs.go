package httpapi

import (
	"encoding/json"
	"net/http"

	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/qiupay/gateway/pkg/responders"
)

// docsHandler serves the Swagger UI, pointed at the static spec returned by
// handleOpenAPISpec rather than a generated swag.Spec — the gateway's
// surface is small and stable enough that hand-writing the document once
// is cheaper than wiring swag's code-generation step.
func docsHandler(prefix string) http.HandlerFunc {
	return httpSwagger.Handler(httpSwagger.URL(prefix + "/openapi.json"))
}

func (h *handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	responders.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) handleOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(openAPISpec)
}

// openAPISpec is a hand-maintained OpenAPI 3 document describing the
// merchant-facing payment surface (create, query and status). It is kept
// deliberately small: the health, metrics and admin endpoints are
// operational surfaces, not part of the public contract merchants
// integrate against.
var openAPISpec = map[string]interface{}{
	"openapi": "3.0.3",
	"info": map[string]interface{}{
		"title":   "Gateway Payment API",
		"version": "1.0",
	},
	"paths": map[string]interface{}{
		"/pay/create": map[string]interface{}{
			"post": map[string]interface{}{
				"summary": "Create a payment order",
				"requestBody": map[string]interface{}{
					"content": map[string]interface{}{
						"application/x-www-form-urlencoded": map[string]interface{}{
							"schema": map[string]interface{}{
								"type": "object",
								"properties": map[string]interface{}{
									"pid":          map[string]string{"type": "string"},
									"type":         map[string]string{"type": "string"},
									"out_trade_no": map[string]string{"type": "string"},
									"name":         map[string]string{"type": "string"},
									"money":        map[string]string{"type": "string"},
									"notify_url":   map[string]string{"type": "string"},
									"return_url":   map[string]string{"type": "string"},
									"param":        map[string]string{"type": "string"},
									"sign":         map[string]string{"type": "string"},
									"sign_type":    map[string]string{"type": "string"},
								},
								"required": []string{"pid", "type", "out_trade_no", "name", "money", "sign"},
							},
						},
					},
				},
				"responses": map[string]interface{}{
					"200": map[string]interface{}{"description": "order created or rejected; see code field"},
				},
			},
		},
		"/pay/query": map[string]interface{}{
			"get": map[string]interface{}{
				"summary": "Query an order (act=order) or a merchant's counters (act=query)",
				"parameters": []map[string]interface{}{
					{"name": "act", "in": "query", "required": true, "schema": map[string]string{"type": "string", "enum": "order,query"}},
					{"name": "pid", "in": "query", "required": true, "schema": map[string]string{"type": "string"}},
					{"name": "key", "in": "query", "required": true, "schema": map[string]string{"type": "string"}},
					{"name": "trade_no", "in": "query", "required": false, "schema": map[string]string{"type": "string"}},
					{"name": "out_trade_no", "in": "query", "required": false, "schema": map[string]string{"type": "string"}},
				},
				"responses": map[string]interface{}{
					"200": map[string]interface{}{"description": "merchant or order snapshot; see code field"},
				},
			},
		},
		"/pay/status/{trade_no}": map[string]interface{}{
			"get": map[string]interface{}{
				"summary": "Poll an order's current status without triggering reconciliation",
				"parameters": []map[string]interface{}{
					{"name": "trade_no", "in": "path", "required": true, "schema": map[string]string{"type": "string"}},
				},
				"responses": map[string]interface{}{
					"200": map[string]interface{}{"description": "order status snapshot"},
				},
			},
		},
	},
}
