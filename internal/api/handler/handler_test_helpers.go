package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	"github.com/go-chi/chi/v5"
)

const validID = "test-id-1"

// newRequest builds a request with body encoded as JSON; a nil body sends
// an empty payload.
func newRequest(method, target string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	return jsonRequest(method, target, &buf)
}

// newRequestRaw sends body verbatim, for malformed JSON cases.
func newRequestRaw(method, target, body string) *http.Request {
	return jsonRequest(method, target, bytes.NewBufferString(body))
}

func jsonRequest(method, target string, body *bytes.Buffer) *http.Request {
	r := httptest.NewRequest(method, target, body)
	r.Header.Set("Content-Type", "application/json")
	return r
}

// withChiURLParam sets a route parameter the way chi's router would.
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// decodeErrorResponse returns the {"error": ...} body of a failed response.
func decodeErrorResponse(rec *httptest.ResponseRecorder) map[string]string {
	var body map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body)
	return body
}
