package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edvin/outreach/internal/core"
)

func searchRow(kind, id, label, status string) func(dest ...any) error {
	return func(dest ...any) error {
		*(dest[0].(*string)) = kind
		*(dest[1].(*string)) = id
		*(dest[2].(*string)) = label
		*(dest[3].(*string)) = status
		return nil
	}
}

func TestSearch_EmptyQuery(t *testing.T) {
	h := NewSearch(nil)
	rec := httptest.NewRecorder()
	h.Search(rec, newRequest(http.MethodGet, "/search?q=%20", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"results":[]}`, rec.Body.String())
}

func TestSearch_InvalidType(t *testing.T) {
	h := NewSearch(nil)
	rec := httptest.NewRecorder()
	h.Search(rec, newRequest(http.MethodGet, "/search?q=vip&type=tenant", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeErrorResponse(rec)["error"], "invalid type")
}

func TestSearch_FiltersByType(t *testing.T) {
	db := &handlerMockDB{}
	// Every catalog query returns one workflow and one target group row.
	for range 5 {
		db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(&handlerMockRows{
			scanFuncs: []func(dest ...any) error{
				searchRow("workflow", "wf-1", "VIP reminder", "active"),
				searchRow("target_group", "tg-1", "VIP customers", "static"),
			},
		}, nil).Once()
	}

	h := NewSearch(core.NewSearchService(db))
	rec := httptest.NewRecorder()
	h.Search(rec, newRequest(http.MethodGet, "/search?q=vip&type=target_group&limit=50", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body searchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Results, 5)
	for _, r := range body.Results {
		assert.Equal(t, "target_group", r.Type)
	}

	// The limit is capped before reaching the store.
	args := db.Calls[0].Arguments.Get(2).([]any)
	assert.Equal(t, maxSearchLimit, args[1])
}
