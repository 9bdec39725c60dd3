package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edvin/outreach/internal/core"
	"github.com/edvin/outreach/internal/model"
	"github.com/edvin/outreach/internal/personalize"
	"github.com/edvin/outreach/internal/resolver"
)

type fakeAudience struct {
	rows  []model.RecipientRow
	err   error
	limit int
}

func (f *fakeAudience) Preview(_ context.Context, _ model.TargetGroup, limit int) ([]model.RecipientRow, error) {
	f.limit = limit
	return f.rows, f.err
}

func newWorkflowHandler(db *handlerMockDB) *Workflow {
	svc := core.NewServices(db, time.UTC)
	return NewWorkflow(svc.Workflows, svc.Scheduler, nil, time.UTC)
}

func TestWorkflowSchedule_InvalidJSON(t *testing.T) {
	h := newWorkflowHandler(nil)
	rec := httptest.NewRecorder()
	r := withChiURLParam(newRequestRaw(http.MethodPost, "/workflows/"+validID+"/schedule", "{bad json"), "id", validID)

	h.Schedule(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeErrorResponse(rec)["error"], "invalid JSON")
}

func TestWorkflowSchedule_MissingTime(t *testing.T) {
	h := newWorkflowHandler(nil)
	rec := httptest.NewRecorder()
	r := withChiURLParam(newRequest(http.MethodPost, "/workflows/"+validID+"/schedule", map[string]any{}), "id", validID)

	h.Schedule(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeErrorResponse(rec)["error"], "validation error")
}

func TestWorkflowSchedule_DraftRejected(t *testing.T) {
	db := &handlerMockDB{}
	h := newWorkflowHandler(db)
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), []any{validID}).Return(&handlerMockRow{scanFunc: func(dest ...any) error {
		*(dest[0].(*string)) = validID
		*(dest[1].(*string)) = "Welcome series"
		*(dest[2].(*string)) = model.WorkflowStatusDraft
		return nil
	}})

	rec := httptest.NewRecorder()
	r := withChiURLParam(newRequest(http.MethodPost, "/workflows/"+validID+"/schedule", map[string]any{
		"scheduled_time": "2024-05-01T09:00:00+09:00",
	}), "id", validID)
	h.Schedule(rec, r)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, decodeErrorResponse(rec)["error"], "draft workflows cannot be scheduled")
}

func TestWorkflowSetCron_InvalidExpression(t *testing.T) {
	h := newWorkflowHandler(nil)
	rec := httptest.NewRecorder()
	r := withChiURLParam(newRequest(http.MethodPut, "/workflows/"+validID+"/cron", map[string]any{
		"cron_expression": "every monday",
	}), "id", validID)

	h.SetCron(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWorkflowSetCron_Clears(t *testing.T) {
	db := &handlerMockDB{}
	h := newWorkflowHandler(db)
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), []any{(*string)(nil), validID}).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	rec := httptest.NewRecorder()
	r := withChiURLParam(newRequest(http.MethodPut, "/workflows/"+validID+"/cron", map[string]any{
		"cron_expression": "",
	}), "id", validID)
	h.SetCron(rec, r)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	db.AssertExpectations(t)
}

func TestWorkflowPause(t *testing.T) {
	db := &handlerMockDB{}
	h := newWorkflowHandler(db)
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), []any{model.WorkflowStatusPaused, validID}).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), []any{model.JobStatusCancelled, validID, model.JobStatusPending}).
		Return(pgconn.NewCommandTag("UPDATE 3"), nil)

	rec := httptest.NewRecorder()
	r := withChiURLParam(newRequest(http.MethodPost, "/workflows/"+validID+"/pause", nil), "id", validID)
	h.Pause(rec, r)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(3), body["cancelled_jobs"])
}

func TestWorkflowPreview_InvalidLimit(t *testing.T) {
	h := newWorkflowHandler(nil)
	rec := httptest.NewRecorder()
	r := withChiURLParam(newRequest(http.MethodPost, "/workflows/"+validID+"/preview?limit=x", nil), "id", validID)

	h.Preview(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPreviewValues_FirstMessagePerTemplate(t *testing.T) {
	msg := func(templateID, contact, name string) personalize.PreviewMessage {
		return personalize.PreviewMessage{
			PersonalizedMessage: model.PersonalizedMessage{TemplateID: templateID, RecipientContact: contact},
			Resolutions:         []resolver.Resolution{{Variable: "name", Value: name}},
		}
	}

	got := previewValues([]personalize.PreviewMessage{
		msg("t-1", "010-1", "Ada"),
		msg("t-1", "010-2", "Brian"),
		msg("t-2", "010-1", "Ada K."),
	})

	assert.Equal(t, map[string]map[string]string{
		"t-1": {"name": "Ada"},
		"t-2": {"name": "Ada K."},
	}, got)
	assert.Empty(t, previewValues(nil))
}

func dynamicGroupRow(id string) *handlerMockRow {
	return &handlerMockRow{scanFunc: func(dest ...any) error {
		*(dest[0].(*string)) = id
		*(dest[1].(*string)) = "VIP customers"
		*(dest[2].(*string)) = model.TargetTypeDynamic
		*(dest[3].(*string)) = ""
		*(dest[4].(*[]byte)) = []byte(`[]`)
		*(dest[5].(*string)) = "SELECT phone, name FROM customers WHERE vip"
		*(dest[6].(*[]byte)) = []byte(`["phone","name"]`)
		*(dest[7].(*string)) = "phone"
		*(dest[8].(*[]byte)) = []byte(`[]`)
		return nil
	}}
}

func TestTargetGroupPreview(t *testing.T) {
	db := &handlerMockDB{}
	aud := &fakeAudience{rows: []model.RecipientRow{
		{Contact: "01000000001", Fields: map[string]any{"name": "Ada"}},
	}}
	h := NewTargetGroup(core.NewTargetGroupService(db), aud)
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), []any{validID}).Return(dynamicGroupRow(validID))

	rec := httptest.NewRecorder()
	r := withChiURLParam(newRequest(http.MethodPost, "/target-groups/"+validID+"/preview?limit=4", nil), "id", validID)
	h.Preview(rec, r)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 4, aud.limit)
	var body struct {
		Rows []model.RecipientRow `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Rows, 1)
	assert.Equal(t, "01000000001", body.Rows[0].Contact)
}

func TestTargetGroupPreview_AudienceFailure(t *testing.T) {
	db := &handlerMockDB{}
	aud := &fakeAudience{err: &model.AudienceResolutionError{TargetGroupID: validID, Err: errors.New("timeout query error")}}
	h := NewTargetGroup(core.NewTargetGroupService(db), aud)
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), []any{validID}).Return(dynamicGroupRow(validID))

	rec := httptest.NewRecorder()
	r := withChiURLParam(newRequest(http.MethodPost, "/target-groups/"+validID+"/preview", nil), "id", validID)
	h.Preview(rec, r)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, 0, aud.limit)
}
