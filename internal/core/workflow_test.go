package core

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edvin/outreach/internal/model"
)

func workflowScan(w model.Workflow) func(dest ...any) error {
	return func(dest ...any) error {
		*(dest[0].(*string)) = w.ID
		*(dest[1].(*string)) = w.Name
		*(dest[2].(*string)) = w.Status
		*(dest[3].(**string)) = w.CronExpression
		*(dest[4].(*time.Time)) = w.CreatedAt
		*(dest[5].(*time.Time)) = w.UpdatedAt
		return nil
	}
}

func targetGroupScan(id, query string) func(dest ...any) error {
	return func(dest ...any) error {
		*(dest[0].(*string)) = id
		*(dest[1].(*string)) = "VIP customers"
		*(dest[2].(*string)) = model.TargetTypeDynamic
		*(dest[3].(*string)) = ""
		*(dest[4].(*[]byte)) = []byte(`[]`)
		*(dest[5].(*string)) = query
		*(dest[6].(*[]byte)) = []byte(`["phone","name"]`)
		*(dest[7].(*string)) = "phone"
		*(dest[8].(*[]byte)) = []byte(`["customer_id"]`)
		return nil
	}
}

func sqlHas(fragment string) any {
	return mock.MatchedBy(func(sql string) bool { return strings.Contains(sql, fragment) })
}

func TestWorkflowService_LoadPlan(t *testing.T) {
	db := &mockDB{}
	svc := NewWorkflowService(db)
	ctx := context.Background()

	db.On("QueryRow", ctx, sqlHas("FROM workflows"), []any{"wf-1"}).
		Return(&mockRow{scanFunc: workflowScan(model.Workflow{ID: "wf-1", Name: "Spring sale", Status: model.WorkflowStatusActive})})

	db.On("Query", ctx, sqlHas("FROM workflow_target_groups wtg JOIN target_groups"), []any{"wf-1"}).
		Return(newMockRows(targetGroupScan("tg-1", "SELECT phone, name FROM vip")), nil)

	db.On("Query", ctx, sqlHas("FROM workflow_templates wt JOIN message_templates"), []any{"wf-1"}).
		Return(newMockRows(func(dest ...any) error {
			*(dest[0].(*string)) = "t-1"
			*(dest[1].(*string)) = "greeting"
			*(dest[2].(*string)) = "Hi #{name}"
			*(dest[5].(*[]byte)) = []byte(`[{"template_variable":"name","source_type":"field","source_field":"name","default_value":"고객님"}]`)
			return nil
		}), nil)

	db.On("Query", ctx, sqlHas("FROM target_template_mappings"), []any{"wf-1"}).
		Return(newMockRows(func(dest ...any) error {
			*(dest[0].(*string)) = "tm-1"
			*(dest[1].(*string)) = "tg-1"
			*(dest[2].(*string)) = "t-1"
			*(dest[3].(*[]byte)) = []byte(`[{"template_variable":"name","target_field":"nickname"}]`)
			return nil
		}), nil)

	plan, err := svc.LoadPlan(ctx, "wf-1")
	require.NoError(t, err)

	assert.Equal(t, "Spring sale", plan.Workflow.Name)
	require.Len(t, plan.TargetGroups, 1)
	assert.Equal(t, []string{"phone", "name"}, plan.TargetGroups[0].ExpectedFields)
	assert.Equal(t, []string{"customer_id"}, plan.TargetGroups[0].MappingColumns)
	require.Len(t, plan.Templates, 1)
	assert.Equal(t, "고객님", plan.Templates[0].Mappings[0].DefaultValue)
	require.NotNil(t, plan.TargetMapping("tg-1", "t-1"))
	assert.Equal(t, "nickname", plan.TargetMapping("tg-1", "t-1").FieldMappings[0].TargetField)
	db.AssertExpectations(t)
}

func TestWorkflowService_LoadPlan_NotFound(t *testing.T) {
	db := &mockDB{}
	svc := NewWorkflowService(db)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(errRow(pgx.ErrNoRows))

	_, err := svc.LoadPlan(ctx, "nope")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestWorkflowService_LoadPlan_BadMappingJSON(t *testing.T) {
	db := &mockDB{}
	svc := NewWorkflowService(db)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanFunc: workflowScan(model.Workflow{ID: "wf-1"})})
	db.On("Query", ctx, sqlHas("target_groups tg"), mock.Anything).Return(newEmptyMockRows(), nil)
	db.On("Query", ctx, sqlHas("message_templates t"), mock.Anything).
		Return(newMockRows(func(dest ...any) error {
			*(dest[0].(*string)) = "t-1"
			*(dest[5].(*[]byte)) = []byte(`{not json`)
			return nil
		}), nil)

	_, err := svc.LoadPlan(ctx, "wf-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode variable mappings of template t-1")
}

func TestWorkflowService_Upsert_RejectsBadCron(t *testing.T) {
	db := &mockDB{}
	svc := NewWorkflowService(db)

	err := svc.Upsert(context.Background(), &model.Workflow{ID: "wf-1", CronExpression: strPtr("every tuesday")})
	var cfgErr *model.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	db.AssertNotCalled(t, "Exec")
}

func TestWorkflowService_SetStatus_NotFound(t *testing.T) {
	db := &mockDB{}
	svc := NewWorkflowService(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), []any{model.WorkflowStatusActive, "wf-x"}).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	err := svc.SetStatus(ctx, "wf-x", model.WorkflowStatusActive)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestWorkflowService_SetCron(t *testing.T) {
	db := &mockDB{}
	svc := NewWorkflowService(db)
	ctx := context.Background()
	expr := "0 9 * * MON"

	db.On("Exec", ctx, mock.AnythingOfType("string"), []any{&expr, "wf-1"}).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	require.NoError(t, svc.SetCron(ctx, "wf-1", &expr))
	db.AssertExpectations(t)
}

func TestWorkflowService_SetCron_InvalidExpression(t *testing.T) {
	db := &mockDB{}
	svc := NewWorkflowService(db)
	expr := "every tuesday"

	err := svc.SetCron(context.Background(), "wf-1", &expr)
	var cfgErr *model.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	db.AssertNotCalled(t, "Exec", mock.Anything, mock.Anything, mock.Anything)
}

func TestWorkflowService_AttachTemplate_EncodesMappings(t *testing.T) {
	db := &mockDB{}
	svc := NewWorkflowService(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), []any{"wf-1", "t-1", []byte(`[]`), 0}).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	require.NoError(t, svc.AttachTemplate(ctx, "wf-1", "t-1", nil, 0))
	db.AssertExpectations(t)
}

func TestWorkflowService_RecordPreviewValues(t *testing.T) {
	db := &mockDB{}
	svc := NewWorkflowService(db)
	ctx := context.Background()

	db.On("Exec", ctx, sqlHas("'actual_value'"), []any{"wf-1", "t-1", []byte(`{"name":"Ada"}`)}).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	require.NoError(t, svc.RecordPreviewValues(ctx, "wf-1", "t-1", map[string]string{"name": "Ada"}))
	db.AssertExpectations(t)
}

func TestWorkflowService_RecordPreviewValues_NothingToRecord(t *testing.T) {
	db := &mockDB{}
	require.NoError(t, NewWorkflowService(db).RecordPreviewValues(context.Background(), "wf-1", "t-1", nil))
	db.AssertNotCalled(t, "Exec", mock.Anything, mock.Anything, mock.Anything)
}

func TestPrefixColumns(t *testing.T) {
	assert.Equal(t, "tg.id, tg.name", prefixColumns("tg", "id, name"))
}
