package audience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/outreach/internal/model"
	"github.com/edvin/outreach/internal/query"
)

// tableExecutor streams a fixed result set and records the statement it ran.
type tableExecutor struct {
	columns   []string
	rows      [][]any
	err       error
	statement string
	args      []any
}

func (e *tableExecutor) Execute(context.Context, string, ...any) (*query.Result, error) {
	return nil, errors.New("not implemented")
}

func (e *tableExecutor) Stream(_ context.Context, statement string, args []any, onColumns query.ColumnsFunc, fn query.RowFunc) error {
	e.statement, e.args = statement, args
	if e.err != nil {
		return e.err
	}
	if onColumns != nil {
		if err := onColumns(e.columns); err != nil {
			return err
		}
	}
	values := make([]any, len(e.columns))
	for _, r := range e.rows {
		copy(values, r)
		if err := fn(e.columns, values); err != nil {
			if errors.Is(err, query.ErrStop) {
				return nil
			}
			return err
		}
	}
	return nil
}

func (e *tableExecutor) Style() query.BindStyle { return query.BindDollar }

func customers() *tableExecutor {
	return &tableExecutor{
		columns: []string{"phone", "name", "grade"},
		rows: [][]any{
			{"01000000001", "Ada", "gold"},
			{"01000000002", "Brian", "silver"},
			{nil, "Ghost", "gold"},
			{"01000000003", "Chen", "gold"},
			{"01000000004", "Dana", "bronze"},
			{"01000000005", "Emil", "gold"},
			{"01000000006", "Fay", "silver"},
		},
	}
}

func dynamicGroup() model.TargetGroup {
	return model.TargetGroup{
		ID:            "tg-1",
		Type:          model.TargetTypeDynamic,
		Query:         "SELECT phone, name, grade FROM customers ORDER BY phone",
		ContactColumn: "phone",
	}
}

func TestStream_Dynamic(t *testing.T) {
	exec := customers()
	p := NewProvider(exec, zerolog.Nop())

	var got []model.RecipientRow
	n, err := p.Stream(context.Background(), dynamicGroup(), func(row model.RecipientRow) error {
		got = append(got, row)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, 6, n)
	assert.Len(t, got, 6)
	assert.Equal(t, "SELECT phone, name, grade FROM customers ORDER BY phone", exec.statement)
	assert.Nil(t, exec.args)
	assert.Equal(t, "01000000001", got[0].Contact)
	assert.Equal(t, "Ada", got[0].Fields["name"])
	// Rows must not alias the executor's reused value buffer.
	assert.Equal(t, "Fay", got[5].Fields["name"])
}

func TestPreview_IsPrefixOfFullPass(t *testing.T) {
	p := NewProvider(customers(), zerolog.Nop())
	tg := dynamicGroup()

	var full []model.RecipientRow
	_, err := p.Stream(context.Background(), tg, func(row model.RecipientRow) error {
		full = append(full, row)
		return nil
	})
	require.NoError(t, err)

	for _, k := range []int{1, 3, 5} {
		preview, err := p.Preview(context.Background(), tg, k)
		require.NoError(t, err)
		require.Len(t, preview, k)
		assert.Equal(t, full[:k], preview)
	}
}

func TestPreview_Caps(t *testing.T) {
	p := NewProvider(customers(), zerolog.Nop())

	rows, err := p.Preview(context.Background(), dynamicGroup(), 50)
	require.NoError(t, err)
	assert.Len(t, rows, MaxPreviewRows)

	rows, err = p.Preview(context.Background(), dynamicGroup(), 0)
	require.NoError(t, err)
	assert.Len(t, rows, DefaultPreviewRows)
}

func TestStream_ZeroRowsIsNotAnError(t *testing.T) {
	p := NewProvider(&tableExecutor{columns: []string{"phone"}}, zerolog.Nop())
	n, err := p.Stream(context.Background(), dynamicGroup(), func(model.RecipientRow) error { return nil })
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStream_MissingContactColumn(t *testing.T) {
	exec := customers()
	exec.columns = []string{"mobile", "name", "grade"}
	p := NewProvider(exec, zerolog.Nop())

	_, err := p.Stream(context.Background(), dynamicGroup(), func(model.RecipientRow) error { return nil })
	var cfgErr *model.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Reason, `"phone"`)
}

func TestStream_MissingContactColumnWithoutRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectQuery("SELECT name FROM customers").WillReturnRows(sqlmock.NewRows([]string{"name"}))

	p := NewProvider(query.NewSQLExecutor(db, time.Second, query.BindDollar), zerolog.Nop())
	tg := dynamicGroup()
	tg.Query = "SELECT name FROM customers WHERE false"

	n, err := p.Stream(context.Background(), tg, func(model.RecipientRow) error { return nil })
	assert.Zero(t, n)
	var cfgErr *model.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Reason, `"phone"`)
}

func TestStream_ExecutorFailure(t *testing.T) {
	qErr := &query.QueryError{Kind: query.KindMalformed, Err: errors.New("syntax error at or near \"SELEC\"")}
	p := NewProvider(&tableExecutor{err: qErr}, zerolog.Nop())

	_, err := p.Stream(context.Background(), dynamicGroup(), func(model.RecipientRow) error { return nil })
	var audErr *model.AudienceResolutionError
	require.ErrorAs(t, err, &audErr)
	assert.Equal(t, "tg-1", audErr.TargetGroupID)

	var got *query.QueryError
	require.ErrorAs(t, err, &got)
	assert.Equal(t, query.KindMalformed, got.Kind)
}

func TestStream_CallbackErrorIsReturnedUnchanged(t *testing.T) {
	p := NewProvider(customers(), zerolog.Nop())
	boom := errors.New("boom")

	n, err := p.Stream(context.Background(), dynamicGroup(), func(model.RecipientRow) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, n)

	var audErr *model.AudienceResolutionError
	assert.False(t, errors.As(err, &audErr))
}

func TestStream_ConfigurationErrors(t *testing.T) {
	p := NewProvider(customers(), zerolog.Nop())
	tests := map[string]model.TargetGroup{
		"no contact column": {ID: "a", Type: model.TargetTypeDynamic, Query: "SELECT 1"},
		"empty query":       {ID: "b", Type: model.TargetTypeDynamic, ContactColumn: "phone"},
		"unknown type":      {ID: "c", Type: "magic", ContactColumn: "phone"},
		"bad table":         {ID: "d", Type: model.TargetTypeStatic, Table: "customers; DROP TABLE x", ContactColumn: "phone"},
	}
	for name, tg := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := p.Stream(context.Background(), tg, func(model.RecipientRow) error { return nil })
			var cfgErr *model.ConfigurationError
			assert.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestStream_Static(t *testing.T) {
	exec := customers()
	p := NewProvider(exec, zerolog.Nop())
	tg := model.TargetGroup{
		ID:             "tg-2",
		Type:           model.TargetTypeStatic,
		Table:          "customers",
		ContactColumn:  "phone",
		ExpectedFields: []string{"name", "grade"},
		Filters:        []model.FilterCondition{{Field: "grade", Operator: model.FilterEquals, Value: "gold"}},
	}

	_, err := p.Stream(context.Background(), tg, func(model.RecipientRow) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, "SELECT phone, name, grade FROM customers WHERE grade = $1 ORDER BY phone", exec.statement)
	assert.Equal(t, []any{"gold"}, exec.args)
}
