package resolver

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/outreach/internal/model"
	"github.com/edvin/outreach/internal/query"
)

// Fallback reasons reported with a Resolution.
const (
	ReasonMissingField   = "missing_field"
	ReasonQueryError     = "query_error"
	ReasonQueryEmpty     = "query_empty"
	ReasonMissingParam   = "missing_parameter"
	ReasonUnknownColumn  = "unknown_column"
	ReasonFunctionFailed = "function_failed"
	ReasonInvalidMapping = "invalid_mapping"
)

// Resolution is the outcome of resolving one variable for one recipient.
type Resolution struct {
	Variable    string `json:"variable"`
	Value       string `json:"value"`
	UsedDefault bool   `json:"used_default"`
	Reason      string `json:"reason,omitempty"`
	// Unformatted is set when the formatter could not interpret the value and
	// it was passed through as is.
	Unformatted bool `json:"unformatted,omitempty"`
}

// Resolver resolves variable mappings against recipient rows. It never
// returns an error: every failure falls back to the mapping's default.
type Resolver struct {
	exec   query.Executor
	funcs  *Registry
	format FormatOptions
	now    func() time.Time
	logger zerolog.Logger
}

// New creates a Resolver. exec may be nil when no mapping uses a query source.
func New(exec query.Executor, funcs *Registry, format FormatOptions, logger zerolog.Logger) *Resolver {
	if funcs == nil {
		funcs = NewRegistry(format.Location)
	}
	return &Resolver{
		exec:   exec,
		funcs:  funcs,
		format: format,
		now:    time.Now,
		logger: logger,
	}
}

// Functions returns the resolver's function registry.
func (r *Resolver) Functions() *Registry { return r.funcs }

// Validate reports configuration problems in a mapping as a *model.ConfigurationError.
func (r *Resolver) Validate(m model.VariableMapping) error {
	subject := fmt.Sprintf("variable %q", m.TemplateVariable)
	if strings.TrimSpace(m.TemplateVariable) == "" {
		return &model.ConfigurationError{Subject: "variable mapping", Reason: "template variable is empty"}
	}
	if _, err := ParseSource(m, r.funcs); err != nil {
		return &model.ConfigurationError{Subject: subject, Reason: err.Error()}
	}
	if _, err := ParseFormatter(m.Formatter, r.format); err != nil {
		return &model.ConfigurationError{Subject: subject, Reason: err.Error()}
	}
	return nil
}

// Resolve resolves one mapping for one row without caching.
func (r *Resolver) Resolve(ctx context.Context, m model.VariableMapping, row model.RecipientRow) Resolution {
	return r.resolve(ctx, m, row, nil)
}

// Session resolves mappings for one job run. Query results are memoized by
// statement and bound arguments, so statements that do not depend on the
// recipient run once per run. Safe for concurrent use.
type Session struct {
	r     *Resolver
	mu    sync.Mutex
	cache map[string]*cachedQuery
}

type cachedQuery struct {
	once sync.Once
	res  *query.Result
	err  error
}

// NewSession starts a memoizing resolution session.
func (r *Resolver) NewSession() *Session {
	return &Session{r: r, cache: make(map[string]*cachedQuery)}
}

// Resolve resolves one mapping for one row, sharing query results within the session.
func (s *Session) Resolve(ctx context.Context, m model.VariableMapping, row model.RecipientRow) Resolution {
	return s.r.resolve(ctx, m, row, s)
}

func (s *Session) execute(ctx context.Context, exec query.Executor, statement string, args []any) (*query.Result, error) {
	key := statement + "\x00" + fmt.Sprintf("%#v", args)

	s.mu.Lock()
	entry, ok := s.cache[key]
	if !ok {
		entry = &cachedQuery{}
		s.cache[key] = entry
	}
	s.mu.Unlock()

	entry.once.Do(func() {
		entry.res, entry.err = exec.Execute(ctx, statement, args...)
	})
	return entry.res, entry.err
}

func (r *Resolver) resolve(ctx context.Context, m model.VariableMapping, row model.RecipientRow, session *Session) Resolution {
	formatter, err := ParseFormatter(m.Formatter, r.format)
	if err != nil {
		formatter = TextFormatter{}
	}

	value, reason := r.lookup(ctx, m, row, session)
	res := Resolution{Variable: m.TemplateVariable}
	if reason != "" {
		res.UsedDefault = true
		res.Reason = reason
		value = m.DefaultValue
	}

	if value == "" {
		res.Value = ""
		return res
	}
	formatted, ok := formatter.Format(value)
	res.Value = formatted
	res.Unformatted = !ok
	return res
}

// lookup returns the raw value, or a non-empty fallback reason.
func (r *Resolver) lookup(ctx context.Context, m model.VariableMapping, row model.RecipientRow, session *Session) (string, string) {
	src, err := ParseSource(m, r.funcs)
	if err != nil {
		return "", ReasonInvalidMapping
	}

	switch s := src.(type) {
	case FieldSource:
		v, ok := fieldValue(row, s.Field)
		if !ok {
			return "", ReasonMissingField
		}
		return v, ""

	case QuerySource:
		return r.lookupQuery(ctx, m, s, row, session)

	case FunctionSource:
		v, ok := s.Fn(row, r.now())
		if !ok || v == "" {
			return "", ReasonFunctionFailed
		}
		return v, ""
	}
	return "", ReasonInvalidMapping
}

func (r *Resolver) lookupQuery(ctx context.Context, m model.VariableMapping, s QuerySource, row model.RecipientRow, session *Session) (string, string) {
	if r.exec == nil {
		return "", ReasonQueryError
	}

	statement, args, missing := query.BindNamed(s.Statement, r.exec.Style(), func(name string) (any, bool) {
		if v, ok := row.Field(name); ok {
			return v, true
		}
		if name == "contact" && row.Contact != "" {
			return row.Contact, true
		}
		return nil, false
	})
	if len(missing) > 0 {
		return "", ReasonMissingParam
	}

	var res *query.Result
	var err error
	if session != nil {
		res, err = session.execute(ctx, r.exec, statement, args)
	} else {
		res, err = r.exec.Execute(ctx, statement, args...)
	}
	if err != nil {
		r.logger.Debug().Err(err).Str("variable", m.TemplateVariable).Msg("variable query failed, using default")
		return "", ReasonQueryError
	}
	if len(res.Rows) == 0 || len(res.Columns) == 0 {
		return "", ReasonQueryEmpty
	}

	column := s.SelectedColumn
	if column == "" {
		column = res.Columns[0]
	}
	v, ok := res.Rows[0][column]
	if !ok {
		return "", ReasonUnknownColumn
	}
	str, ok := stringify(v)
	if !ok {
		return "", ReasonQueryEmpty
	}
	return str, ""
}

func fieldValue(row model.RecipientRow, field string) (string, bool) {
	v, ok := row.Field(field)
	if !ok {
		return "", false
	}
	return stringify(v)
}

// stringify renders a driver value as text. Null and empty values report false.
func stringify(v any) (string, bool) {
	var s string
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		s = t
	case []byte:
		s = string(t)
	case int:
		s = strconv.Itoa(t)
	case int32:
		s = strconv.FormatInt(int64(t), 10)
	case int64:
		s = strconv.FormatInt(t, 10)
	case float32:
		s = strconv.FormatFloat(float64(t), 'f', -1, 32)
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		s = strconv.FormatBool(t)
	case time.Time:
		s = t.Format(time.RFC3339)
	case fmt.Stringer:
		s = t.String()
	default:
		s = fmt.Sprint(t)
	}
	if strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

// Stringify exposes the row value conversion used for field sources.
func Stringify(v any) (string, bool) { return stringify(v) }
