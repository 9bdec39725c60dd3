package audience

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/edvin/outreach/internal/model"
	"github.com/edvin/outreach/internal/query"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// StaticStatement builds the parameterized SELECT for a static target group.
// Rows are ordered by the contact column so a preview is a prefix of the full
// pass. Comparison values are bound as text and coerced by the database to
// the column type, so greater_than/less_than compare numerically on numeric
// columns and lexically on text columns.
func StaticStatement(tg model.TargetGroup, style query.BindStyle) (string, []any, error) {
	subject := fmt.Sprintf("target group %s", tg.ID)
	if !identRe.MatchString(tg.Table) {
		return "", nil, &model.ConfigurationError{Subject: subject, Reason: fmt.Sprintf("invalid table name %q", tg.Table)}
	}
	if !identRe.MatchString(tg.ContactColumn) {
		return "", nil, &model.ConfigurationError{Subject: subject, Reason: fmt.Sprintf("invalid contact column %q", tg.ContactColumn)}
	}

	columns := []string{tg.ContactColumn}
	seen := map[string]bool{tg.ContactColumn: true}
	for _, f := range tg.ExpectedFields {
		if !identRe.MatchString(f) {
			return "", nil, &model.ConfigurationError{Subject: subject, Reason: fmt.Sprintf("invalid field name %q", f)}
		}
		if !seen[f] {
			seen[f] = true
			columns = append(columns, f)
		}
	}
	projection := strings.Join(columns, ", ")
	if len(tg.ExpectedFields) == 0 {
		projection = "*"
	}

	var (
		where []string
		args  []any
	)
	param := func(v any) string {
		args = append(args, v)
		if style == query.BindQuestion {
			return "?"
		}
		return "$" + strconv.Itoa(len(args))
	}

	for i, f := range tg.Filters {
		if !identRe.MatchString(f.Field) {
			return "", nil, &model.ConfigurationError{Subject: subject, Reason: fmt.Sprintf("filter %d: invalid field name %q", i, f.Field)}
		}
		switch f.Operator {
		case model.FilterEquals:
			where = append(where, fmt.Sprintf("%s = %s", f.Field, param(f.Value)))
		case model.FilterContains:
			where = append(where, fmt.Sprintf(`CAST(%s AS TEXT) LIKE %s ESCAPE '\'`, f.Field, param("%"+likeEscaper.Replace(f.Value)+"%")))
		case model.FilterGreaterThan:
			where = append(where, fmt.Sprintf("%s > %s", f.Field, param(f.Value)))
		case model.FilterLessThan:
			where = append(where, fmt.Sprintf("%s < %s", f.Field, param(f.Value)))
		default:
			return "", nil, &model.ConfigurationError{Subject: subject, Reason: fmt.Sprintf("filter %d: unknown operator %q", i, f.Operator)}
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", projection, tg.Table)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	fmt.Fprintf(&b, " ORDER BY %s", tg.ContactColumn)
	return b.String(), args, nil
}
