package resolver

import (
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/edvin/outreach/internal/model"
)

// Func is a pure function of the recipient row and the current time.
type Func func(row model.RecipientRow, now time.Time) (string, bool)

// Registry is a fixed set of named functions.
type Registry struct {
	funcs map[string]Func
}

// NewRegistry returns the built-in functions. Times are rendered in loc.
func NewRegistry(loc *time.Location) *Registry {
	if loc == nil {
		loc = time.UTC
	}
	return &Registry{funcs: map[string]Func{
		"current_date": func(_ model.RecipientRow, now time.Time) (string, bool) {
			return now.In(loc).Format("2006-01-02"), true
		},
		"current_time": func(_ model.RecipientRow, now time.Time) (string, bool) {
			return now.In(loc).Format("15:04"), true
		},
		"current_datetime": func(_ model.RecipientRow, now time.Time) (string, bool) {
			return now.In(loc).Format("2006-01-02 15:04"), true
		},
		"short_company_name": shortCompanyName,
		"formatted_contact": func(row model.RecipientRow, _ time.Time) (string, bool) {
			return FormatContact(row.Contact)
		},
		"recipient_contact": func(row model.RecipientRow, _ time.Time) (string, bool) {
			return row.Contact, row.Contact != ""
		},
	}}
}

// Lookup returns the named function.
func (r *Registry) Lookup(name string) (Func, bool) {
	fn, ok := r.funcs[name]
	return fn, ok
}

// Names lists registered function names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.funcs))
	for n := range r.funcs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

var companyAffixes = []string{"주식회사", "(주)", "㈜", "유한회사", "(유)", "Co., Ltd.", "Co.,Ltd.", "Inc.", "Ltd.", "Corp."}

var companyFields = []string{"company_name", "company", "회사명"}

func shortCompanyName(row model.RecipientRow, _ time.Time) (string, bool) {
	for _, f := range companyFields {
		v, ok := row.Field(f)
		if !ok {
			continue
		}
		name, ok := stringify(v)
		if !ok {
			continue
		}
		for _, affix := range companyAffixes {
			name = strings.ReplaceAll(name, affix, "")
		}
		name = strings.Trim(strings.TrimSpace(name), ",")
		if name != "" {
			return strings.TrimSpace(name), true
		}
	}
	return "", false
}

// FormatContact renders Korean phone numbers with dashes. Other values are
// returned unchanged.
func FormatContact(contact string) (string, bool) {
	if contact == "" {
		return "", false
	}
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, contact)

	switch {
	case strings.HasPrefix(digits, "02") && len(digits) == 9:
		return digits[:2] + "-" + digits[2:5] + "-" + digits[5:], true
	case strings.HasPrefix(digits, "02") && len(digits) == 10:
		return digits[:2] + "-" + digits[2:6] + "-" + digits[6:], true
	case len(digits) == 11:
		return digits[:3] + "-" + digits[3:7] + "-" + digits[7:], true
	case len(digits) == 10:
		return digits[:3] + "-" + digits[3:6] + "-" + digits[6:], true
	}
	return contact, true
}
