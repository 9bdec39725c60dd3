package resolver

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/edvin/outreach/internal/model"
)

// Formatter renders a resolved value for display. It is a closed set: text,
// number, currency and date.
type Formatter interface {
	// Format returns the formatted value, or the raw value and false when raw
	// cannot be interpreted by this formatter.
	Format(raw string) (string, bool)
	Kind() string
	sealed()
}

// FormatOptions carries the locale settings shared by all formatters.
type FormatOptions struct {
	Locale         language.Tag
	CurrencySuffix string
	Location       *time.Location
}

// DefaultFormatOptions formats for Korean recipients in Asia/Seoul.
func DefaultFormatOptions() FormatOptions {
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		loc = time.UTC
	}
	return FormatOptions{Locale: language.Korean, CurrencySuffix: "원", Location: loc}
}

// ParseFormatter maps a formatter name onto its variant. An empty name is text.
func ParseFormatter(kind string, opts FormatOptions) (Formatter, error) {
	switch kind {
	case "", model.FormatText:
		return TextFormatter{}, nil
	case model.FormatNumber:
		return NumberFormatter{num: newNumeric(opts.Locale)}, nil
	case model.FormatCurrency:
		return CurrencyFormatter{num: newNumeric(opts.Locale), suffix: opts.CurrencySuffix}, nil
	case model.FormatDate:
		loc := opts.Location
		if loc == nil {
			loc = time.UTC
		}
		return DateFormatter{layout: dateLayout(opts.Locale), loc: loc}, nil
	default:
		return nil, fmt.Errorf("unknown formatter %q", kind)
	}
}

// TextFormatter passes values through unchanged.
type TextFormatter struct{}

func (TextFormatter) Format(raw string) (string, bool) { return raw, true }
func (TextFormatter) Kind() string                     { return model.FormatText }
func (TextFormatter) sealed()                          {}

// NumberFormatter groups thousands according to the locale.
type NumberFormatter struct {
	num numeric
}

func (f NumberFormatter) Format(raw string) (string, bool) {
	v, ok := f.num.parse(raw)
	if !ok {
		return raw, false
	}
	return f.num.format(v), true
}
func (NumberFormatter) Kind() string { return model.FormatNumber }
func (NumberFormatter) sealed()      {}

// CurrencyFormatter groups thousands and appends the currency suffix.
type CurrencyFormatter struct {
	num    numeric
	suffix string
}

func (f CurrencyFormatter) Format(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if f.suffix != "" {
		s = strings.TrimSpace(strings.TrimSuffix(s, f.suffix))
	}
	v, ok := f.num.parse(s)
	if !ok {
		return raw, false
	}
	return f.num.format(v) + f.suffix, true
}
func (CurrencyFormatter) Kind() string { return model.FormatCurrency }
func (CurrencyFormatter) sealed()      {}

// DateFormatter turns ISO dates and timestamps into a locale date.
type DateFormatter struct {
	layout string
	loc    *time.Location
}

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

func (f DateFormatter) Format(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	for _, layout := range isoLayouts {
		t, err := time.ParseInLocation(layout, s, f.loc)
		if err == nil {
			return t.In(f.loc).Format(f.layout), true
		}
	}
	return raw, false
}
func (DateFormatter) Kind() string { return model.FormatDate }
func (DateFormatter) sealed()      {}

func dateLayout(tag language.Tag) string {
	base, _ := tag.Base()
	switch base.String() {
	case "ko":
		return "2006년 1월 2일"
	case "en":
		return "Jan 2, 2006"
	default:
		return "2006-01-02"
	}
}

// numeric parses and prints numbers with the locale's separators.
type numeric struct {
	printer *message.Printer
	group   string
	decimal string
}

func newNumeric(tag language.Tag) numeric {
	p := message.NewPrinter(tag)
	n := numeric{printer: p, group: ",", decimal: "."}
	// Probe the separators the printer uses so already formatted values parse back.
	if s := p.Sprintf("%v", number.Decimal(1000)); len([]rune(s)) == 5 {
		n.group = string([]rune(s)[1])
	}
	if s := p.Sprintf("%v", number.Decimal(1.5)); len([]rune(s)) == 3 {
		n.decimal = string([]rune(s)[1])
	}
	return n
}

func (n numeric) parse(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	if n.group != "" {
		s = strings.ReplaceAll(s, n.group, "")
	}
	if n.decimal != "." {
		s = strings.ReplaceAll(s, n.decimal, ".")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func (n numeric) format(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1<<53 {
		return n.printer.Sprintf("%v", number.Decimal(int64(v)))
	}
	return n.printer.Sprintf("%v", number.Decimal(v, number.MaxFractionDigits(6)))
}
