package query

import (
	"regexp"
	"strconv"
	"strings"
)

// BindStyle is the positional parameter syntax of a driver.
type BindStyle int

const (
	// BindDollar numbers parameters: $1, $2 (PostgreSQL).
	BindDollar BindStyle = iota
	// BindQuestion uses ? for every parameter (MySQL, SQLite).
	BindQuestion
)

var (
	// bareRe matches {name} outside string literals.
	bareRe = regexp.MustCompile(`\{([^{}'\s]+)\}`)
	// quotedRe matches a literal that is exactly '{name}', left over from
	// string-interpolated statements; it binds to one parameter.
	quotedRe = regexp.MustCompile(`^'\{([^{}'\s]+)\}'$`)
)

type segment struct {
	text    string
	literal bool
}

// split cuts statement into code and single-quoted literal segments. A
// doubled quote inside a literal is an escaped quote. An unterminated literal
// runs to the end of the statement.
func split(statement string) []segment {
	var out []segment
	for statement != "" {
		open := strings.IndexByte(statement, '\'')
		if open < 0 {
			out = append(out, segment{text: statement})
			break
		}
		if open > 0 {
			out = append(out, segment{text: statement[:open]})
		}
		end := len(statement)
		for i := open + 1; i < len(statement); i++ {
			if statement[i] != '\'' {
				continue
			}
			if i+1 < len(statement) && statement[i+1] == '\'' {
				i++
				continue
			}
			end = i + 1
			break
		}
		out = append(out, segment{text: statement[open:end], literal: true})
		statement = statement[end:]
	}
	return out
}

// rewrite calls replace for every bindable placeholder and substitutes its
// result. Placeholders embedded in longer literals are left untouched.
func rewrite(statement string, replace func(name, match string) string) string {
	var b strings.Builder
	for _, seg := range split(statement) {
		if seg.literal {
			if m := quotedRe.FindStringSubmatch(seg.text); m != nil {
				b.WriteString(replace(m[1], seg.text))
				continue
			}
			b.WriteString(seg.text)
			continue
		}
		b.WriteString(bareRe.ReplaceAllStringFunc(seg.text, func(match string) string {
			return replace(match[1:len(match)-1], match)
		}))
	}
	return b.String()
}

// Placeholders returns the distinct bindable placeholder names in statement,
// in order of first appearance.
func Placeholders(statement string) []string {
	var names []string
	seen := map[string]bool{}
	rewrite(statement, func(name, match string) string {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
		return match
	})
	return names
}

// EmbeddedPlaceholders returns placeholder names that appear inside a longer
// string literal, such as 'Dear {name}!'. A driver parameter cannot stand in
// for part of a literal, so such statements cannot be bound.
func EmbeddedPlaceholders(statement string) []string {
	var names []string
	for _, seg := range split(statement) {
		if !seg.literal || quotedRe.MatchString(seg.text) {
			continue
		}
		for _, m := range bareRe.FindAllStringSubmatch(seg.text, -1) {
			names = append(names, m[1])
		}
	}
	return names
}

// BindNamed rewrites {name} placeholders into positional parameters and
// returns the argument list. lookup supplies each value; names it cannot
// resolve are returned in missing and the statement should not be executed.
func BindNamed(statement string, style BindStyle, lookup func(name string) (any, bool)) (string, []any, []string) {
	var (
		args    []any
		missing []string
		index   = map[string]int{}
	)

	out := rewrite(statement, func(name, match string) string {
		v, ok := lookup(name)
		if !ok {
			missing = append(missing, name)
			return match
		}

		if style == BindQuestion {
			args = append(args, v)
			return "?"
		}
		n, seen := index[name]
		if !seen {
			args = append(args, v)
			n = len(args)
			index[name] = n
		}
		return "$" + strconv.Itoa(n)
	})

	return out, args, missing
}
