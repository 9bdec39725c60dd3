package personalize

import (
	"regexp"
	"strings"
)

var placeholderRe = regexp.MustCompile(`#\{([^{}]*)\}`)

// ExtractVariables returns the distinct #{name} placeholders of content in
// order of first appearance.
func ExtractVariables(content string) []string {
	var names []string
	seen := map[string]bool{}
	for _, m := range placeholderRe.FindAllStringSubmatch(content, -1) {
		name := strings.TrimSpace(m[1])
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

// Render substitutes every #{name} placeholder. Names without a value render
// as the empty string.
func Render(content string, values map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(content, func(match string) string {
		name := strings.TrimSpace(match[2 : len(match)-1])
		return values[name]
	})
}
