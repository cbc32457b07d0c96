package provider

import (
	"fmt"
	"sort"
	"strings"
)

// SystemPrompt frames every upstream call as a gift-advice task.
const SystemPrompt = `You are a gift recommendation assistant. Suggest three to five concrete gift ideas that fit the request. For each idea give a short name, an approximate price and one sentence on why it suits the recipient. Stay within any stated budget and answer in the language of the request.`

// BuildPrompt renders the user message: the query followed by the context
// attributes in key order.
func BuildPrompt(query string, attrs map[string]any) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(query))

	if len(attrs) == 0 {
		return b.String()
	}

	keys := make([]string, 0, len(attrs))
	for k, v := range attrs {
		if v == nil {
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return b.String()
	}
	sort.Strings(keys)

	b.WriteString("\n\nContext:")
	for _, k := range keys {
		fmt.Fprintf(&b, "\n- %s: %v", k, attrs[k])
	}
	return b.String()
}
