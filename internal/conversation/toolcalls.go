package conversation

import "regexp"

// Some models emit tool invocations inline in the reply text instead of
// using structured tool calling. The markup is a function tag wrapping a
// JSON argument object.
var inlineToolPattern = regexp.MustCompile(`(?s)<function=(\w+)>(.*?)</function>`)

// ToolCall is one parsed inline invocation.
type ToolCall struct {
	Name string
	Args string
}

// ParseToolCalls extracts every inline tool invocation from text in order.
func ParseToolCalls(text string) []ToolCall {
	matches := inlineToolPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	calls := make([]ToolCall, 0, len(matches))
	for _, m := range matches {
		calls = append(calls, ToolCall{Name: m[1], Args: m[2]})
	}
	return calls
}

// ContainsToolMarkup reports whether text still carries a function tag.
func ContainsToolMarkup(text string) bool {
	return inlineToolPattern.MatchString(text)
}
