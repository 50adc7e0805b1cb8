package conversation

import (
	"regexp"
	"strings"
)

var (
	thoughtBlockPattern  = regexp.MustCompile(`(?s)<thought>.*?</thought>`)
	controlTokenPattern  = regexp.MustCompile(`\[TOOL_CALL\]|\[SYSTEM\]|\[FUNCTION\]`)
	phonePreamblePattern = regexp.MustCompile(`Telefone do paciente:\s*\S+`)
	systemEchoPattern    = regexp.MustCompile(`(?s)^\(SYSTEM:.*?\)$`)
)

const (
	emptyReplyFallback   = "Desculpe, não entendi. Pode repetir?"
	brokenMarkupFallback = "Desculpe, tive uma instabilidade para processar esta solicitação. Vou encaminhar para um atendente."
)

// SanitizeReply strips model internals from the outgoing text: reasoning
// blocks, control tokens, the injected phone preamble, leftover tool markup
// and echoed system wrappers. The second return reports whether markup
// survived the scrub, which forces a hand-off upstream.
func SanitizeReply(text string) (string, bool) {
	reply := thoughtBlockPattern.ReplaceAllString(text, "")
	reply = controlTokenPattern.ReplaceAllString(reply, "")
	reply = phonePreamblePattern.ReplaceAllString(reply, "")
	reply = inlineToolPattern.ReplaceAllString(reply, "")
	reply = systemEchoPattern.ReplaceAllString(reply, "")
	reply = strings.TrimSpace(reply)

	if strings.Contains(reply, "<function=") {
		return brokenMarkupFallback, true
	}
	if reply == "" {
		return emptyReplyFallback, false
	}
	return reply, false
}

// MentionsHandoff reports whether the final reply tells the patient a human
// took over, in which case the contact enters the hand-off window.
func MentionsHandoff(reply string) bool {
	lower := strings.ToLower(reply)
	return strings.Contains(lower, "atendente humano") || strings.Contains(lower, "encaminhada para um atendente")
}
