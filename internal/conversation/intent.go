package conversation

import (
	"regexp"
	"strings"
)

// Short replies ("sim", a lone emoji) carry clear intent but give the model
// too little to work with. They are rewritten into explicit phrases before
// the turn runs, so both the fast paths and the agent see the same wording.
var intentRules = []struct {
	pattern *regexp.Regexp
	phrase  string
}{
	{regexp.MustCompile(`\b(sim|confirmo|confirmar|confirmado|confirmei|confirma|ok)\b|✅`), "Quero confirmar minha consulta"},
	{regexp.MustCompile(`\b(reagendar|remarcar|mudar|trocar|reagenda|transferir|adiar)\b|🔄`), "Quero reagendar minha consulta"},
	{regexp.MustCompile(`\b(cancelar|cancela|desmarcar|cancelo|desmarco|nao vou|não vou)\b|❌|(?:^|[^a-zA-Z])x(?:$|[^a-zA-Z])`), "Quero cancelar minha consulta"},
	{regexp.MustCompile(`\b(atendente|humano|pessoa|chata|ruim|falar com alguem|valor da consulta|preço)\b`), "Quero falar com um atendente"},
}

var (
	scopePattern         = regexp.MustCompile(`\b(agendar|agendamento|marcar|consulta|hor[aá]rio|servi[cç]o|reagendar|cancelar|confirmar|desmarcar)\b`)
	dateSelectionPattern = regexp.MustCompile(`(?i)^(dia\s*)?\d{1,2}[/-]\d{1,2}([/-]\d{2,4})?\s*$`)
	timeSelectionPattern = regexp.MustCompile(`(?i)^(a[sà]s?\s*)?\d{1,2}(:|h)\d{2}\s*$`)
	// \b is ASCII-only in RE2, so the accented greeting is matched without it.
	greetingPattern      = regexp.MustCompile(`^(oi|ola|bom dia|boa tarde|boa noite)\b|^olá`)
	humanRequestPattern  = regexp.MustCompile(`\b(atendente|humano|pessoa|recepcionista)\b`)
	financialPattern     = regexp.MustCompile(`\b(valor|pre[cç]o|financeiro|pagamento|cobran[cç]a|or[cç]amento)\b`)
	complaintPattern     = regexp.MustCompile(`\b(reclama[cç][aã]o|reclamar|insatisfeit|ruim|péssimo|horr[ií]vel)\b`)
	urgencyPattern       = regexp.MustCompile(`\b(urg[êe]ncia|urgente|emerg[êe]ncia|dor forte|sangramento)\b`)
	smallTalkPattern     = regexp.MustCompile(`(?i)^(oi+|ol[áa]+|bom dia|boa tarde|boa noite|obrigad[oa]+|valeu+|perfeito+|beleza+|tudo bem\??)$`)
)

// PreprocessIntent rewrites a short confirmation, reschedule, cancel or
// hand-off reply into its explicit phrase. Unmatched text passes through.
func PreprocessIntent(text string) string {
	normalized := strings.ToLower(strings.TrimSpace(text))
	// Emoji variation selectors and joiners break literal matching.
	normalized = strings.ReplaceAll(normalized, "️", "")
	normalized = strings.ReplaceAll(normalized, "‍", "")

	for _, rule := range intentRules {
		if rule.pattern.MatchString(normalized) {
			return rule.phrase
		}
	}
	return text
}

// DetectHandoffReason returns a human readable reason when the message must
// go to a human attendant, or "" when the assistant may handle it.
func DetectHandoffReason(text string) string {
	normalized := strings.ToLower(strings.TrimSpace(text))
	switch {
	case humanRequestPattern.MatchString(normalized):
		return "Pedido explícito de atendente."
	case urgencyPattern.MatchString(normalized):
		return "Mensagem com indício de urgência."
	case financialPattern.MatchString(normalized):
		return "Dúvida financeira ou de preço."
	case complaintPattern.MatchString(normalized):
		return "Reclamação/insatisfação."
	}
	return ""
}

// InSupportedScope reports whether the message belongs to the scheduling
// domain. Greetings and bare date/time selections count as in scope since
// they usually answer a question the assistant just asked.
func InSupportedScope(text string) bool {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if greetingPattern.MatchString(normalized) {
		return true
	}
	if dateSelectionPattern.MatchString(normalized) || timeSelectionPattern.MatchString(normalized) {
		return true
	}
	return scopePattern.MatchString(normalized)
}

// IsSmallTalk reports whether the message is a bare greeting or pleasantry
// answered by a canned introduction instead of a model round trip.
func IsSmallTalk(text string) bool {
	return smallTalkPattern.MatchString(strings.TrimSpace(strings.ToLower(text)))
}

// TruncateText trims value and caps it at limit characters.
func TruncateText(value string, limit int) string {
	cleaned := strings.TrimSpace(value)
	if len(cleaned) <= limit {
		return cleaned
	}
	runes := []rune(cleaned)
	if len(runes) <= limit {
		return cleaned
	}
	return string(runes[:limit])
}
