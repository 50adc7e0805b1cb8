package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeReplyPassthrough(t *testing.T) {
	reply, broken := SanitizeReply("Sua consulta está confirmada para amanhã às 10:00.")
	assert.False(t, broken)
	assert.Equal(t, "Sua consulta está confirmada para amanhã às 10:00.", reply)
}

func TestSanitizeReplyStripsThoughtBlocks(t *testing.T) {
	reply, broken := SanitizeReply("<thought>o paciente quer confirmar\nvou confirmar</thought>Confirmado!")
	assert.False(t, broken)
	assert.Equal(t, "Confirmado!", reply)
}

func TestSanitizeReplyStripsControlTokens(t *testing.T) {
	reply, broken := SanitizeReply("[SYSTEM] Consulta confirmada [TOOL_CALL]")
	assert.False(t, broken)
	assert.Equal(t, "Consulta confirmada", reply)
}

func TestSanitizeReplyStripsPhonePreamble(t *testing.T) {
	reply, broken := SanitizeReply("Telefone do paciente: 5511999990001\nOlá! Posso ajudar?")
	assert.False(t, broken)
	assert.Equal(t, "Olá! Posso ajudar?", reply)
}

func TestSanitizeReplyStripsCompleteToolMarkup(t *testing.T) {
	reply, broken := SanitizeReply(`Vou verificar. <function=check_availability>{"date":"2026-03-10"}</function> Um momento.`)
	assert.False(t, broken)
	assert.Equal(t, "Vou verificar.  Um momento.", reply)
}

func TestSanitizeReplyBrokenMarkupForcesHandoff(t *testing.T) {
	reply, broken := SanitizeReply(`<function=check_availability>{"date":`)
	assert.True(t, broken)
	assert.Equal(t, brokenMarkupFallback, reply)
}

func TestSanitizeReplyEmptyFallback(t *testing.T) {
	for _, input := range []string{"", "   ", "<thought>só pensando</thought>", "(SYSTEM: resultados internos)"} {
		reply, broken := SanitizeReply(input)
		assert.False(t, broken, "input %q", input)
		assert.Equal(t, emptyReplyFallback, reply, "input %q", input)
	}
}

func TestMentionsHandoff(t *testing.T) {
	assert.True(t, MentionsHandoff("Sua solicitação foi encaminhada para um atendente."))
	assert.True(t, MentionsHandoff("Um Atendente Humano vai falar com você."))
	assert.False(t, MentionsHandoff("Sua consulta está confirmada."))
}
