package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseToolCallsSingle(t *testing.T) {
	calls := ParseToolCalls(`<function=check_availability>{"date": "2026-03-10"}</function>`)
	require.Len(t, calls, 1)
	assert.Equal(t, "check_availability", calls[0].Name)
	assert.JSONEq(t, `{"date": "2026-03-10"}`, calls[0].Args)
}

func TestParseToolCallsMultipleInOrder(t *testing.T) {
	text := `Deixa eu verificar.
<function=list_appointments>{}</function>
<function=check_availability>{"date": "2026-03-11"}</function>`

	calls := ParseToolCalls(text)
	require.Len(t, calls, 2)
	assert.Equal(t, "list_appointments", calls[0].Name)
	assert.Equal(t, "check_availability", calls[1].Name)
}

func TestParseToolCallsMultilineArgs(t *testing.T) {
	text := "<function=schedule_appointment>{\n  \"patient_name\": \"Mariana\",\n  \"datetime\": \"2026-03-11 10:00\"\n}</function>"
	calls := ParseToolCalls(text)
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Args, "Mariana")
}

func TestParseToolCallsNone(t *testing.T) {
	assert.Nil(t, ParseToolCalls("Sua consulta está confirmada para amanhã às 10:00."))
	assert.Nil(t, ParseToolCalls(""))
}

func TestParseToolCallsIgnoresUnclosedTag(t *testing.T) {
	assert.Nil(t, ParseToolCalls(`<function=check_availability>{"date": "2026-03-10"}`))
}

func TestContainsToolMarkup(t *testing.T) {
	assert.True(t, ContainsToolMarkup(`ok <function=list_appointments>{}</function>`))
	assert.False(t, ContainsToolMarkup("ok, agendado!"))
}
