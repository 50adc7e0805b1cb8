package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postclinics/clinic-agent/internal/clinic"
	"github.com/postclinics/clinic-agent/internal/patient"
	"github.com/postclinics/clinic-agent/internal/scheduling"
	"github.com/postclinics/clinic-agent/internal/whatsapp"
)

type scriptedLLM struct {
	mu        sync.Mutex
	responses []LLMResponse
	errs      []error
	requests  []LLMRequest
}

func (l *scriptedLLM) Complete(_ context.Context, req LLMRequest) (LLMResponse, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.requests = append(l.requests, req)
	if len(l.errs) > 0 {
		err := l.errs[0]
		l.errs = l.errs[1:]
		if err != nil {
			return LLMResponse{}, err
		}
	}
	if len(l.responses) == 0 {
		return LLMResponse{Text: "Certo!"}, nil
	}
	resp := l.responses[0]
	l.responses = l.responses[1:]
	return resp, nil
}

func (l *scriptedLLM) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.requests)
}

type recordingSender struct {
	mu       sync.Mutex
	messages []recordedSend
}

type recordedSend struct {
	Phone   string
	Message string
}

func (s *recordingSender) SendText(_ context.Context, phone, message string) whatsapp.SendResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, recordedSend{Phone: phone, Message: message})
	return whatsapp.SendResult{Success: true, StatusCode: 200}
}

func (s *recordingSender) last(t *testing.T) recordedSend {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.messages)
	return s.messages[len(s.messages)-1]
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

type processorFixture struct {
	processor *Processor
	llm       *scriptedLLM
	sender    *recordingSender
	state     *MemoryContactState
	engine    *scheduling.Engine
	history   *HistoryStore
}

func newProcessorFixture(t *testing.T) *processorFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	engine := scheduling.NewEngine(
		scheduling.NewMemoryRepository(),
		patient.NewResolver(patient.NewMemoryRepository(), nil),
		clinic.Reabilitare(),
		nil,
	)
	llm := &scriptedLLM{}
	sender := &recordingSender{}
	state := NewMemoryContactState()
	history := NewHistoryStore(redisClient)

	processor := NewProcessor(
		llm,
		NewToolset(engine, nil, time.UTC),
		history,
		state,
		engine,
		sender,
		clinic.Reabilitare(),
		time.UTC,
		ProcessorConfig{},
		nil,
	)
	return &processorFixture{
		processor: processor,
		llm:       llm,
		sender:    sender,
		state:     state,
		engine:    engine,
		history:   history,
	}
}

func (f *processorFixture) bookAppointment(t *testing.T, phone string, startsAt time.Time) *scheduling.Appointment {
	t.Helper()
	appt, err := f.engine.Create(context.Background(), scheduling.CreateParams{
		PatientName:  "Mariana Souza",
		PatientPhone: phone,
		StartsAt:     startsAt,
		Service:      "Clínica Geral",
	})
	require.NoError(t, err)
	return appt
}

func inbound(phone, text string) InboundMessage {
	return InboundMessage{Phone: phone, MessageID: "msg-" + text, Text: text}
}

const testPhone = "5511999990001"

func TestProcessSmallTalkSkipsModel(t *testing.T) {
	f := newProcessorFixture(t)
	f.processor.Process(context.Background(), inbound(testPhone, "oi"))

	sent := f.sender.last(t)
	assert.Contains(t, sent.Message, "Sou Cora da Espaço Interativo Reabilitare")
	assert.Contains(t, sent.Message, "Falar com atendente")
	assert.Equal(t, 0, f.llm.callCount())
}

func TestProcessConfirmationWithoutAppointment(t *testing.T) {
	f := newProcessorFixture(t)
	f.processor.Process(context.Background(), inbound(testPhone, "sim"))

	sent := f.sender.last(t)
	assert.Equal(t, "Não encontrei consulta ativa para este contato. Deseja agendar uma nova?", sent.Message)
	assert.Equal(t, 0, f.llm.callCount())
}

func TestProcessConfirmationWithSingleAppointment(t *testing.T) {
	f := newProcessorFixture(t)
	appt := f.bookAppointment(t, testPhone, time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC))

	f.processor.Process(context.Background(), inbound(testPhone, "✅"))

	sent := f.sender.last(t)
	assert.Equal(t, "Sua presença foi confirmada. Aguardamos você.", sent.Message)

	confirmed, err := f.engine.ListActiveForContact(context.Background(), testPhone)
	require.NoError(t, err)
	require.Len(t, confirmed, 1)
	assert.Equal(t, appt.ID, confirmed[0].ID)
	assert.Equal(t, scheduling.StatusConfirmed, confirmed[0].Status)
}

func TestProcessConfirmationWithMultipleAppointments(t *testing.T) {
	f := newProcessorFixture(t)
	f.bookAppointment(t, testPhone, time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC))
	f.bookAppointment(t, testPhone, time.Date(2026, 3, 11, 14, 0, 0, 0, time.UTC))

	f.processor.Process(context.Background(), inbound(testPhone, "sim"))

	sent := f.sender.last(t)
	assert.Contains(t, sent.Message, "Encontrei mais de uma consulta vinculada ao seu contato")
	assert.Contains(t, sent.Message, "10/03/2026 às 10:00")
	assert.Contains(t, sent.Message, "11/03/2026 às 14:00")
}

func TestProcessHumanRequestActivatesHandoff(t *testing.T) {
	f := newProcessorFixture(t)
	f.processor.Process(context.Background(), inbound(testPhone, "quero falar com um atendente"))

	sent := f.sender.last(t)
	assert.Equal(t, handoffReply, sent.Message)

	active, err := f.state.HandoffActive(context.Background(), testPhone)
	require.NoError(t, err)
	assert.True(t, active)
	assert.Equal(t, 0, f.llm.callCount())
}

func TestProcessHandoffWindowSwallowsOffTopicMessages(t *testing.T) {
	f := newProcessorFixture(t)
	require.NoError(t, f.state.ActivateHandoff(context.Background(), testPhone, 15*time.Minute))

	f.processor.Process(context.Background(), inbound(testPhone, "vocês têm estacionamento?"))
	assert.Equal(t, handoffReply, f.sender.last(t).Message)
	assert.Equal(t, 0, f.llm.callCount())
}

func TestProcessHandoffClearsOnInScopeMessage(t *testing.T) {
	f := newProcessorFixture(t)
	require.NoError(t, f.state.ActivateHandoff(context.Background(), testPhone, 15*time.Minute))
	f.llm.responses = []LLMResponse{{Text: "Claro! Para qual dia você gostaria?"}}

	f.processor.Process(context.Background(), inbound(testPhone, "quero agendar uma consulta"))

	assert.Equal(t, "Claro! Para qual dia você gostaria?", f.sender.last(t).Message)
	active, err := f.state.HandoffActive(context.Background(), testPhone)
	require.NoError(t, err)
	assert.False(t, active)
}

func TestProcessOutOfScopeSecondStrikeHandsOff(t *testing.T) {
	f := newProcessorFixture(t)
	f.llm.responses = []LLMResponse{{Text: "Posso ajudar com agendamentos."}}

	// First strike still gets an answer.
	f.processor.Process(context.Background(), inbound(testPhone, "me conta uma piada"))
	assert.Equal(t, "Posso ajudar com agendamentos.", f.sender.last(t).Message)

	// Second consecutive strike goes to a human.
	f.processor.Process(context.Background(), inbound(testPhone, "qual a previsão do tempo?"))
	assert.Equal(t, handoffReply, f.sender.last(t).Message)

	active, err := f.state.HandoffActive(context.Background(), testPhone)
	require.NoError(t, err)
	assert.True(t, active)
}

func TestProcessInScopeMessageResetsStrikes(t *testing.T) {
	f := newProcessorFixture(t)
	f.llm.responses = []LLMResponse{
		{Text: "Posso ajudar com agendamentos."},
		{Text: "Temos horários amanhã."},
		{Text: "Posso ajudar com agendamentos."},
	}

	f.processor.Process(context.Background(), inbound(testPhone, "me conta uma piada"))
	f.processor.Process(context.Background(), inbound(testPhone, "quero marcar um horário"))
	f.processor.Process(context.Background(), inbound(testPhone, "me conta outra piada"))

	// Third message is only the first strike of a new streak.
	active, err := f.state.HandoffActive(context.Background(), testPhone)
	require.NoError(t, err)
	assert.False(t, active)
}

func TestProcessExecutesInlineToolRound(t *testing.T) {
	f := newProcessorFixture(t)
	f.llm.responses = []LLMResponse{
		{Text: `<function=get_available_services>{}</function>`},
		{Text: "Atendemos Ortodontia, Implante e Clínica Geral. Qual serviço você procura?"},
	}

	f.processor.Process(context.Background(), inbound(testPhone, "quais serviços vocês atendem?"))

	require.Equal(t, 2, f.llm.callCount())
	followup := f.llm.requests[1]
	require.Len(t, followup.Messages, 1, "tool follow-up runs in an isolated sub-session")
	assert.Contains(t, followup.Messages[0].Content, "(SYSTEM: Tool 'get_available_services' returned:")
	assert.Contains(t, followup.Messages[0].Content, "respond to the user in Portuguese")

	assert.Equal(t, "Atendemos Ortodontia, Implante e Clínica Geral. Qual serviço você procura?", f.sender.last(t).Message)
}

func TestProcessPersistsHistory(t *testing.T) {
	f := newProcessorFixture(t)
	f.llm.responses = []LLMResponse{{Text: "Temos horários amanhã às 10:00."}}

	f.processor.Process(context.Background(), inbound(testPhone, "quero marcar uma consulta"))

	history, err := f.history.Load(context.Background(), "zapi:"+testPhone)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, ChatRoleUser, history[0].Role)
	assert.Equal(t, "quero marcar uma consulta", history[0].Content)
	assert.Equal(t, ChatRoleAssistant, history[1].Role)
	assert.Equal(t, "Temos horários amanhã às 10:00.", history[1].Content)
}

func TestProcessTooManyInlineCallsHandsOff(t *testing.T) {
	f := newProcessorFixture(t)
	f.llm.responses = []LLMResponse{{Text: strings.Repeat(`<function=get_available_services>{}</function>`, 4)}}

	f.processor.Process(context.Background(), inbound(testPhone, "quero marcar uma consulta"))

	assert.Equal(t, genericErrorReply, f.sender.last(t).Message)
	active, err := f.state.HandoffActive(context.Background(), testPhone)
	require.NoError(t, err)
	assert.True(t, active)
}

func TestProcessHandoffToolActivatesWindow(t *testing.T) {
	f := newProcessorFixture(t)
	f.llm.responses = []LLMResponse{
		{Text: `<function=request_human_attendant>{}</function>`},
		{Text: "Encaminhei sua solicitação para um atendente humano."},
	}

	f.processor.Process(context.Background(), inbound(testPhone, "quero marcar uma consulta"))

	active, err := f.state.HandoffActive(context.Background(), testPhone)
	require.NoError(t, err)
	assert.True(t, active)
}

func TestProcessBrokenMarkupFallsBack(t *testing.T) {
	f := newProcessorFixture(t)
	f.llm.responses = []LLMResponse{{Text: `<function=schedule_appointment>{"name":`}}

	f.processor.Process(context.Background(), inbound(testPhone, "quero marcar uma consulta"))

	assert.Equal(t, brokenMarkupFallback, f.sender.last(t).Message)
	active, err := f.state.HandoffActive(context.Background(), testPhone)
	require.NoError(t, err)
	assert.True(t, active)
}

func TestProcessRateLimitErrorUsesRateLimitReply(t *testing.T) {
	f := newProcessorFixture(t)
	f.llm.errs = []error{errors.New("Error code: 429 - Too many requests")}

	f.processor.Process(context.Background(), inbound(testPhone, "quero marcar uma consulta"))

	assert.Equal(t, rateLimitReply, f.sender.last(t).Message)
	active, err := f.state.HandoffActive(context.Background(), testPhone)
	require.NoError(t, err)
	assert.True(t, active)
}

func TestProcessGenericErrorUsesGenericReply(t *testing.T) {
	f := newProcessorFixture(t)
	f.llm.errs = []error{errors.New("connection reset by peer")}

	f.processor.Process(context.Background(), inbound(testPhone, "quero marcar uma consulta"))

	assert.Equal(t, genericErrorReply, f.sender.last(t).Message)
}

func TestProcessOversizedContextRetriesReduced(t *testing.T) {
	f := newProcessorFixture(t)
	f.llm.errs = []error{errors.New("Error code: 413 - Request too large"), nil}
	f.llm.responses = []LLMResponse{{Text: "Consegui! Temos horários amanhã."}}

	f.processor.Process(context.Background(), inbound(testPhone, "quero marcar uma consulta"))

	assert.Equal(t, "Consegui! Temos horários amanhã.", f.sender.last(t).Message)
	require.Equal(t, 2, f.llm.callCount())
	assert.Len(t, f.llm.requests[1].Messages, 1)
}

func TestProcessSystemPromptCarriesCatalog(t *testing.T) {
	f := newProcessorFixture(t)
	f.llm.responses = []LLMResponse{{Text: "Temos estes serviços."}}

	f.processor.Process(context.Background(), inbound(testPhone, "quero marcar uma consulta"))

	require.Equal(t, 1, f.llm.callCount())
	system := f.llm.requests[0].System
	assert.Contains(t, system, "Cora")
	assert.Contains(t, system, "Espaço Interativo Reabilitare")
	assert.Contains(t, system, "Ortodontia")
}

func TestProcessAgentInputCarriesPhone(t *testing.T) {
	f := newProcessorFixture(t)
	f.llm.responses = []LLMResponse{{Text: "Certo."}}

	f.processor.Process(context.Background(), inbound(testPhone, "quero marcar uma consulta"))

	require.Equal(t, 1, f.llm.callCount())
	messages := f.llm.requests[0].Messages
	require.NotEmpty(t, messages)
	assert.Contains(t, messages[len(messages)-1].Content, "Telefone do paciente: "+testPhone)
}

func TestProcessSerializesTurnsPerPhone(t *testing.T) {
	f := newProcessorFixture(t)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.processor.Process(context.Background(), inbound(testPhone, "oi"))
		}()
	}
	wg.Wait()

	assert.Equal(t, 4, f.sender.count())
}
