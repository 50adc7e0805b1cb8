package conversation

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/postclinics/clinic-agent/internal/clinic"
	"github.com/postclinics/clinic-agent/internal/scheduling"
	"github.com/postclinics/clinic-agent/internal/whatsapp"
	"github.com/postclinics/clinic-agent/pkg/logging"
)

const (
	handoffReply = "Encaminhei você para um atendente humano. " +
		"Esse canal humano é indicado para: assuntos fora de agendamento/reagendamento/cancelamento, " +
		"dúvidas financeiras ou preços, reclamações e urgências."
	rateLimitReply = "Estamos com alto volume de atendimento no momento. " +
		"Já encaminhei sua mensagem para um atendente humano para não atrasar seu suporte."
	genericErrorReply = "Tive uma instabilidade momentânea para processar sua mensagem. " +
		"Encaminhei para um atendente humano e vamos te responder em seguida."
)

var trailingPunctPattern = regexp.MustCompile(`[.!?]+$`)

// ProcessorConfig bounds one conversational turn.
type ProcessorConfig struct {
	MaxTextChars        int
	MaxProfileChars     int
	MaxToolOutputChars  int
	MaxInlineToolCalls  int
	MaxRepeatedSameCall int
	MaxToolRounds       int
	LLMMaxTokens        int
	HandoffTTL          time.Duration
}

func (c *ProcessorConfig) applyDefaults() {
	if c.MaxTextChars <= 0 {
		c.MaxTextChars = 1200
	}
	if c.MaxProfileChars <= 0 {
		c.MaxProfileChars = 600
	}
	if c.MaxToolOutputChars <= 0 {
		c.MaxToolOutputChars = 800
	}
	if c.MaxInlineToolCalls <= 0 {
		c.MaxInlineToolCalls = 3
	}
	if c.MaxRepeatedSameCall <= 0 {
		c.MaxRepeatedSameCall = 2
	}
	if c.MaxToolRounds <= 0 {
		c.MaxToolRounds = 3
	}
	if c.LLMMaxTokens <= 0 {
		c.LLMMaxTokens = 700
	}
	if c.HandoffTTL <= 0 {
		c.HandoffTTL = 15 * time.Minute
	}
}

// Processor runs one inbound message through the full pipeline: hand-off
// machine, scope tracking, fast paths, the agent loop with inline tool
// execution, reply sanitation and delivery. Turns for the same phone are
// serialized; different phones run concurrently.
type Processor struct {
	llm     LLMClient
	tools   *Toolset
	history *HistoryStore
	state   ContactState
	engine  *scheduling.Engine
	sender  whatsapp.Sender
	catalog *clinic.Config
	locks   *phoneLocks
	loc     *time.Location
	cfg     ProcessorConfig
	logger  *logging.Logger
	now     func() time.Time
}

// NewProcessor wires the pipeline. All dependencies are required except the
// logger.
func NewProcessor(
	llm LLMClient,
	tools *Toolset,
	history *HistoryStore,
	state ContactState,
	engine *scheduling.Engine,
	sender whatsapp.Sender,
	catalog *clinic.Config,
	loc *time.Location,
	cfg ProcessorConfig,
	logger *logging.Logger,
) *Processor {
	if llm == nil {
		panic("conversation: llm client required")
	}
	if tools == nil {
		panic("conversation: toolset required")
	}
	if history == nil {
		panic("conversation: history store required")
	}
	if state == nil {
		panic("conversation: contact state required")
	}
	if engine == nil {
		panic("conversation: scheduling engine required")
	}
	if sender == nil {
		panic("conversation: sender required")
	}
	if catalog == nil {
		panic("conversation: clinic catalog required")
	}
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = logging.Default()
	}
	cfg.applyDefaults()
	return &Processor{
		llm:     llm,
		tools:   tools,
		history: history,
		state:   state,
		engine:  engine,
		sender:  sender,
		catalog: catalog,
		locks:   newPhoneLocks(),
		loc:     loc,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// Process handles one accepted inbound message. Failures never reach the
// caller: the contact gets a fallback reply and enters the hand-off window.
func (p *Processor) Process(ctx context.Context, msg InboundMessage) {
	release := p.locks.Lock(msg.Phone)
	defer release()

	if err := p.processLocked(ctx, msg); err != nil {
		p.logger.Error("turn failed", "phone", msg.Phone, "message_id", msg.MessageID, "error", err)
		fallback := genericErrorReply
		if IsRateLimited(err) || IsContextTooLarge(err) {
			fallback = rateLimitReply
		}
		if stateErr := p.state.ActivateHandoff(ctx, msg.Phone, p.cfg.HandoffTTL); stateErr != nil {
			p.logger.Error("handoff activation failed", "phone", msg.Phone, "error", stateErr)
		}
		p.safeSend(ctx, msg.Phone, fallback)
	}
}

func (p *Processor) processLocked(ctx context.Context, msg InboundMessage) error {
	profile, err := p.history.LoadProfile(ctx, msg.Phone)
	if err != nil {
		p.logger.Error("profile lookup failed", "phone", msg.Phone, "error", err)
		profile = ""
	}
	profile = TruncateText(profile, p.cfg.MaxProfileChars)

	text := PreprocessIntent(TruncateText(msg.Text, p.cfg.MaxTextChars))

	active, err := p.state.HandoffActive(ctx, msg.Phone)
	if err != nil {
		return err
	}
	if active {
		if InSupportedScope(text) && DetectHandoffReason(text) == "" {
			if err := p.state.ClearHandoff(ctx, msg.Phone); err != nil {
				return err
			}
		} else {
			p.safeSend(ctx, msg.Phone, handoffReply)
			return nil
		}
	}

	if reason := DetectHandoffReason(text); reason != "" {
		p.logger.Info("handoff", "phone", msg.Phone, "reason", reason)
		if err := p.activateHandoff(ctx, msg.Phone); err != nil {
			return err
		}
		p.safeSend(ctx, msg.Phone, handoffReply)
		_ = p.state.ResetOutOfScope(ctx, msg.Phone)
		return nil
	}

	if InSupportedScope(text) {
		_ = p.state.ResetOutOfScope(ctx, msg.Phone)
	} else {
		attempts, err := p.state.IncrOutOfScope(ctx, msg.Phone)
		if err != nil {
			return err
		}
		p.logger.Info("out of scope", "phone", msg.Phone, "attempt", attempts, "text", TruncateText(text, 120))
		if attempts >= 2 {
			if err := p.activateHandoff(ctx, msg.Phone); err != nil {
				return err
			}
			p.safeSend(ctx, msg.Phone, handoffReply)
			_ = p.state.ResetOutOfScope(ctx, msg.Phone)
			return nil
		}
	}

	if p.tryFastPath(ctx, msg.Phone, text) {
		p.logger.Info("fast path", "phone", msg.Phone, "text", TruncateText(text, 80))
		return nil
	}

	sessionID := "zapi:" + msg.Phone
	history, err := p.history.Load(ctx, sessionID)
	if err != nil {
		p.logger.Error("history load failed", "phone", msg.Phone, "error", err)
		history = nil
	}

	agentInput := fmt.Sprintf("Telefone do paciente: %s\n%s\n%s", msg.Phone, profile, text)
	system := BuildSystemPrompt(p.catalog, p.now().In(p.loc))

	p.logger.Info("inbound", "phone", msg.Phone, "message_id", msg.MessageID, "text", text)

	finalText, err := p.complete(ctx, system, history, agentInput)
	if err != nil {
		return err
	}

	handoffRequested := false
	for round := 0; round < p.cfg.MaxToolRounds; round++ {
		calls := ParseToolCalls(finalText)
		if len(calls) == 0 {
			break
		}
		if len(calls) > p.cfg.MaxInlineToolCalls {
			p.logger.Warn("too many inline tool calls", "phone", msg.Phone, "count", len(calls))
			if err := p.activateHandoff(ctx, msg.Phone); err != nil {
				return err
			}
			p.safeSend(ctx, msg.Phone, genericErrorReply)
			return nil
		}

		var results []string
		seen := make(map[string]int)
		for _, call := range calls {
			key := call.Name + ":" + strings.TrimSpace(call.Args)
			seen[key]++
			if seen[key] > p.cfg.MaxRepeatedSameCall {
				p.logger.Warn("repeated inline tool call skipped", "phone", msg.Phone, "call", TruncateText(key, 120))
				continue
			}
			if RequestsHandoff(call) {
				handoffRequested = true
			}
			output := p.tools.Execute(ctx, call)
			p.logger.Info("tool executed", "phone", msg.Phone, "tool", call.Name, "round", round+1)
			results = append(results, fmt.Sprintf("Tool '%s' returned: %s", call.Name, TruncateText(output, p.cfg.MaxToolOutputChars)))
		}
		if len(results) == 0 {
			break
		}

		summary := TruncateText(strings.Join(results, "\n"), p.cfg.MaxTextChars)
		next := fmt.Sprintf("(SYSTEM: %s\nBased on these results, respond to the user in Portuguese.)", summary)
		// Tool follow-ups run in an isolated sub-session so loops cannot
		// snowball the shared history.
		finalText, err = p.complete(ctx, system, nil, next)
		if err != nil {
			return err
		}
	}

	reply, broken := SanitizeReply(finalText)
	if broken || handoffRequested || MentionsHandoff(reply) {
		if err := p.activateHandoff(ctx, msg.Phone); err != nil {
			return err
		}
	}

	sent := p.safeSend(ctx, msg.Phone, reply)
	p.logger.Info("outbound", "phone", msg.Phone, "success", sent.Success, "reply", TruncateText(reply, 100))

	history = append(history,
		ChatMessage{Role: ChatRoleUser, Content: text},
		ChatMessage{Role: ChatRoleAssistant, Content: reply},
	)
	if err := p.history.Save(ctx, sessionID, history); err != nil {
		p.logger.Error("history save failed", "phone", msg.Phone, "error", err)
	}
	return nil
}

// complete runs one completion, retrying once with a truncated isolated
// input when the provider rejects the context as oversized.
func (p *Processor) complete(ctx context.Context, system string, history []ChatMessage, input string) (string, error) {
	messages := make([]ChatMessage, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, ChatMessage{Role: ChatRoleUser, Content: input})

	resp, err := p.llm.Complete(ctx, LLMRequest{
		System:      system,
		Messages:    messages,
		MaxTokens:   p.cfg.LLMMaxTokens,
		Temperature: 0.3,
	})
	if err == nil {
		return resp.Text, nil
	}
	if !IsContextTooLarge(err) {
		return "", err
	}

	p.logger.Warn("oversized context, retrying reduced", "error", err)
	reduced := TruncateText(input, p.cfg.MaxTextChars)
	resp, err = p.llm.Complete(ctx, LLMRequest{
		System:      system,
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: reduced}},
		MaxTokens:   p.cfg.LLMMaxTokens,
		Temperature: 0.3,
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// tryFastPath answers reminder confirmations and bare greetings without a
// model round trip. Returns true when the turn was fully handled.
func (p *Processor) tryFastPath(ctx context.Context, phone, text string) bool {
	normalized := strings.ToLower(strings.TrimSpace(text))
	normalized = strings.TrimSpace(trailingPunctPattern.ReplaceAllString(normalized, ""))

	if normalized == "quero confirmar minha consulta" {
		appointments, err := p.engine.ListActiveForContact(ctx, phone)
		if err != nil {
			p.logger.Error("fast path lookup failed", "phone", phone, "error", err)
			return false
		}
		if len(appointments) == 0 {
			p.safeSend(ctx, phone, "Não encontrei consulta ativa para este contato. Deseja agendar uma nova?")
			return true
		}
		if len(appointments) > 1 {
			limit := len(appointments)
			if limit > 5 {
				limit = 5
			}
			var options []string
			for _, appt := range appointments[:limit] {
				options = append(options, "- "+p.appointmentSummary(ctx, &appt))
			}
			p.safeSend(ctx, phone,
				"Encontrei mais de uma consulta vinculada ao seu contato. "+
					"Me diga qual deseja confirmar (data/horário):\n"+strings.Join(options, "\n"))
			return true
		}

		if _, err := p.engine.Confirm(ctx, appointments[0].ID); err != nil {
			p.logger.Error("fast path confirm failed", "phone", phone, "appointment_id", appointments[0].ID, "error", err)
			return false
		}
		p.safeSend(ctx, phone, "Sua presença foi confirmada. Aguardamos você.")
		return true
	}

	if IsSmallTalk(normalized) {
		p.safeSend(ctx, phone, fmt.Sprintf(
			"Olá. Sou %s da %s. "+
				"Posso auxiliar com agendamentos, reagendamentos ou cancelamentos de consultas. "+
				"Para outros assuntos, digite 'Falar com atendente'.",
			p.catalog.AssistantName, p.catalog.Name))
		return true
	}

	return false
}

func (p *Processor) appointmentSummary(ctx context.Context, appt *scheduling.Appointment) string {
	name := ""
	if pat, err := p.engine.Patient(ctx, appt.PatientID); err == nil {
		name = pat.Name
	}
	service := clinic.Canonicalize(appt.Service)
	return fmt.Sprintf("%s - %s com %s em %s", name, service, appt.Professional, appt.StartsAt.Format("02/01/2006 às 15:04"))
}

func (p *Processor) activateHandoff(ctx context.Context, phone string) error {
	return p.state.ActivateHandoff(ctx, phone, p.cfg.HandoffTTL)
}

func (p *Processor) safeSend(ctx context.Context, phone, text string) whatsapp.SendResult {
	result := p.sender.SendText(ctx, phone, text)
	if !result.Success {
		p.logger.Error("send failed", "phone", phone, "status", result.StatusCode, "error", result.ErrorMessage)
	}
	return result
}
