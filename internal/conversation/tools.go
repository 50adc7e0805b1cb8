package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/postclinics/clinic-agent/internal/clinic"
	"github.com/postclinics/clinic-agent/internal/knowledge"
	"github.com/postclinics/clinic-agent/internal/scheduling"
)

var weekdaysPT = [...]string{"Domingo", "Segunda", "Terça", "Quarta", "Quinta", "Sexta", "Sábado"}

// Toolset executes the model's tool calls against the scheduling engine and
// knowledge base. Every response is a Portuguese string handed back to the
// model, so failures are reported as text rather than errors.
type Toolset struct {
	engine    *scheduling.Engine
	knowledge knowledge.Searcher
	loc       *time.Location
	now       func() time.Time
}

// NewToolset wires the tool executor. searcher may be nil when no knowledge
// base is configured.
func NewToolset(engine *scheduling.Engine, searcher knowledge.Searcher, loc *time.Location) *Toolset {
	if engine == nil {
		panic("conversation: scheduling engine required")
	}
	if loc == nil {
		loc = time.Local
	}
	return &Toolset{engine: engine, knowledge: searcher, loc: loc, now: time.Now}
}

// Execute runs one parsed tool call and returns its textual output.
func (t *Toolset) Execute(ctx context.Context, call ToolCall) string {
	args := map[string]any{}
	trimmed := strings.TrimSpace(call.Args)
	if trimmed != "" {
		if err := json.Unmarshal([]byte(trimmed), &args); err != nil {
			return fmt.Sprintf("Error: Invalid JSON arguments: %s", trimmed)
		}
	}

	switch call.Name {
	case "check_availability":
		return t.checkAvailability(ctx, stringArg(args, "date_str"), stringArg(args, "service_name"))
	case "schedule_appointment":
		return t.scheduleAppointment(ctx,
			stringArg(args, "name"),
			stringArg(args, "phone"),
			stringArg(args, "datetime_str"),
			stringArg(args, "service_name"),
		)
	case "confirm_appointment":
		return t.confirmAppointment(ctx, intArg(args, "appointment_id"))
	case "cancel_appointment":
		return t.cancelAppointment(ctx, intArg(args, "appointment_id"))
	case "reschedule_appointment":
		return t.rescheduleAppointment(ctx, intArg(args, "appointment_id"), stringArg(args, "new_datetime_str"))
	case "get_available_services":
		return t.availableServices()
	case "find_patient_appointments":
		return t.findPatientAppointments(ctx, stringArg(args, "phone"))
	case "search_knowledge_base":
		return t.searchKnowledgeBase(ctx, stringArg(args, "query"))
	case "request_human_attendant":
		return "Sua solicitação foi encaminhada para um atendente humano. Por favor, aguarde um momento que entraremos em contato em breve."
	}
	return fmt.Sprintf("Tool '%s' not available.", call.Name)
}

// RequestsHandoff reports whether the tool escalates the conversation to a
// human attendant.
func RequestsHandoff(call ToolCall) bool {
	return call.Name == "request_human_attendant"
}

func (t *Toolset) checkAvailability(ctx context.Context, dateStr, serviceName string) string {
	if serviceName == "" {
		serviceName = clinic.DefaultProfessional
	}
	date, err := scheduling.ParseDate(dateStr, t.now().In(t.loc))
	if err != nil {
		return "Formato de data inválido. Use AAAA-MM-DD."
	}

	slots, info, err := t.engine.Availability(ctx, date, serviceName)
	if errors.Is(err, scheduling.ErrSundayClosed) {
		return "Clínica fechada aos Domingos."
	}
	if err != nil {
		return fmt.Sprintf("Error executing check_availability: %v", err)
	}
	if len(slots) == 0 {
		return fmt.Sprintf("Não há horários disponíveis para %s em %s.", serviceName, dateStr)
	}

	formatted := make([]string, 0, len(slots))
	for _, s := range slots {
		formatted = append(formatted, s.Format("15:04"))
	}
	return fmt.Sprintf("Horários disponíveis para %s (Profissional: %s) em %s: %s",
		serviceName, info.Professional, dateStr, strings.Join(formatted, ", "))
}

func (t *Toolset) scheduleAppointment(ctx context.Context, name, phone, datetimeStr, serviceName string) string {
	if serviceName == "" {
		serviceName = clinic.DefaultProfessional
	}
	startsAt, err := scheduling.ParseDateTime(datetimeStr, t.loc)
	if err != nil {
		return "Formato inválido. Use AAAA-MM-DD HH:MM."
	}

	created, err := t.engine.Create(ctx, scheduling.CreateParams{
		PatientName:  name,
		PatientPhone: phone,
		StartsAt:     startsAt,
		Service:      serviceName,
		Status:       scheduling.StatusConfirmed,
	})
	if err != nil {
		var conflict *scheduling.ConflictError
		if errors.As(err, &conflict) {
			return conflictMessage(conflict)
		}
		return fmt.Sprintf("Error executing schedule_appointment: %v", err)
	}
	return fmt.Sprintf("Agendamento confirmado [ID: %d] para %s, Serviço: %s com %s em %s.",
		created.ID, name, serviceName, created.Professional, datetimeStr)
}

func (t *Toolset) confirmAppointment(ctx context.Context, id int64) string {
	if _, err := t.engine.Confirm(ctx, id); err != nil {
		var statusErr *scheduling.StatusError
		switch {
		case errors.Is(err, scheduling.ErrNotFound):
			return "Agendamento não encontrado."
		case errors.As(err, &statusErr):
			return fmt.Sprintf("Agendamento %d está com status '%s' e não pode ser confirmado.", id, statusErr.Current)
		}
		return fmt.Sprintf("Error executing confirm_appointment: %v", err)
	}
	return fmt.Sprintf("Agendamento %d confirmado com sucesso!", id)
}

func (t *Toolset) cancelAppointment(ctx context.Context, id int64) string {
	_, already, err := t.engine.Cancel(ctx, id)
	if err != nil {
		if errors.Is(err, scheduling.ErrNotFound) {
			return "Agendamento não encontrado."
		}
		return fmt.Sprintf("Error executing cancel_appointment: %v", err)
	}
	if already {
		return "Este agendamento já está cancelado."
	}
	return fmt.Sprintf("Agendamento %d cancelado com sucesso.", id)
}

func (t *Toolset) rescheduleAppointment(ctx context.Context, id int64, newDatetimeStr string) string {
	newStart, err := scheduling.ParseDateTime(newDatetimeStr, t.loc)
	if err != nil {
		return "Formato inválido. Use AAAA-MM-DD HH:MM."
	}

	_, err = t.engine.Reschedule(ctx, id, newStart, false)
	if err != nil {
		var conflict *scheduling.ConflictError
		switch {
		case errors.Is(err, scheduling.ErrNotFound):
			return "Agendamento não encontrado para reagendar."
		case errors.Is(err, scheduling.ErrRescheduleCancelled):
			return "Não é possível reagendar um agendamento cancelado. Por favor, solicite um novo agendamento."
		case errors.As(err, &conflict):
			return conflictMessage(conflict)
		}
		return fmt.Sprintf("Error executing reschedule_appointment: %v", err)
	}
	return fmt.Sprintf("Agendamento %d reagendado para %s com sucesso.", id, newDatetimeStr)
}

func (t *Toolset) availableServices() string {
	var lines []string
	for _, s := range t.engine.Catalog().Services {
		note := ""
		if s.Note != "" {
			note = fmt.Sprintf(" (%s)", s.Note)
		}
		lines = append(lines, fmt.Sprintf("- %s%s", s.Name, note))
	}
	return "Serviços disponíveis na clínica:\n" + strings.Join(lines, "\n")
}

func (t *Toolset) findPatientAppointments(ctx context.Context, phone string) string {
	appointments, err := t.engine.ListActiveForContact(ctx, phone)
	if err != nil {
		return fmt.Sprintf("Error executing find_patient_appointments: %v", err)
	}
	if len(appointments) == 0 {
		return "Nenhum paciente encontrado com esse telefone."
	}

	p, err := t.engine.Patient(ctx, appointments[0].PatientID)
	if err != nil {
		return fmt.Sprintf("Error executing find_patient_appointments: %v", err)
	}

	lines := []string{fmt.Sprintf("Agendamentos de %s:", p.Name)}
	for _, appt := range appointments {
		weekday := weekdaysPT[int(appt.StartsAt.Weekday())]
		lines = append(lines, fmt.Sprintf("- [INTERNAL_ID:%d] %s, %s | %s | Status: %s",
			appt.ID, weekday, appt.StartsAt.Format("02/01/2006 às 15:04"), appt.Service, appt.Status))
	}
	return strings.Join(lines, "\n")
}

func (t *Toolset) searchKnowledgeBase(ctx context.Context, query string) string {
	var results []string
	if t.knowledge != nil {
		found, err := t.knowledge.Search(ctx, query, 2)
		if err != nil {
			return fmt.Sprintf("Error executing search_knowledge_base: %v", err)
		}
		results = found
	}
	if len(results) == 0 {
		lower := strings.ToLower(query)
		if strings.Contains(lower, "valor") || strings.Contains(lower, "preç") || strings.Contains(lower, "preco") {
			return "(SYSTEM: Nenhuma informação de preço encontrada na base. Use a ferramenta request_human_attendant IMEDIATAMENTE.)"
		}
		return "Nenhuma informação relevante encontrada na base de conhecimento. Se a dúvida persistir, encaminhe para um atendente utilizando request_human_attendant."
	}
	docs := make([]string, 0, len(results))
	for i, r := range results {
		docs = append(docs, fmt.Sprintf("Referência %d: %s", i+1, strings.TrimSpace(r)))
	}
	return strings.Join(docs, "\n\n")
}

func conflictMessage(c *scheduling.ConflictError) string {
	return fmt.Sprintf("Conflito de horário: Dr(a). %s já possui um agendamento das %s às %s.",
		c.Professional, c.BusyStart.Format("15:04"), c.BusyEnd.Format("15:04"))
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func intArg(args map[string]any, key string) int64 {
	switch v := args[key].(type) {
	case float64:
		return int64(v)
	case string:
		var n int64
		_, _ = fmt.Sscanf(v, "%d", &n)
		return n
	}
	return 0
}
