package reminder

import (
	"fmt"
	"time"
)

// Message24h is the day-before reminder asking the patient to confirm,
// reschedule or cancel by keyword.
func Message24h(clinicName, assistantName, patientName, service string, startsAt time.Time) string {
	return fmt.Sprintf(
		"Olá %s.\n\n"+
			"Aqui é a %s, da %s.\n\n"+
			"Lembramos que você possui uma consulta agendada para amanhã:\n\n"+
			"Data: %s\n"+
			"Horário: %s\n"+
			"Serviço: %s\n\n"+
			"Por favor, confirme sua presença respondendo:\n"+
			"SIM - Para confirmar\n"+
			"REAGENDAR - Para solicitar nova data\n"+
			"CANCELAR - Para desmarcar\n\n"+
			"Agradecemos a atenção.",
		patientName, assistantName, clinicName,
		startsAt.Format("02/01/2006"), startsAt.Format("15:04"), service,
	)
}

// Message3h is the same-day reminder sent a few hours before the slot.
func Message3h(patientName, service string, startsAt time.Time) string {
	return fmt.Sprintf(
		"Olá %s.\n\n"+
			"Lembrete: sua consulta é hoje às %s.\n"+
			"Serviço: %s\n\n"+
			"Estamos aguardando você.",
		patientName, startsAt.Format("15:04"), service,
	)
}
