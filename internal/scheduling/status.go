package scheduling

import "strings"

// StatusMetadata drives the dashboard legend for a status.
type StatusMetadata struct {
	Status      string
	Label       string
	Color       string
	Description string
}

var statusMetadata = map[string]StatusMetadata{
	StatusConfirmed: {
		Status:      StatusConfirmed,
		Label:       "Confirmado",
		Color:       "#16A34A",
		Description: "Consulta confirmada pelo paciente.",
	},
	StatusScheduled: {
		Status:      StatusScheduled,
		Label:       "Pendente",
		Color:       "#F59E0B",
		Description: "Aguardando confirmação do paciente.",
	},
	StatusRescheduled: {
		Status:      StatusRescheduled,
		Label:       "Reagendado",
		Color:       "#2563EB",
		Description: "Consulta reagendada e aguardando validação final.",
	},
	StatusCancelled: {
		Status:      StatusCancelled,
		Label:       "Cancelado",
		Color:       "#DC2626",
		Description: "Consulta cancelada.",
	},
}

var statusAliases = map[string]string{
	"pendente":              StatusScheduled,
	"aguardando":            StatusScheduled,
	"awaiting_confirmation": StatusScheduled,
	"reagendado":            StatusRescheduled,
	"confirmado":            StatusConfirmed,
	"cancelado":             StatusCancelled,
}

// NormalizeStatus maps free-text status strings onto the closed status set,
// falling back to the caller's default for unrecognized values.
func NormalizeStatus(status, defaultStatus string) string {
	key := strings.ToLower(strings.TrimSpace(status))
	if key == "" {
		return defaultStatus
	}
	if canonical, ok := statusAliases[key]; ok {
		key = canonical
	}
	if _, ok := statusMetadata[key]; ok {
		return key
	}
	return defaultStatus
}

// MetadataFor returns the display metadata for a status.
func MetadataFor(status string) StatusMetadata {
	return statusMetadata[NormalizeStatus(status, StatusScheduled)]
}
