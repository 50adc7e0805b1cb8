package clinic

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// Service describes one catalog entry.
type Service struct {
	Name         string
	Duration     int // minutes
	Professional string
	Note         string
}

// Block is a contiguous working interval within a day, "HH:MM" bounds.
type Block struct {
	Start string
	End   string
}

// Config fixes one clinic's identity, catalog and working schedule.
type Config struct {
	Name          string
	AssistantName string
	Services      []Service
	// Weekday blocks keyed by professional; professionals absent from the
	// map fall back to Default (Mon-Fri) or Saturday blocks.
	Schedules map[string][]Block
	Saturday  []Block
	Default   []Block

	// Hours is the human readable schedule shown to patients.
	Hours              string
	CancellationPolicy string
}

const (
	// DefaultDuration is used when a service cannot be resolved.
	DefaultDuration = 45
	// DefaultProfessional is the catch-all agenda.
	DefaultProfessional = "Clínica Geral"

	fuzzyCutoff = 0.6
)

// serviceAliases maps legacy or colloquial names onto catalog names.
// Keys are compared after normalization.
var serviceAliases = map[string]string{
	"odontopediatria (retorno)": "Odontopediatria (Consulta)",
}

// Reabilitare returns the fixed configuration for the clinic this
// deployment serves.
func Reabilitare() *Config {
	return &Config{
		Name:          "Espaço Interativo Reabilitare",
		AssistantName: "Cora",
		Services: []Service{
			{Name: "Odontopediatria (1ª vez)", Duration: 60, Professional: DefaultProfessional},
			{Name: "Odontopediatria (Consulta)", Duration: 40, Professional: DefaultProfessional},
			{Name: "Pacientes Especiais (1ª vez)", Duration: 60, Professional: DefaultProfessional},
			{Name: "Pacientes Especiais (Retorno)", Duration: 40, Professional: DefaultProfessional},
			{Name: "Implante", Duration: 40, Professional: DefaultProfessional},
			{Name: "Clínica Geral", Duration: 40, Professional: DefaultProfessional},
			{Name: "Ortodontia", Duration: 40, Professional: "Ortodontia", Note: "Apenas dias 24 e 25 de Fev"},
			{Name: "Fonoaudióloga miofuncional", Duration: 40, Professional: DefaultProfessional},
		},
		Schedules: map[string][]Block{
			"Ortodontia": {{Start: "08:00", End: "11:30"}, {Start: "13:00", End: "17:30"}},
		},
		Saturday: []Block{{Start: "09:00", End: "13:00"}},
		Default:  []Block{{Start: "09:00", End: "17:30"}},

		Hours: "Ortodontia: Segunda a Sexta 08:00–11:30 / 13:00–17:30\n" +
			"Demais serviços: Segunda a Sexta 09:00–17:30\n" +
			"Sábados (quinzenalmente): 09:00–13:00",
		CancellationPolicy: "Cancelamentos devem ser feitos com 24h de antecedência.",
	}
}

// Canonicalize maps aliased service names onto their canonical catalog name.
// Unknown names pass through unchanged.
func Canonicalize(serviceName string) string {
	cleaned := strings.TrimSpace(serviceName)
	if cleaned == "" {
		return cleaned
	}
	if canonical, ok := serviceAliases[normalizeKey(cleaned)]; ok {
		return canonical
	}
	return cleaned
}

// ServiceInfo resolves duration and professional for a (possibly misspelled)
// service name. It never fails: exact match, then best fuzzy match above the
// similarity cutoff, then substring containment, then the clinic default.
func (c *Config) ServiceInfo(serviceName string) Service {
	fallback := Service{
		Name:         DefaultProfessional,
		Duration:     DefaultDuration,
		Professional: DefaultProfessional,
	}
	query := normalizeKey(Canonicalize(serviceName))
	if query == "" {
		return fallback
	}

	var (
		best      *Service
		bestRatio float64
	)
	for i := range c.Services {
		candidate := normalizeKey(Canonicalize(c.Services[i].Name))
		if candidate == query {
			return c.Services[i]
		}
		if ratio := similarity(query, candidate); ratio > bestRatio {
			bestRatio = ratio
			best = &c.Services[i]
		}
	}
	if best != nil && bestRatio >= fuzzyCutoff {
		return *best
	}

	for i := range c.Services {
		candidate := normalizeKey(Canonicalize(c.Services[i].Name))
		if strings.Contains(candidate, query) || strings.Contains(query, candidate) {
			return c.Services[i]
		}
	}

	return fallback
}

// BlocksFor selects the work blocks for a professional on a weekday.
// weekday follows time.Weekday (Sunday == 0); Sundays have no blocks.
func (c *Config) BlocksFor(professional string, weekday int) []Block {
	if weekday == 0 {
		return nil
	}
	if blocks, ok := c.Schedules[professional]; ok {
		return blocks
	}
	if weekday == 6 {
		return c.Saturday
	}
	return c.Default
}

func normalizeKey(s string) string {
	folded := strings.ToLower(strings.TrimSpace(s))
	return strings.Join(strings.Fields(folded), " ")
}

func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := len([]rune(a))
	if l := len([]rune(b)); l > longest {
		longest = l
	}
	if longest == 0 {
		return 0
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(longest)
}
