package analysis

import "strings"

// Section keys in the model answer.
const (
	SectionAnalise       = "analise"
	SectionPerguntas     = "perguntas"
	SectionOportunidades = "oportunidades"
	SectionCenarios      = "cenarios"
	SectionResponse      = "response"
)

// Sections is the parsed model answer.
type Sections struct {
	Analise       string   `json:"analise,omitempty"`
	Perguntas     []string `json:"perguntas,omitempty"`
	Oportunidades []string `json:"oportunidades,omitempty"`
	Cenarios      []string `json:"cenarios,omitempty"`

	// Response carries a refusal or a plain message instead of an analysis.
	Response string `json:"response,omitempty"`
}

// ParseSections reads "key: value" lines. Repeated list keys accumulate,
// repeated scalar keys are joined with a space, and unknown keys and lines
// without a value are skipped. Only the first colon separates key from value.
func ParseSections(text string) Sections {
	var s Sections

	for _, line := range strings.Split(text, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = normalizeKey(key)
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}

		switch key {
		case SectionAnalise:
			s.Analise = joinScalar(s.Analise, value)
		case SectionPerguntas:
			s.Perguntas = append(s.Perguntas, value)
		case SectionOportunidades:
			s.Oportunidades = append(s.Oportunidades, value)
		case SectionCenarios:
			s.Cenarios = append(s.Cenarios, value)
		case SectionResponse:
			s.Response = joinScalar(s.Response, value)
		}
	}

	return s
}

// IsEmpty reports whether no known section was found.
func (s Sections) IsEmpty() bool {
	return s.Analise == "" && s.Response == "" &&
		len(s.Perguntas) == 0 && len(s.Oportunidades) == 0 && len(s.Cenarios) == 0
}

// normalizeKey strips list markers and markdown emphasis: "- **Perguntas**" → "perguntas".
func normalizeKey(key string) string {
	key = strings.TrimSpace(key)
	key = strings.TrimLeft(key, "-*# ")
	key = strings.TrimRight(key, "* ")
	return strings.ToLower(key)
}

func joinScalar(cur, next string) string {
	if cur == "" {
		return next
	}
	return cur + " " + next
}
