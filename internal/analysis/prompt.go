package analysis

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Briefing is the user input for one analysis.
type Briefing struct {
	ProjectTitle string
	Niche        string
	Content      string

	// PromptManipulation and Attachments are honoured only for paid plans.
	PromptManipulation string
	Attachments        []string
}

// BuildPrompt renders the user prompt. The answer format it requests is the
// one ParseSections reads.
func BuildPrompt(b Briefing, attachments string) string {
	var sb strings.Builder

	niche := b.Niche
	if niche == "" {
		niche = "Não especificado"
	}

	sb.WriteString("## Briefing para Análise\n")
	fmt.Fprintf(&sb, "**Título do Projeto:** %s\n", b.ProjectTitle)
	fmt.Fprintf(&sb, "**Nicho de Mercado:** %s\n\n", niche)
	sb.WriteString("### Conteúdo do Briefing:\n")
	sb.WriteString(b.Content)
	sb.WriteString("\n")

	if attachments != "" {
		sb.WriteString("\n### Conteúdo de Arquivos Anexos:\n")
		sb.WriteString(attachments)
		sb.WriteString("\n")
	}
	if b.PromptManipulation != "" {
		sb.WriteString("\n### Instruções Adicionais:\n")
		sb.WriteString(b.PromptManipulation)
		sb.WriteString("\n")
	}

	sb.WriteString(answerFormat)
	return sb.String()
}

const answerFormat = `
---

## Formato da Resposta
Responda somente com linhas no formato "chave: valor", usando as chaves:
analise: avaliação da clareza e organização do briefing
perguntas: uma pergunta por linha para completar o briefing
oportunidades: uma oportunidade por linha
cenarios: um cenário ainda não validado por linha

Se o briefing tiver conteúdo discriminatório, abusivo ou ilegal, responda apenas:
response: O briefing fornecido contém conteúdo que não pode ser analisado.
`

// DecodeAttachments turns data URLs into prompt text. Text files are decoded;
// PDFs are passed through as base64.
func DecodeAttachments(files []string) (string, error) {
	var sb strings.Builder

	for _, f := range files {
		meta, data, ok := strings.Cut(f, ",")
		if !ok {
			return "", ErrUnsupportedAttachment
		}

		switch {
		case strings.Contains(meta, "text/"):
			raw, err := base64.StdEncoding.DecodeString(data)
			if err != nil {
				return "", fmt.Errorf("%w: invalid base64", ErrUnsupportedAttachment)
			}
			fmt.Fprintf(&sb, "\n--- Arquivo de Texto ---\n%s\n--- Fim do Arquivo ---\n", raw)
		case strings.Contains(meta, "application/pdf"):
			fmt.Fprintf(&sb, "\n--- Arquivo PDF (base64) ---\n%s\n--- Fim do Arquivo ---\n", data)
		default:
			return "", ErrUnsupportedAttachment
		}
	}

	return sb.String(), nil
}
