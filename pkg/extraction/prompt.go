package extraction

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

const systemPrompt = `You extract knowledge-graph facts from fantasy lore. Return only JSON that matches the requested schema.`

const instructionTemplate = `Analyze the text below and extract lore entities and the relationships between them.

1. "entities": unique characters, gods, places, factions and objects.
   - "canonical_name": the most common or official name (e.g. "King Deshret").
   - "aliases": OTHER names the text uses for the same entity (e.g. ["Al-Ahmar", "The Scarlet King"]). Use [] when there are none.
   - "label": one of {{join .Labels ", "}}.

2. "relationships": directed connections between entities named in "entities".
   - "source" and "target": the canonical names of the two entities.
   - "type": the relationship in UPPER_SNAKE_CASE, e.g. ALLIED_WITH.

Rules for relationships:
- Active voice only. Never use passive types such as WORSHIPPED_BY or CREATED_BY; turn them around instead.
- The source is the actor. "Jean was healed by Barbara" is (Barbara)-[HEALED]->(Jean).
- Parentage: the child is the source. "Diluc is the son of Crepus" is (Diluc)-[CHILD_OF]->(Crepus).
- Ancestry: use ANCESTOR_OF from the ancestor, never DESCENDED_FROM. "Candace descends from Deshret" is (King Deshret)-[ANCESTOR_OF]->(Candace).
- Worship: "The Eremites worship him" is (Eremites)-[WORSHIPS]->(King Deshret).
- Imprisonment: "Faruzan was trapped in ruins" is (Faruzan)-[TRAPPED_IN]->(Ruins).
{{- if .Vocabulary}}
- Use only these relationship types: {{join .Vocabulary ", "}}.
{{- end}}

Text to analyze:
{{.Text}}`

type promptData struct {
	Text       string
	Labels     []string
	Vocabulary []string
}

var promptFuncs = template.FuncMap{
	"join": strings.Join,
}

func parsePrompt() (*template.Template, error) {
	tmpl, err := template.New("extraction").Funcs(promptFuncs).Parse(instructionTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse extraction template: %w", err)
	}
	return tmpl, nil
}

func renderPrompt(tmpl *template.Template, data promptData) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render extraction prompt: %w", err)
	}
	return buf.String(), nil
}
