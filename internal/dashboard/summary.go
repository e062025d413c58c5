package dashboard

import (
	"bytes"
	"html/template"

	"github.com/tinytelemetry/flowdash/internal/model"
)

// SummaryPrompt is shown instead of the label badges when no source IP is selected.
const SummaryPrompt = "Select a malicious IP to view the label summary."

const (
	benignColor = "green"
	attackColor = "red"
)

// BuildSummary counts the rows of the selected IP's view per summary label.
func BuildSummary(rows []model.FlowRecord, ip string) model.Summary {
	if ip == "" {
		return model.Summary{Placeholder: SummaryPrompt}
	}
	counts := make(map[string]int)
	for _, r := range rows {
		counts[r.Label]++
	}
	s := model.Summary{Badges: make([]model.Badge, 0, len(model.SummaryLabels))}
	for _, l := range model.SummaryLabels {
		color := attackColor
		if l == model.BenignLabel {
			color = benignColor
		}
		s.Badges = append(s.Badges, model.Badge{Label: l, Count: counts[l], Color: color})
	}
	return s
}

var summaryTemplate = template.Must(template.New("summary").Parse(
	`{{if .Placeholder}}<p class="summary-placeholder" style="text-align:center;font-style:italic;color:gray">{{.Placeholder}}</p>` +
		`{{else}}{{range .Badges}}<div class="summary-badge" style="border:2px solid {{.Color}};color:{{.Color}}"><h4>{{.Label}}: {{.Count}}</h4></div>{{end}}{{end}}`))

// RenderSummaryHTML renders the summary as an HTML fragment.
func RenderSummaryHTML(s model.Summary) (string, error) {
	var buf bytes.Buffer
	if err := summaryTemplate.Execute(&buf, s); err != nil {
		return "", err
	}
	return buf.String(), nil
}
