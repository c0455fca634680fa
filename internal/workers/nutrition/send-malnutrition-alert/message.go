package sendmalnutritionalert

import (
	"fmt"
	"sort"
	"strings"
	"text/template"

	"malnutrition-workers/internal/engine/assessment"
)

type alertView struct {
	PatientID    string
	AssessmentID string
	Assessment   assessment.Report
	ZScores      string
}

var bodyTemplate = template.Must(template.New("alert").Funcs(template.FuncMap{
	"pct":  func(v float64) string { return fmt.Sprintf("%.0f%%", v*100) },
	"join": strings.Join,
}).Parse(`Malnutrition alert for patient {{.PatientID}}

Diagnosis:  {{.Assessment.PrimaryDiagnosis}}
Severity:   {{.Assessment.Severity}}
Risk level: {{.Assessment.RiskLevel}}
Confidence: {{pct .Assessment.Confidence}} ({{.Assessment.ConfidenceLevel}})
{{- if .Assessment.ReviewRequired}}
Clinical review required before acting on this result.
{{- end}}
{{- if .Assessment.Partial}}
Partial result, missing: {{join .Assessment.MissingIndicators ", "}}
{{- end}}

Z-scores: {{.ZScores}}
{{- with .Assessment.RiskFactors}}

Risk factors:
{{- range .}}
  - {{.}}
{{- end}}
{{- end}}
{{- with .Assessment.TreatmentPlan.ImmediateActions}}

Immediate actions:
{{- range .}}
  - {{.}}
{{- end}}
{{- end}}
{{- with .Assessment.TreatmentPlan.EmergencySigns}}

Refer immediately if:
{{- range .}}
  - {{.}}
{{- end}}
{{- end}}

Assessment ID: {{.AssessmentID}}
`))

// subject fits the 100 character SNS subject limit.
func subject(in *Input) string {
	s := fmt.Sprintf("[%s risk] %s - patient %s", in.Assessment.RiskLevel, in.Assessment.PrimaryDiagnosis, in.PatientID)
	if len(s) > 100 {
		s = s[:100]
	}
	return s
}

func renderBody(in *Input) (string, error) {
	var b strings.Builder
	err := bodyTemplate.Execute(&b, alertView{
		PatientID:    in.PatientID,
		AssessmentID: in.AssessmentID,
		Assessment:   in.Assessment,
		ZScores:      formatZScores(in.Assessment.ZScores),
	})
	if err != nil {
		return "", fmt.Errorf("render alert body: %w", err)
	}
	return b.String(), nil
}

func formatZScores(z map[string]float64) string {
	if len(z) == 0 {
		return "none"
	}
	names := make([]string, 0, len(z))
	for name := range z {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s %.2f", name, z[name])
	}
	return strings.Join(parts, ", ")
}
