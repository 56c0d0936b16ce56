package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"

	app "github.com/turtacn/SafeScan/internal/application/analysis"
	domain "github.com/turtacn/SafeScan/internal/domain/analysis"
	"github.com/turtacn/SafeScan/internal/domain/scoring"
	"github.com/turtacn/SafeScan/internal/domain/substance"
)

// colorRisk paints a display-risk label.
func colorRisk(label string) string {
	switch label {
	case scoring.DisplaySafe: // scoring.RiskSafe has the same value
		return color.GreenString(label)
	case scoring.DisplayModerateRisk, scoring.RiskLow:
		return color.YellowString(label)
	default:
		return color.RedString(label)
	}
}

func percent(c float64) string {
	return strconv.Itoa(int(c*100+0.5)) + "%"
}

// detectionRows flattens the three lists for table output.
func detectionRows(d substance.Detections) [][]string {
	rows := make([][]string, 0, d.Total())
	add := func(kind substance.Kind, list []substance.Detection) {
		for _, det := range list {
			grade := string(det.Severity)
			if kind == substance.KindPFAS {
				grade = det.CASNumber
			} else if det.Category != "" {
				grade = string(det.Category)
			}
			rows = append(rows, []string{string(kind), det.Name, grade, percent(det.Confidence), truncate(det.Source, 40)})
		}
	}
	add(substance.KindAllergen, d.Allergens)
	add(substance.KindPFAS, d.PFAS)
	add(substance.KindOtherConcern, d.OtherConcerns)
	return rows
}

var detectionHeaders = []string{"Kind", "Substance", "Severity/CAS", "Confidence", "Source"}

// analysisView renders an AnalyzeResponse. JSON output is the response itself.
type analysisView struct {
	resp *app.AnalyzeResponse
}

func (v analysisView) MarshalJSON() ([]byte, error) { return json.Marshal(v.resp) }

func (v analysisView) TableHeaders() []string { return detectionHeaders }

func (v analysisView) TableRows() [][]string {
	if v.resp == nil || v.resp.Analysis == nil {
		return nil
	}
	return detectionRows(v.resp.Analysis.Detections)
}

func (v analysisView) String() string {
	if v.resp == nil || v.resp.Analysis == nil {
		return "no analysis"
	}
	r := v.resp.Analysis
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (%s, %s)\n", r.ProductName, r.Brand, r.Retailer)
	fmt.Fprintf(&sb, "URL:         %s\n", r.ProductURL)
	fmt.Fprintf(&sb, "Harm score:  %d/100  %s\n", r.HarmScore, colorRisk(r.DisplayRisk()))
	fmt.Fprintf(&sb, "Risk level:  %s\n", r.RiskLevel())
	fmt.Fprintf(&sb, "Confidence:  %s\n", percent(r.Confidence))
	if r.Method != "" {
		fmt.Fprintf(&sb, "Method:      %s\n", r.Method)
	}
	if v.resp.Cached && v.resp.CacheAgeSeconds != nil {
		fmt.Fprintf(&sb, "Cached:      %ds ago\n", *v.resp.CacheAgeSeconds)
	}
	if r.Note != "" {
		fmt.Fprintf(&sb, "Note:        %s\n", r.Note)
	}
	if r.Usage.Total() > 0 {
		fmt.Fprintf(&sb, "Tokens:      %d\n", r.Usage.Total())
	}
	if len(r.Ingredients) > 0 {
		fmt.Fprintf(&sb, "Ingredients: %s\n", truncate(strings.Join(r.Ingredients, ", "), 200))
	}
	if r.Detections.IsEmpty() {
		sb.WriteString("\nNo harmful substances detected.")
		return sb.String()
	}
	sb.WriteString("\n")
	sb.WriteString(strings.TrimRight(FormatTable(detectionHeaders, detectionRows(r.Detections)), "\n"))
	return sb.String()
}

// scoreView renders a standalone score calculation.
type scoreView struct {
	HarmScore    int               `json:"harm_score"`
	OverallScore int               `json:"overall_score"`
	RiskLevel    string            `json:"risk_level"`
	DisplayRisk  string            `json:"display_risk"`
	Breakdown    scoring.Breakdown `json:"breakdown"`
}

func newScoreView(res scoring.Result) scoreView {
	return scoreView{
		HarmScore:    res.HarmScore,
		OverallScore: res.OverallScore(),
		RiskLevel:    scoring.RiskLevel(res.HarmScore),
		DisplayRisk:  scoring.DisplayRisk(res.HarmScore),
		Breakdown:    res.Breakdown,
	}
}

func (v scoreView) String() string {
	b := v.Breakdown
	var sb strings.Builder
	fmt.Fprintf(&sb, "Harm score:    %d/100  %s\n", v.HarmScore, colorRisk(v.DisplayRisk))
	fmt.Fprintf(&sb, "Safety score:  %d/100\n", v.OverallScore)
	fmt.Fprintf(&sb, "Risk level:    %s\n", v.RiskLevel)
	fmt.Fprintf(&sb, "Allergens:     %.1f\n", b.Allergens)
	fmt.Fprintf(&sb, "PFAS:          %.1f\n", b.PFAS)
	fmt.Fprintf(&sb, "Other:         %.1f\n", b.OtherConcerns)
	fmt.Fprintf(&sb, "Multiplier:    x%.2f\n", b.Multiplier)
	fmt.Fprintf(&sb, "Low-conf. pen: %.1f\n", b.ConfidencePenalty)
	fmt.Fprintf(&sb, "Floor applied: %t", b.FloorApplied)
	return sb.String()
}

// matchView renders a knowledge-base match.
type matchView struct {
	substance.MatchResult
}

func (v matchView) TableHeaders() []string { return detectionHeaders }

func (v matchView) TableRows() [][]string { return detectionRows(v.Detections()) }

func (v matchView) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Scanned %d components, confidence %s (%s)\n", v.Scanned, percent(v.Confidence), v.Method)
	if v.Detections().IsEmpty() {
		sb.WriteString("No matches.")
		return sb.String()
	}
	sb.WriteString(strings.TrimRight(FormatTable(detectionHeaders, v.TableRows()), "\n"))
	return sb.String()
}

// validationLogView renders a page of validation records.
type validationLogView struct {
	page *app.ValidationLogPage
}

func (v validationLogView) MarshalJSON() ([]byte, error) { return json.Marshal(v.page) }

func (v validationLogView) TableHeaders() []string {
	return []string{"Time", "Type", "Product", "Substance", "Reason"}
}

func (v validationLogView) TableRows() [][]string {
	if v.page == nil {
		return nil
	}
	rows := make([][]string, 0, len(v.page.Logs))
	for _, l := range v.page.Logs {
		rows = append(rows, validationRow(l))
	}
	return rows
}

// flaggedView renders the most rejected substances.
type flaggedView []domain.FlaggedSubstance

func (v flaggedView) TableHeaders() []string {
	return []string{"Substance", "Type", "Count"}
}

func (v flaggedView) TableRows() [][]string {
	rows := make([][]string, 0, len(v))
	for _, f := range v {
		rows = append(rows, flaggedRow(f))
	}
	return rows
}

func validationRow(l *domain.ValidationRecord) []string {
	reason := l.Source
	if r, ok := l.Details["reason"].(string); ok && r != "" {
		reason = r
	}
	return []string{
		l.Timestamp.Local().Format("2006-01-02 15:04"),
		l.LogType,
		truncate(l.ProductName, 32),
		l.SubstanceName,
		truncate(reason, 48),
	}
}

func flaggedRow(f domain.FlaggedSubstance) []string {
	return []string{f.SubstanceName, f.LogType, strconv.Itoa(f.TimesFlagged)}
}

// statsView renders validation accuracy over a window.
type statsView struct {
	*domain.ValidationStats
}

func (v statsView) MarshalJSON() ([]byte, error) { return json.Marshal(v.ValidationStats) }

func (v statsView) String() string {
	s := v.ValidationStats
	var sb strings.Builder
	fmt.Fprintf(&sb, "Last %d days\n", s.DaysAnalyzed)
	fmt.Fprintf(&sb, "Products analyzed:  %d\n", s.TotalProductsAnalyzed)
	fmt.Fprintf(&sb, "Invalid allergens:  %d\n", s.TotalInvalidAllergens)
	fmt.Fprintf(&sb, "Invalid PFAS:       %d\n", s.TotalInvalidPFAS)
	fmt.Fprintf(&sb, "Accuracy:           %.1f%%", s.AccuracyRate)
	if len(s.MostProblematic) == 0 {
		return sb.String()
	}
	rows := make([][]string, 0, len(s.MostProblematic))
	for _, p := range s.MostProblematic {
		rows = append(rows, []string{truncate(p.ProductName, 40), strconv.Itoa(p.InvalidCount), p.ProductURL})
	}
	sb.WriteString("\n\n")
	sb.WriteString(strings.TrimRight(FormatTable([]string{"Product", "Invalid", "URL"}, rows), "\n"))
	return sb.String()
}
