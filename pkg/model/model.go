package model

// Severity of a single compliance finding.
type Severity string

const (
	SeverityOK       Severity = "OK"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

type AnalysisReport struct {
	ExecutiveSummary  string             `json:"executiveSummary" yaml:"executiveSummary"`
	BudgetComparison  BudgetComparison   `json:"budgetComparison" yaml:"budgetComparison"`
	ProposalsAnalysis []ProposalAnalysis `json:"proposalsAnalysis" yaml:"proposalsAnalysis"`
}

type BudgetComparison struct {
	Categories []string         `json:"categories" yaml:"categories"`
	Proposals  []BudgetProposal `json:"proposals" yaml:"proposals"`
}

// IsEmpty reports whether there is nothing to compare.
func (b BudgetComparison) IsEmpty() bool {
	return len(b.Categories) == 0 || len(b.Proposals) == 0
}

type BudgetProposal struct {
	BidderName string    `json:"bidderName" yaml:"bidderName"`
	ValuesUSD  []float64 `json:"valuesUSD" yaml:"valuesUSD"`
}

// ValueAt returns the value for category idx, or zero when the bidder did not
// report one.
func (p BudgetProposal) ValueAt(idx int) float64 {
	if idx < 0 || idx >= len(p.ValuesUSD) {
		return 0
	}
	return p.ValuesUSD[idx]
}

type ProposalAnalysis struct {
	BidderName      string          `json:"bidderName" yaml:"bidderName"`
	Scores          ProposalScores  `json:"scores" yaml:"scores"`
	FindingsSummary FindingsSummary `json:"findingsSummary" yaml:"findingsSummary"`
	Findings        []Finding       `json:"findings" yaml:"findings"`
}

type ProposalScores struct {
	Legal          float64 `json:"legal" yaml:"legal"`
	Technical      float64 `json:"technical" yaml:"technical"`
	Financial      float64 `json:"financial" yaml:"financial"`
	ViabilityTotal float64 `json:"viabilityTotal" yaml:"viabilityTotal"`
}

type FindingsSummary struct {
	Total    int `json:"total" yaml:"total"`
	Critical int `json:"critical" yaml:"critical"`
	Warning  int `json:"warning" yaml:"warning"`
	OK       int `json:"ok" yaml:"ok"`
}

// Normalize recomputes Total from the three severity counts. Negative counts
// are clamped to zero.
func (s FindingsSummary) Normalize() FindingsSummary {
	s.Critical = max(s.Critical, 0)
	s.Warning = max(s.Warning, 0)
	s.OK = max(s.OK, 0)
	s.Total = s.Critical + s.Warning + s.OK
	return s
}

type Finding struct {
	RequirementName string   `json:"requirementName" yaml:"requirementName"`
	IsCompliant     bool     `json:"isCompliant" yaml:"isCompliant"`
	Severity        Severity `json:"severity" yaml:"severity"`
	Observation     string   `json:"observation" yaml:"observation"`
}

// Summarize counts findings by severity. Findings with an unknown severity
// are not counted.
func Summarize(findings []Finding) FindingsSummary {
	var s FindingsSummary
	for _, f := range findings {
		switch f.Severity {
		case SeverityCritical:
			s.Critical++
		case SeverityWarning:
			s.Warning++
		case SeverityOK:
			s.OK++
		}
	}
	return s.Normalize()
}
