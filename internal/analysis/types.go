package analysis

// RiskLevel is a coarse label derived from a damage grade or an importance value.
type RiskLevel string

const (
	RiskLow              RiskLevel = "low"
	RiskModerate         RiskLevel = "moderate"
	RiskElevated         RiskLevel = "elevated"
	RiskHigh             RiskLevel = "high"
	RiskSevere           RiskLevel = "severe"
	RiskProtective       RiskLevel = "protective"
	RiskHighlyProtective RiskLevel = "highly_protective"
)

type Contributor struct {
	Name         string  `json:"name"`
	Contribution float64 `json:"contribution"`
}

// Breakdown holds the five component scores before averaging.
type Breakdown struct {
	Floors         float64 `json:"floors"`
	Age            float64 `json:"age"`
	Area           float64 `json:"area"`
	Foundation     float64 `json:"foundation"`
	Superstructure float64 `json:"superstructure"`
}

// Sum adds the component scores.
func (b Breakdown) Sum() float64 {
	return b.Floors + b.Age + b.Area + b.Foundation + b.Superstructure
}

type ScoreResult struct {
	DamageGrade       int                `json:"damage_grade"`
	RiskLevel         RiskLevel          `json:"risk_level"`
	RawScore          float64            `json:"raw_score"`
	FeatureImportance map[string]float64 `json:"feature_importance"`
	Breakdown         Breakdown          `json:"breakdown"`
}
