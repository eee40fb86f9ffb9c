package models

// QADecision is the outcome of one visual quality audit.
type QADecision string

const (
	QAApproved       QADecision = "APPROVED"
	QARepairRequired QADecision = "REPAIR_REQUIRED"
	QARejected       QADecision = "REJECTED"
)

// DefectAction names how a defect can be fixed.
type DefectAction string

const (
	DefectActionInpaint    DefectAction = "inpaint"    // Localized edit of the existing candidate
	DefectActionRegenerate DefectAction = "regenerate" // Full regeneration from the prompt
)

// QADefect is one actionable problem found by the critic.
type QADefect struct {
	Area        string       `json:"area"        validate:"required"`
	Severity    float64      `json:"severity"    validate:"gte=0,lte=1"`
	Description string       `json:"description"`
	Action      DefectAction `json:"action_type"`
}

// Repairable reports whether the defect can be fixed with a localized
// edit instead of a full regeneration.
func (d *QADefect) Repairable() bool {
	return d.Action == DefectActionInpaint && d.Area != ""
}

// QAReport is the verdict of the identity/quality comparison for one
// candidate image.
type QAReport struct {
	Consistent    bool       `json:"is_consistent"`
	IdentityScore float64    `json:"identity_score"  validate:"gte=0,lte=1"`
	SemanticScore float64    `json:"semantic_score"  validate:"gte=0,lte=1"`
	Defects       []QADefect `json:"defects"`
	Decision      QADecision `json:"decision"        validate:"required,oneof=APPROVED REPAIR_REQUIRED REJECTED"`
}

// RepairableDefect returns the first defect that can be repaired with a
// localized edit, or nil when regeneration is the only option.
func (r *QAReport) RepairableDefect() *QADefect {
	for i := range r.Defects {
		if r.Defects[i].Repairable() {
			return &r.Defects[i]
		}
	}

	return nil
}

// MaxSeverity returns the highest defect severity in the report.
func (r *QAReport) MaxSeverity() float64 {
	max := 0.0
	for _, d := range r.Defects {
		if d.Severity > max {
			max = d.Severity
		}
	}

	return max
}

// BoundingBox is a detected image region, normalized to the 0-1000
// coordinate space used by the detection capability: ymin, xmin, ymax, xmax.
type BoundingBox [4]int
