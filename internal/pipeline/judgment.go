package pipeline

import (
	"github.com/dgallion1/docjudge/internal/contextrules"
	"github.com/dgallion1/docjudge/internal/decision"
	"github.com/dgallion1/docjudge/internal/model"
)

// DocumentJudgment is the merged result of one document run.
//
// Summary, Topics, Score, Recommendation and Confidence come from the
// decision engine; the Doc* fields, Insights, Uncertainties and the read
// decision come from the reasoner.
type DocumentJudgment struct {
	Summary        string                  `json:"summary"`
	DocSummary     string                  `json:"doc_summary"`
	Insights       []string                `json:"insights"`
	Uncertainties  []string                `json:"uncertainties"`
	DocConfidence  float64                 `json:"doc_confidence"`
	Topics         []string                `json:"topics"`
	Score          float64                 `json:"score"`
	Recommendation decision.Recommendation `json:"recommendation"`
	NeedFullRead   bool                    `json:"need_full_read"`
	ReadReasons    []string                `json:"read_reasons"`
	Confidence     float64                 `json:"confidence"`
	Metadata       model.DocumentMetadata  `json:"metadata"`
	Chunks         []model.ChunkResult     `json:"chunks"`
	Context        contextrules.Rules      `json:"context"`
	DocExtra       map[string]any          `json:"doc_extra,omitempty"`
	RunID          string                  `json:"run_id"`
	Backend        string                  `json:"backend"`
}

// DegradedChunks counts chunks with at least one failed backend call.
func (j *DocumentJudgment) DegradedChunks() int {
	n := 0
	for _, c := range j.Chunks {
		if c.Degraded {
			n++
		}
	}
	return n
}
