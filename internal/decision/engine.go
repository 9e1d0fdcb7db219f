// Package decision scores a document from its chunk topics and context
// rules, independent of the LLM synthesis step.
package decision

import (
	"strings"

	"github.com/dgallion1/docjudge/internal/contextrules"
	"github.com/dgallion1/docjudge/internal/model"
)

// Recommendation is the final reading advice.
type Recommendation string

const (
	FullRead    Recommendation = "Full Read Recommended"
	KeyInfo     Recommendation = "Key Info Enough"
	NotRelevant Recommendation = "Not Relevant"
)

// Recommendation thresholds; each is an exclusive lower bound.
const (
	FullReadThreshold = 0.65
	KeyInfoThreshold  = 0.30

	ignorePenalty = 0.3
)

// Combined aggregates chunk results for scoring.
type Combined struct {
	Topics   []string               `json:"combined_topics"`
	Summary  string                 `json:"combined_summary"`
	Metadata model.DocumentMetadata `json:"metadata"`
}

// Engine applies context rules to combined chunk output.
type Engine struct {
	rules contextrules.Rules
}

func NewEngine(rules contextrules.Rules) *Engine {
	return &Engine{rules: rules}
}

// CombineResponses unions chunk topics in first-seen order and joins the
// chunk summaries with newlines.
func (e *Engine) CombineResponses(results []model.ChunkResult, meta model.DocumentMetadata) Combined {
	seen := map[string]bool{}
	topics := []string{}
	summaries := make([]string, 0, len(results))
	for _, r := range results {
		for _, t := range r.Topics {
			if !seen[t] {
				seen[t] = true
				topics = append(topics, t)
			}
		}
		summaries = append(summaries, r.Summary)
	}
	return Combined{
		Topics:   topics,
		Summary:  strings.Join(summaries, "\n"),
		Metadata: meta,
	}
}

// ComputeReadWorthiness returns the fraction of topics matching a priority
// topic, scaled by (0.5 + sensitivity), minus 0.3 per ignored topic, clamped
// to [0,1]. Matching is case-insensitive.
func (e *Engine) ComputeReadWorthiness(c Combined) float64 {
	if len(c.Topics) == 0 {
		return 0
	}
	priority := lowerSet(e.rules.PriorityTopics)
	ignored := lowerSet(e.rules.IgnoreTopics)

	matches := 0
	for _, t := range c.Topics {
		if priority[strings.ToLower(t)] {
			matches++
		}
	}
	base := float64(matches) / float64(len(c.Topics))
	score := base * (0.5 + e.rules.EffectiveSensitivity())

	for _, t := range c.Topics {
		if ignored[strings.ToLower(t)] {
			score -= ignorePenalty
		}
	}
	return clamp01(score)
}

// ComputeConfidence starts at 1, loses 0.2 when OCR was used and 0.1 when
// fewer than two chunks were processed.
func (e *Engine) ComputeConfidence(results []model.ChunkResult, meta model.DocumentMetadata) float64 {
	c := 1.0
	if meta.OCRUsed {
		c -= 0.2
	}
	if len(results) < 2 {
		c -= 0.1
	}
	return clamp01(c)
}

// FinalRecommendation maps a score to a label.
func FinalRecommendation(score float64) Recommendation {
	switch {
	case score > FullReadThreshold:
		return FullRead
	case score > KeyInfoThreshold:
		return KeyInfo
	default:
		return NotRelevant
	}
}

func lowerSet(items []string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, s := range items {
		m[strings.ToLower(s)] = true
	}
	return m
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}
