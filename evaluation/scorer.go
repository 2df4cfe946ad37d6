package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Scorer 比较输出与期望，返回 [0,1] 分数及附加指标
type Scorer interface {
	Score(ctx context.Context, c *Case, output string) (float64, map[string]float64, error)
}

// NewScorer returns a built-in scorer by name.
func NewScorer(name string) (Scorer, error) {
	switch name {
	case "", "exact":
		return &ExactMatchScorer{}, nil
	case "contains":
		return &ContainsScorer{}, nil
	case "json":
		return &JSONScorer{}, nil
	case "similarity":
		return &SimilarityScorer{}, nil
	default:
		return nil, fmt.Errorf("unknown scorer %q", name)
	}
}

// ExactMatchScorer scores based on exact string match, with partial credit for similarity.
type ExactMatchScorer struct{}

func (s *ExactMatchScorer) Score(ctx context.Context, c *Case, output string) (float64, map[string]float64, error) {
	if c.Expected == "" {
		return 1.0, nil, nil
	}

	expected := strings.TrimSpace(c.Expected)
	actual := strings.TrimSpace(output)
	if actual == expected {
		return 1.0, map[string]float64{"exact_match": 1.0}, nil
	}

	similarity := calculateSimilarity(actual, expected)
	return similarity, map[string]float64{
		"exact_match": 0.0,
		"similarity":  similarity,
	}, nil
}

// ContainsScorer scores based on whether output contains expected, ignoring case.
type ContainsScorer struct{}

func (s *ContainsScorer) Score(ctx context.Context, c *Case, output string) (float64, map[string]float64, error) {
	if c.Expected == "" {
		return 1.0, nil, nil
	}
	if strings.Contains(strings.ToLower(output), strings.ToLower(strings.TrimSpace(c.Expected))) {
		return 1.0, map[string]float64{"contains": 1.0}, nil
	}
	return 0.0, map[string]float64{"contains": 0.0}, nil
}

// JSONScorer scores based on JSON structure matching.
type JSONScorer struct{}

func (s *JSONScorer) Score(ctx context.Context, c *Case, output string) (float64, map[string]float64, error) {
	var expectedJSON, outputJSON interface{}

	if err := json.Unmarshal([]byte(c.Expected), &expectedJSON); err != nil {
		return 0, nil, fmt.Errorf("invalid expected JSON: %w", err)
	}
	if err := json.Unmarshal([]byte(output), &outputJSON); err != nil {
		return 0, map[string]float64{"valid_json": 0.0}, nil
	}

	score := compareJSON(expectedJSON, outputJSON)
	return score, map[string]float64{
		"valid_json":      1.0,
		"structure_match": score,
	}, nil
}

// SimilarityScorer 词集合 Jaccard 相似度
type SimilarityScorer struct{}

func (s *SimilarityScorer) Score(ctx context.Context, c *Case, output string) (float64, map[string]float64, error) {
	if c.Expected == "" {
		return 1.0, nil, nil
	}
	score := tokenJaccard(output, c.Expected)
	return score, map[string]float64{"token_jaccard": score}, nil
}

func calculateSimilarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	matches := 0
	shorter, longer := a, b
	if len(a) > len(b) {
		shorter, longer = b, a
	}
	for i := 0; i < len(shorter); i++ {
		if shorter[i] == longer[i] {
			matches++
		}
	}
	return float64(matches) / float64(len(longer))
}

func compareJSON(expected, actual interface{}) float64 {
	expectedBytes, _ := json.Marshal(expected)
	actualBytes, _ := json.Marshal(actual)
	return calculateSimilarity(string(expectedBytes), string(actualBytes))
}

func tokenJaccard(a, b string) float64 {
	ta := tokenSet(a)
	tb := tokenSet(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 1.0
	}
	inter := 0
	for t := range ta {
		if tb[t] {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	return float64(inter) / float64(union)
}

func tokenSet(s string) map[string]bool {
	out := make(map[string]bool)
	for _, f := range strings.Fields(strings.ToLower(s)) {
		f = strings.Trim(f, ".,;:!?\"'()[]{}")
		if f != "" {
			out[f] = true
		}
	}
	return out
}
