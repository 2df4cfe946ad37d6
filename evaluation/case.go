package evaluation

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Case 一个评估用例
type Case struct {
	ID       string            `yaml:"id" json:"id"`
	Input    string            `yaml:"input" json:"input"`
	Expected string            `yaml:"expected" json:"expected"`
	Metadata map[string]string `yaml:"metadata,omitempty" json:"metadata,omitempty"`
	Timeout  time.Duration     `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// CaseResult 单个用例的评估结果
type CaseResult struct {
	CaseID     string             `json:"case_id"`
	Output     string             `json:"output"`
	Score      float64            `json:"score"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
	Duration   time.Duration      `json:"duration"`
	CostUSD    float64            `json:"cost_usd"`
	TimeFactor float64            `json:"time_factor"`
	CostFactor float64            `json:"cost_factor"`
	Hops       []string           `json:"hops,omitempty"`
	Failed     bool               `json:"failed"`
	Error      string             `json:"error,omitempty"`
	Cached     bool               `json:"cached,omitempty"`
}

// FailedCaseResult 执行抛错用例的失败哨兵：分数与时间/费用因子均为 0
func FailedCaseResult(caseID string, err error, d time.Duration) CaseResult {
	r := CaseResult{CaseID: caseID, Duration: d, Failed: true}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

type caseFile struct {
	Cases []Case `yaml:"cases"`
}

// LoadCases 从 YAML 文件读取用例，支持顶层列表或 {cases: [...]}
func LoadCases(path string) ([]Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cases: %w", err)
	}

	var cases []Case
	if err := yaml.Unmarshal(data, &cases); err != nil {
		var wrapped caseFile
		if err2 := yaml.Unmarshal(data, &wrapped); err2 != nil {
			return nil, fmt.Errorf("parse cases: %w", err)
		}
		cases = wrapped.Cases
	}

	seen := make(map[string]bool, len(cases))
	for i := range cases {
		if cases[i].ID == "" {
			cases[i].ID = fmt.Sprintf("case-%d", i+1)
		}
		if seen[cases[i].ID] {
			return nil, fmt.Errorf("duplicate case ID: %s", cases[i].ID)
		}
		seen[cases[i].ID] = true
	}
	if len(cases) == 0 {
		return nil, fmt.Errorf("%s: no cases", path)
	}
	return cases, nil
}
