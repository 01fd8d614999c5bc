package health

import (
	"errors"
	"strings"
)

// SymptomAnalysis 症状分析结果，仅提供一般性建议，不做诊断。
type SymptomAnalysis struct {
	Symptom        string   `json:"symptom"`
	PossibleCauses []string `json:"possible_causes"`
	Advice         string   `json:"advice"`
}

// Validate checks the fields a model answer must carry.
func (a SymptomAnalysis) Validate() error {
	if strings.TrimSpace(a.Symptom) == "" {
		return errors.New("symptom is required")
	}
	if strings.TrimSpace(a.Advice) == "" {
		return errors.New("advice is required")
	}
	return nil
}
