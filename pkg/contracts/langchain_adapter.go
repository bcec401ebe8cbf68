package contracts

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tmc/langchaingo/llms"
)

// langchainExtractor adapts a langchaingo llms.Model to the Extractor interface.
// This is the only file in the core that imports langchaingo, keeping Extractor
// itself free of any concrete AI backend per the coordination layer's scope.
type langchainExtractor struct {
	model  llms.Model
	prompt string
}

// NewLangchainExtractor wraps model as an Extractor, using prompt as the system
// instruction prefixed to every extraction/reconstruction request.
func NewLangchainExtractor(model llms.Model, prompt string) Extractor {
	return &langchainExtractor{model: model, prompt: prompt}
}

func (e *langchainExtractor) ExtractPatterns(ctx context.Context, incidentCtx IncidentContext) (ExtractResult, error) {
	payload, err := json.Marshal(incidentCtx)
	if err != nil {
		return ExtractResult{}, fmt.Errorf("marshal incident context: %w", err)
	}

	completion, err := llms.GenerateFromSinglePrompt(ctx, e.model,
		e.prompt+"\n\nExtract reusable patterns as JSON from:\n"+string(payload))
	if err != nil {
		return ExtractResult{}, err
	}

	var result ExtractResult
	if err := json.Unmarshal([]byte(completion), &result); err != nil {
		return ExtractResult{}, fmt.Errorf("decode extractor response: %w", err)
	}
	return result, nil
}

func (e *langchainExtractor) ReconstructIncident(ctx context.Context, rawData RawIncidentData) (Reconstruction, error) {
	payload, err := json.Marshal(rawData)
	if err != nil {
		return Reconstruction{}, fmt.Errorf("marshal raw incident data: %w", err)
	}

	completion, err := llms.GenerateFromSinglePrompt(ctx, e.model,
		e.prompt+"\n\nReconstruct the incident timeline as JSON from:\n"+string(payload))
	if err != nil {
		return Reconstruction{}, err
	}

	var result Reconstruction
	if err := json.Unmarshal([]byte(completion), &result); err != nil {
		return Reconstruction{}, fmt.Errorf("decode reconstruction response: %w", err)
	}
	return result, nil
}
