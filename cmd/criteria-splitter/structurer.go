package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/responses"
	"go.uber.org/zap"

	"github.com/theimaginaryfoundation/criteria-splitter/eligibility"
	"github.com/theimaginaryfoundation/criteria-splitter/eligibility/fileutils"
	"github.com/theimaginaryfoundation/criteria-splitter/eligibility/provider"
)

type openAIStructurer struct {
	responses       provider.ResponseCreator
	model           string
	temperature     float64
	maxOutputTokens int
	retry           provider.RetryPolicy
	log             *zap.Logger
}

type structuredCriteria struct {
	Lines []eligibility.NumberedLine `json:"lines" jsonschema:"required"`
}

var structuredCriteriaSchema = provider.MustGenerateSchema[structuredCriteria]()

func (s openAIStructurer) Structure(ctx context.Context, segment string) (string, error) {
	if s.responses == nil {
		return "", errors.New("openAIStructurer: client is nil")
	}
	if s.model == "" {
		return "", errors.New("openAIStructurer: model is empty")
	}

	resp, err := provider.CallWithPolicy(ctx, s.responses, s.params(segment), s.retry)
	if err != nil {
		return "", err
	}
	if s.log != nil {
		s.log.Debug("structuring call",
			zap.String("response_id", resp.ID),
			zap.Int64("input_tokens", resp.Usage.InputTokens),
			zap.Int64("output_tokens", resp.Usage.OutputTokens))
	}
	return decodeStructured(resp.OutputText())
}

func (s openAIStructurer) params(segment string) responses.ResponseNewParams {
	format := responses.ResponseFormatTextConfigUnionParam{
		OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
			Name:        "StructuredCriteria",
			Schema:      structuredCriteriaSchema,
			Strict:      openai.Bool(true),
			Description: openai.String("Numbered eligibility criteria lines"),
			Type:        "json_schema",
		},
	}

	input := []responses.ResponseInputItemUnionParam{
		responses.ResponseInputItemParamOfMessage(segment, responses.EasyInputMessageRoleUser),
	}
	params := responses.ResponseNewParams{
		Model:           s.model,
		MaxOutputTokens: openai.Int(int64(s.maxOutputTokens)),
		Instructions:    openai.String(structurePrompt),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: input,
		},
		Text: responses.ResponseTextConfigParam{
			Format: format,
		},
	}
	if s.temperature >= 0 {
		params.Temperature = openai.Float(s.temperature)
	}
	return params
}

// decodeStructured renders the model's JSON lines as numbered text. Output that is not JSON is accepted
// when it already follows the numbering format.
func decodeStructured(outputText string) (string, error) {
	out, err := fileutils.DecodeModelJSON[structuredCriteria](outputText)
	if err != nil {
		text := strings.TrimSpace(outputText)
		if text != "" && eligibility.ValidateNumbered(text) == nil {
			return text, nil
		}
		return "", fmt.Errorf("decode structured output: %w", err)
	}
	if len(out.Lines) == 0 {
		return "", errors.New("decode structured output: no lines")
	}

	rendered := eligibility.RenderNumbered(out.Lines)
	if err := eligibility.ValidateNumbered(rendered); err != nil {
		return "", fmt.Errorf("structured output: %w", err)
	}
	return rendered, nil
}
