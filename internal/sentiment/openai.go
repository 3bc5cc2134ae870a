package sentiment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
)

const defaultOpenAIModel = "gpt-4o-mini"

const openAIInstructions = `You classify short banking customer feedback.
Answer with the overall sentiment label (POSITIVE, NEGATIVE or NEUTRAL) and your
confidence in that label as a number between 0 and 1. Judge only the text given.`

// openAIVerdict is the structured output requested from the model.
type openAIVerdict struct {
	Label string  `json:"label" jsonschema:"enum=POSITIVE,enum=NEGATIVE,enum=NEUTRAL"`
	Score float64 `json:"score"`
}

var openAIVerdictSchema = generateSchema[openAIVerdict]()

// OpenAIModel classifies text with a hosted chat model constrained to a JSON schema.
type OpenAIModel struct {
	client *openai.Client
	model  string
}

// NewOpenAIModel creates a classifier backed by the OpenAI Responses API.
func NewOpenAIModel(apiKey, model string, opts ...option.RequestOption) (*OpenAIModel, error) {
	if apiKey == "" {
		return nil, errors.New("openai API key not configured")
	}
	if model == "" {
		model = defaultOpenAIModel
	}
	client := openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	return &OpenAIModel{client: &client, model: model}, nil
}

// Name returns the provider name.
func (m *OpenAIModel) Name() string {
	return "openai:" + m.model
}

// Predict asks the model for a structured verdict.
func (m *OpenAIModel) Predict(ctx context.Context, text string) (Prediction, error) {
	format := responses.ResponseFormatTextConfigUnionParam{
		OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
			Name:        "SentimentVerdict",
			Schema:      openAIVerdictSchema,
			Strict:      openai.Bool(true),
			Description: openai.String("Sentiment verdict JSON"),
			Type:        "json_schema",
		},
	}

	params := responses.ResponseNewParams{
		Model:           m.model,
		MaxOutputTokens: openai.Int(64),
		Instructions:    openai.String(openAIInstructions),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(text, responses.EasyInputMessageRoleUser),
			},
		},
		Text: responses.ResponseTextConfigParam{
			Format: format,
		},
	}

	resp, err := m.client.Responses.New(ctx, params)
	if err != nil {
		return Prediction{}, fmt.Errorf("call openai: %w", err)
	}

	var out openAIVerdict
	if err := json.Unmarshal([]byte(strings.TrimSpace(resp.OutputText())), &out); err != nil {
		return Prediction{}, fmt.Errorf("decode openai verdict: %w", err)
	}
	return Prediction{Label: out.Label, Score: out.Score}, nil
}

func generateSchema[T any]() map[string]any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: false,
	}
	var v T
	schema := reflector.Reflect(v)
	b, err := schema.MarshalJSON()
	if err != nil {
		panic(err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		panic(err)
	}
	// strict mode wants every property listed as required and no extras
	m["additionalProperties"] = false
	if props, ok := m["properties"].(map[string]any); ok {
		required := make([]string, 0, len(props))
		for name := range props {
			required = append(required, name)
		}
		sort.Strings(required)
		m["required"] = required
	}
	delete(m, "$schema")
	delete(m, "$id")
	return m
}
