package sentiment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

const (
	defaultBedrockRegion = "us-east-1"
	defaultBedrockModel  = "anthropic.claude-3-haiku-20240307-v1:0"
)

// bedrockInvoker is the subset of the Bedrock runtime client used here.
type bedrockInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockModel classifies text with an Anthropic model hosted on AWS Bedrock.
type BedrockModel struct {
	client bedrockInvoker
	model  string
}

// NewBedrockModel loads AWS credentials from the environment/IAM role.
func NewBedrockModel(ctx context.Context, region, model string) (*BedrockModel, error) {
	if region == "" {
		region = defaultBedrockRegion
	}
	if model == "" {
		model = defaultBedrockModel
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	return &BedrockModel{client: bedrockruntime.NewFromConfig(cfg), model: model}, nil
}

// Name returns the provider name.
func (m *BedrockModel) Name() string {
	return "bedrock:" + m.model
}

type bedrockMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type bedrockRequest struct {
	AnthropicVersion string           `json:"anthropic_version"`
	MaxTokens        int              `json:"max_tokens"`
	Temperature      float64          `json:"temperature"`
	System           string           `json:"system"`
	Messages         []bedrockMessage `json:"messages"`
}

type bedrockResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

const bedrockSystemPrompt = openAIInstructions + `
Reply with a single JSON object of the form {"label": "...", "score": 0.0} and nothing else.`

// Predict invokes the model and parses its JSON answer.
func (m *BedrockModel) Predict(ctx context.Context, text string) (Prediction, error) {
	body, err := json.Marshal(bedrockRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        64,
		Temperature:      0,
		System:           bedrockSystemPrompt,
		Messages:         []bedrockMessage{{Role: "user", Content: text}},
	})
	if err != nil {
		return Prediction{}, fmt.Errorf("marshal request: %w", err)
	}

	resp, err := m.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(m.model),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return Prediction{}, fmt.Errorf("call bedrock: %w", err)
	}

	var out bedrockResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return Prediction{}, fmt.Errorf("decode bedrock response: %w", err)
	}
	if len(out.Content) == 0 {
		return Prediction{}, errors.New("bedrock returned no content")
	}

	return parseJSONVerdict(out.Content[0].Text)
}

// parseJSONVerdict extracts the first JSON object from a free-text model reply.
func parseJSONVerdict(reply string) (Prediction, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return Prediction{}, fmt.Errorf("no JSON object in model reply %q", reply)
	}
	var p Prediction
	if err := json.Unmarshal([]byte(reply[start:end+1]), &p); err != nil {
		return Prediction{}, fmt.Errorf("decode model verdict: %w", err)
	}
	return p, nil
}
