package annotation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/sentinel-secure/awareness-platform/internal/pkg/logger"
)

// Invoker is the minimal contract for the external generative annotation
// service: one system instruction, one user message, one text blob back.
// *BedrockClient satisfies it; tests substitute fakes.
type Invoker interface {
	Invoke(ctx context.Context, system, user string) (string, error)
}

// BedrockClient calls the annotation model through AWS Bedrock using the
// Anthropic messages format. All content stays within AWS.
type BedrockClient struct {
	client    *bedrockruntime.Client
	modelID   string
	maxTokens int
	region    string
}

type bedrockMessage struct {
	Role    string                `json:"role"`
	Content []bedrockContentBlock `json:"content"`
}

type bedrockContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type bedrockRequest struct {
	AnthropicVersion string           `json:"anthropic_version"`
	MaxTokens        int              `json:"max_tokens"`
	System           string           `json:"system,omitempty"`
	Messages         []bedrockMessage `json:"messages"`
	Temperature      float64          `json:"temperature,omitempty"`
}

type bedrockResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// NewBedrockClient creates an annotation client for the given model and
// region using the default AWS credential chain.
func NewBedrockClient(ctx context.Context, modelID, region string, maxTokens int) (*BedrockClient, error) {
	if region == "" {
		region = "us-east-1"
	}
	if modelID == "" {
		modelID = "anthropic.claude-3-sonnet-20240229-v1:0"
	}
	if maxTokens <= 0 {
		maxTokens = 8192
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	bc := &BedrockClient{
		client:    bedrockruntime.NewFromConfig(cfg),
		modelID:   modelID,
		maxTokens: maxTokens,
		region:    region,
	}
	logger.Info("annotation client initialized", "model", modelID, "region", region)
	return bc, nil
}

// Invoke sends one annotation request and returns the raw text response.
// Transport failures and malformed response shapes are hard failures for
// the enclosing chunk or document.
func (b *BedrockClient) Invoke(ctx context.Context, system, user string) (string, error) {
	request := bedrockRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        b.maxTokens,
		System:           system,
		Messages: []bedrockMessage{
			{Role: "user", Content: []bedrockContentBlock{{Type: "text", Text: user}}},
		},
		// Annotation must be deterministic-as-possible; no creative drift.
		Temperature: 0.0,
	}

	requestBody, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("marshal annotation request: %w", err)
	}

	output, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        requestBody,
	})
	if err != nil {
		return "", fmt.Errorf("annotation service: %w", err)
	}

	var response bedrockResponse
	if err := json.Unmarshal(output.Body, &response); err != nil {
		return "", fmt.Errorf("parse annotation response: %w", err)
	}

	var text string
	for _, content := range response.Content {
		if content.Type == "text" {
			text += content.Text
		}
	}
	if text == "" {
		return "", fmt.Errorf("annotation service: empty response (stop_reason=%s)", response.StopReason)
	}

	logger.Debug("annotation call complete",
		"in_tokens", response.Usage.InputTokens,
		"out_tokens", response.Usage.OutputTokens)
	return text, nil
}

// ModelID returns the Bedrock model being used.
func (b *BedrockClient) ModelID() string { return b.modelID }
