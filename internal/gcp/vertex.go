package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/vertexai/genai"
)

// ConverterSystemPrompt frames every per-file instruction document.
const ConverterSystemPrompt = "You are a senior engineer migrating ASP.NET Core and Entity Framework Core applications to Java Spring Boot. You answer with the content of exactly one file and nothing else: no explanations, no preambles, no markdown fences."

// VertexClient holds the pre-configured generative model used for conversions.
type VertexClient struct {
	ConverterModel *genai.GenerativeModel
	baseClient     *genai.Client
}

// NewVertexClient creates a new client holding the converter model.
func NewVertexClient(ctx context.Context, projectID, region, modelName string) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}
	if modelName == "" {
		modelName = "gemini-1.5-pro"
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	converterModel := baseClient.GenerativeModel(modelName)
	converterModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(ConverterSystemPrompt)},
	}
	converterModel.GenerationConfig = genai.GenerationConfig{
		// Low temperature keeps generated code close to the input.
		Temperature: genai.Ptr[float32](0.1),
	}
	converterModel.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
	}

	return &VertexClient{
		ConverterModel: converterModel,
		baseClient:     baseClient,
	}, nil
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}
