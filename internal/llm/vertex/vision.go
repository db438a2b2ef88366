package vertex

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"

	"hsmt-backend/internal/llm"
)

const ocrSystemPrompt = "Bạn là công cụ chuyển ảnh tài liệu đấu thầu tiếng Việt sang Markdown. Giữ nguyên nội dung, bảng và cấu trúc mục."

type generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// Vision transcribes page images with a Gemini model.
type Vision struct {
	model  generator
	client *genai.Client
}

// NewVision builds a Vision client for project/region.
func NewVision(ctx context.Context, projectID, region, modelName string) (*Vision, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("vertex: projectID and region cannot be empty")
	}
	if strings.TrimSpace(modelName) == "" {
		modelName = "gemini-1.5-pro"
	}
	client, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}
	model := client.GenerativeModel(modelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(ocrSystemPrompt)},
	}
	model.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "text/plain",
		Temperature:      genai.Ptr[float32](0.0),
	}
	model.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
	}
	return &Vision{model: model, client: client}, nil
}

// Transcribe sends png and prompt in one request and joins the text parts of the first candidate.
func (v *Vision) Transcribe(ctx context.Context, prompt string, png []byte) (string, error) {
	if len(png) == 0 {
		return "", fmt.Errorf("vertex transcribe: empty image")
	}
	resp, err := v.model.GenerateContent(ctx, genai.ImageData("png", png), genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("vertex generate: %w", err)
	}
	text := firstText(resp)
	if text == "" {
		return "", fmt.Errorf("vertex response empty content")
	}
	return text, nil
}

// Close releases the underlying client.
func (v *Vision) Close() error {
	if v.client == nil {
		return nil
	}
	return v.client.Close()
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		var b strings.Builder
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		if s := strings.TrimSpace(b.String()); s != "" {
			return s
		}
	}
	return ""
}

var _ llm.VisionClient = (*Vision)(nil)
