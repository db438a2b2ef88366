package vertex

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/vertexai/genai"
)

type fakeModel struct {
	parts []genai.Part
	resp  *genai.GenerateContentResponse
	err   error
}

func (f *fakeModel) GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	f.parts = parts
	return f.resp, f.err
}

func TestTranscribeJoinsTextParts(t *testing.T) {
	fake := &fakeModel{resp: &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text("# Chương I\n"), genai.Text("Nội dung")}},
		}},
	}}
	v := &Vision{model: fake}

	got, err := v.Transcribe(context.Background(), "prompt", []byte{1, 2, 3})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got != "# Chương I\nNội dung" {
		t.Fatalf("unexpected text %q", got)
	}
	if len(fake.parts) != 2 {
		t.Fatalf("expected image and prompt parts, got %d", len(fake.parts))
	}
	if _, ok := fake.parts[0].(genai.Blob); !ok {
		t.Fatalf("expected image blob first, got %T", fake.parts[0])
	}
}

func TestTranscribeEmptyCandidates(t *testing.T) {
	v := &Vision{model: &fakeModel{resp: &genai.GenerateContentResponse{}}}
	if _, err := v.Transcribe(context.Background(), "p", []byte{1}); err == nil {
		t.Fatalf("expected empty content error")
	}
}

func TestTranscribePropagatesError(t *testing.T) {
	boom := errors.New("quota")
	v := &Vision{model: &fakeModel{err: boom}}
	if _, err := v.Transcribe(context.Background(), "p", []byte{1}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}
