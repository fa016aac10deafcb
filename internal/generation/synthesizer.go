package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lumenart/backend/internal/models"
)

// Output is what the unit-of-work collaborator hands back.
type Output struct {
	Bytes    []byte
	MimeType string
	Metadata map[string]string
}

// Synthesizer is the externally-supplied unit of work: payload in, artifact
// out. How it produces the artifact is not this core's business.
type Synthesizer interface {
	Synthesize(ctx context.Context, task *models.GenerationTask) (*Output, error)
}

// HTTPSynthesizer calls a model endpoint over HTTP. The response body is
// the artifact; Content-Type carries the mime type.
type HTTPSynthesizer struct {
	endpoint   string
	httpClient *http.Client
}

func NewHTTPSynthesizer(endpoint string, timeout time.Duration) *HTTPSynthesizer {
	return &HTTPSynthesizer{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}
}

var _ Synthesizer = (*HTTPSynthesizer)(nil)

type synthesizeRequest struct {
	TaskID     string          `json:"task_id"`
	ActionType string          `json:"action_type"`
	ModelID    string          `json:"model_id,omitempty"`
	Prompt     json.RawMessage `json:"prompt"`
}

func (s *HTTPSynthesizer) Synthesize(ctx context.Context, task *models.GenerationTask) (*Output, error) {
	body, err := json.Marshal(synthesizeRequest{
		TaskID:     task.ID.String(),
		ActionType: task.ActionType,
		ModelID:    task.ModelID,
		Prompt:     task.Prompt,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("model endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("model endpoint returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read model response: %w", err)
	}

	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	return &Output{
		Bytes:    data,
		MimeType: mimeType,
		Metadata: map[string]string{"model_id": task.ModelID},
	}, nil
}
