package sentiment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	defaultHuggingFaceEndpoint = "https://api-inference.huggingface.co"
	defaultHuggingFaceModel    = "distilbert-base-uncased-finetuned-sst-2-english"
)

// HuggingFaceModel calls a hosted text-classification pipeline over the Inference API
// (or any endpoint that speaks the same protocol, such as a self-hosted TGI/TEI server).
type HuggingFaceModel struct {
	url    string
	model  string
	token  string
	client *http.Client
}

// NewHuggingFaceModel creates a client for endpoint/models/model.
func NewHuggingFaceModel(endpoint, model, token string, client *http.Client) *HuggingFaceModel {
	if endpoint == "" {
		endpoint = defaultHuggingFaceEndpoint
	}
	if model == "" {
		model = defaultHuggingFaceModel
	}
	if client == nil {
		client = &http.Client{}
	}
	return &HuggingFaceModel{
		url:    strings.TrimRight(endpoint, "/") + "/models/" + model,
		model:  model,
		token:  token,
		client: client,
	}
}

// Name returns the provider name.
func (m *HuggingFaceModel) Name() string {
	return "huggingface:" + m.model
}

type hfRequest struct {
	Inputs  string    `json:"inputs"`
	Options hfOptions `json:"options"`
}

type hfOptions struct {
	WaitForModel bool `json:"wait_for_model"`
}

// Predict classifies text and returns the highest-scoring label.
func (m *HuggingFaceModel) Predict(ctx context.Context, text string) (Prediction, error) {
	payload, err := json.Marshal(hfRequest{Inputs: text, Options: hfOptions{WaitForModel: true}})
	if err != nil {
		return Prediction{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, bytes.NewReader(payload))
	if err != nil {
		return Prediction{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if m.token != "" {
		req.Header.Set("Authorization", "Bearer "+m.token)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return Prediction{}, fmt.Errorf("call inference api: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Prediction{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Prediction{}, fmt.Errorf("inference api returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	preds, err := decodeHFPredictions(body)
	if err != nil {
		return Prediction{}, err
	}
	return best(preds)
}

// decodeHFPredictions accepts both the batched [[...]] and flat [...] response shapes.
func decodeHFPredictions(body []byte) ([]Prediction, error) {
	var nested [][]Prediction
	if err := json.Unmarshal(body, &nested); err == nil {
		if len(nested) == 0 {
			return nil, errors.New("inference api returned no predictions")
		}
		return nested[0], nil
	}

	var flat []Prediction
	if err := json.Unmarshal(body, &flat); err != nil {
		return nil, fmt.Errorf("decode inference response: %w", err)
	}
	return flat, nil
}

func best(preds []Prediction) (Prediction, error) {
	if len(preds) == 0 {
		return Prediction{}, errors.New("inference api returned no predictions")
	}
	top := preds[0]
	for _, p := range preds[1:] {
		if p.Score > top.Score {
			top = p
		}
	}
	return top, nil
}
