package sentiment_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DeafMist/feedback-radar/internal/sentiment"
)

func TestHuggingFaceModelPredict(t *testing.T) {
	tests := []struct {
		name string
		body string
		want sentiment.Prediction
	}{
		{
			name: "nested response",
			body: `[[{"label":"NEGATIVE","score":0.97},{"label":"POSITIVE","score":0.03}]]`,
			want: sentiment.Prediction{Label: "NEGATIVE", Score: 0.97},
		},
		{
			name: "flat response",
			body: `[{"label":"LABEL_0","score":0.2},{"label":"LABEL_1","score":0.8}]`,
			want: sentiment.Prediction{Label: "LABEL_1", Score: 0.8},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotReq map[string]any
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/models/test-model", r.URL.Path)
				assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			m := sentiment.NewHuggingFaceModel(srv.URL+"/", "test-model", "secret", srv.Client())
			assert.Equal(t, "huggingface:test-model", m.Name())

			pred, err := m.Predict(context.Background(), "Card blocked abroad")
			require.NoError(t, err)
			assert.Equal(t, tt.want, pred)
			assert.Equal(t, "Card blocked abroad", gotReq["inputs"])
		})
	}
}

func TestHuggingFaceModelErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "server error", status: http.StatusServiceUnavailable, body: `{"error":"Model is currently loading"}`},
		{name: "empty predictions", status: http.StatusOK, body: `[]`},
		{name: "garbage", status: http.StatusOK, body: `not json`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			m := sentiment.NewHuggingFaceModel(srv.URL, "m", "", srv.Client())
			_, err := m.Predict(context.Background(), "hello")
			assert.Error(t, err)
		})
	}
}
