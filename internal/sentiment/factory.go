package sentiment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/DeafMist/feedback-radar/internal/logger"
)

// ErrUnknownProvider is returned for an unsupported ModelConfig.Provider.
var ErrUnknownProvider = errors.New("unknown sentiment provider")

const (
	ProviderLexicon     = "lexicon"
	ProviderHuggingFace = "huggingface"
	ProviderOpenAI      = "openai"
	ProviderBedrock     = "bedrock"
)

// warmupText is classified once at load so a misconfigured remote model fails startup.
const warmupText = "The app works well."

// ModelConfig selects and configures the sentiment model.
type ModelConfig struct {
	Provider      string
	Model         string
	LexiconPath   string
	Endpoint      string
	APIToken      string
	OpenAIAPIKey  string
	BedrockRegion string
	Timeout       time.Duration
	RateLimit     float64
}

// NewModel builds the model named by cfg.Provider. Remote providers are wrapped with a
// rate limiter and a circuit breaker and must answer a warm-up request.
func NewModel(ctx context.Context, cfg ModelConfig, log *slog.Logger) (Model, error) {
	log = logger.OrDiscard(log)

	var (
		model Model
		err   error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderLexicon:
		lex, err := LoadLexicon(cfg.LexiconPath)
		if err != nil {
			return nil, err
		}
		log.Info("sentiment model ready", slog.String("model", lex.Name()))
		return lex, nil
	case ProviderHuggingFace:
		model = NewHuggingFaceModel(cfg.Endpoint, cfg.Model, cfg.APIToken, &http.Client{Timeout: cfg.Timeout})
	case ProviderOpenAI:
		model, err = NewOpenAIModel(cfg.OpenAIAPIKey, cfg.Model)
	case ProviderBedrock:
		model, err = NewBedrockModel(ctx, cfg.BedrockRegion, cfg.Model)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	model = withBreaker(withRateLimit(model, cfg.RateLimit), log)

	if err := warmup(ctx, model, cfg.Timeout); err != nil {
		return nil, err
	}
	log.Info("sentiment model ready", slog.String("model", model.Name()))
	return model, nil
}

func warmup(ctx context.Context, model Model, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	pred, err := model.Predict(ctx, warmupText)
	if err != nil {
		return fmt.Errorf("warm up %s: %w", model.Name(), err)
	}
	if _, err := normalize(pred); err != nil {
		return fmt.Errorf("warm up %s: %w", model.Name(), err)
	}
	return nil
}
