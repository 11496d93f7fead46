package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/comadj/car-system/internal/config"
	"github.com/comadj/car-system/internal/models"
	"github.com/comadj/car-system/pkg/logger"
	"github.com/ollama/ollama/api"
	"github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
	"gorm.io/gorm"
)

// CompletionRequest is one chat-style prompt. Purpose and Customer only feed
// usage tracking.
type CompletionRequest struct {
	Purpose      string
	Customer     string
	SystemPrompt string
	Prompt       string
	Temperature  float32
	MaxTokens    int
	// Model overrides the model of the config-file fallback endpoint.
	Model       string
	LLMConfigID *uint
}

type CompletionResult struct {
	Content          string
	Model            string
	ConfigName       string
	PromptTokens     int
	CompletionTokens int
}

// LLMCompleter is the network side of the AI layer.
type LLMCompleter interface {
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResult, error)
}

type AIService struct {
	db     *gorm.DB
	config *config.OpenAIConfig
	usage  *AIUsageService
}

func NewAIService(db *gorm.DB, cfg *config.OpenAIConfig) *AIService {
	return &AIService{
		db:     db,
		config: cfg,
		usage:  NewAIUsageService(db),
	}
}

// Complete tries each candidate endpoint in order until one answers.
func (s *AIService) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResult, error) {
	candidates := s.getOrderedLLMConfigs(req.LLMConfigID)
	if len(candidates) == 0 {
		return nil, errors.New("no LLM configuration available")
	}

	logger.Debug().
		Str("purpose", req.Purpose).
		Str("customer", req.Customer).
		Int("prompt_len", len(req.Prompt)).
		Msg("[AI] completion requested")

	var lastErr error
	for i := range candidates {
		llmConfig := &candidates[i]
		if llmConfig.ID == 0 && req.Model != "" {
			llmConfig.Model = req.Model
		}

		logger.Infof("[AI] Attempting LLM %d/%d: %s (provider: %s, model: %s)",
			i+1, len(candidates), llmConfig.Name, llmConfig.Provider, llmConfig.Model)

		start := time.Now()
		result, err := s.callLLM(ctx, llmConfig, req)
		s.recordUsage(llmConfig, req, result, time.Since(start), err)

		if err == nil {
			result.ConfigName = llmConfig.Name
			if result.Model == "" {
				result.Model = llmConfig.Model
			}
			return result, nil
		}
		lastErr = err
		logger.Warnf("[AI] LLM %s failed: %v", llmConfig.Name, err)

		if ctx.Err() != nil {
			break
		}
	}

	return nil, fmt.Errorf("all LLMs failed, last error: %w", lastErr)
}

func (s *AIService) recordUsage(llmConfig *models.LLMConfig, req *CompletionRequest, result *CompletionResult, latency time.Duration, err error) {
	entry := &models.AIUsageLog{
		LLMConfigID:   llmConfig.ID,
		Purpose:       req.Purpose,
		CustomerGroup: req.Customer,
		Provider:      providerOrDefault(llmConfig.Provider),
		Model:         llmConfig.Model,
		LatencyMs:     latency.Milliseconds(),
		Success:       err == nil,
	}
	if result != nil {
		entry.PromptTokens = result.PromptTokens
		entry.CompletionTokens = result.CompletionTokens
		entry.TotalTokens = result.PromptTokens + result.CompletionTokens
	}
	if err != nil {
		msg := err.Error()
		if len(msg) > 500 {
			msg = msg[:500]
		}
		entry.ErrorMessage = msg
	}
	s.usage.Record(entry)
}

// getOrderedLLMConfigs returns the preferred config, then the default, then
// every other active config. The config file endpoint is used only when the
// database has none.
func (s *AIService) getOrderedLLMConfigs(preferred *uint) []models.LLMConfig {
	var configs []models.LLMConfig
	seen := make(map[uint]bool)

	if s.db != nil {
		if preferred != nil && *preferred > 0 {
			var c models.LLMConfig
			if err := s.db.Where("id = ? AND is_active = ?", *preferred, true).First(&c).Error; err == nil {
				configs = append(configs, c)
				seen[c.ID] = true
			} else {
				logger.Infof("[AI] LLM config %d not found or inactive, falling back", *preferred)
			}
		}

		var def models.LLMConfig
		if err := s.db.Where("is_default = ? AND is_active = ?", true, true).First(&def).Error; err == nil && !seen[def.ID] {
			configs = append(configs, def)
			seen[def.ID] = true
		}

		var rest []models.LLMConfig
		s.db.Where("is_active = ?", true).Order("id ASC").Find(&rest)
		for _, c := range rest {
			if !seen[c.ID] {
				configs = append(configs, c)
				seen[c.ID] = true
			}
		}
	}

	if len(configs) == 0 && s.config != nil && s.config.APIKey != "" {
		configs = append(configs, models.LLMConfig{
			Name:     "config-file",
			Provider: "openai",
			BaseURL:  s.config.BaseURL,
			APIKey:   s.config.APIKey,
			Model:    s.config.Model,
		})
	}

	return configs
}

func providerOrDefault(p string) string {
	if p == "" {
		return "openai"
	}
	return p
}

func (s *AIService) callLLM(ctx context.Context, llmConfig *models.LLMConfig, req *CompletionRequest) (*CompletionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, llmConfig.Timeout())
	defer cancel()

	switch providerOrDefault(llmConfig.Provider) {
	case "anthropic":
		return s.callAnthropic(ctx, llmConfig, req)
	case "ollama":
		return s.callOllama(ctx, llmConfig, req)
	case "gemini":
		return s.callGemini(ctx, llmConfig, req)
	case "azure":
		return s.callOpenAICompatible(ctx, openai.DefaultAzureConfig(llmConfig.APIKey, llmConfig.BaseURL), llmConfig, req)
	default:
		clientConfig := openai.DefaultConfig(llmConfig.APIKey)
		if llmConfig.BaseURL != "" {
			clientConfig.BaseURL = llmConfig.BaseURL
		}
		return s.callOpenAICompatible(ctx, clientConfig, llmConfig, req)
	}
}

func temperatureFor(llmConfig *models.LLMConfig, req *CompletionRequest) float32 {
	if req.Temperature > 0 {
		return req.Temperature
	}
	if llmConfig.Temperature > 0 {
		return float32(llmConfig.Temperature)
	}
	return 0.3
}

func maxTokensFor(llmConfig *models.LLMConfig, req *CompletionRequest) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	if llmConfig.MaxTokens > 0 {
		return llmConfig.MaxTokens
	}
	return 2000
}

// callOpenAICompatible serves OpenAI, Azure OpenAI (Model is the deployment
// name) and any OpenAI-compatible endpoint.
func (s *AIService) callOpenAICompatible(ctx context.Context, clientConfig openai.ClientConfig, llmConfig *models.LLMConfig, req *CompletionRequest) (*CompletionResult, error) {
	client := openai.NewClientWithConfig(clientConfig)

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       llmConfig.Model,
		Messages:    messages,
		MaxTokens:   maxTokensFor(llmConfig, req),
		Temperature: temperatureFor(llmConfig, req),
	})
	if err != nil {
		return nil, fmt.Errorf("%s API error: %w", providerOrDefault(llmConfig.Provider), err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("empty response from " + providerOrDefault(llmConfig.Provider))
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return nil, errors.New("blank completion")
	}

	return &CompletionResult{
		Content:          content,
		Model:            resp.Model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

func (s *AIService) callAnthropic(ctx context.Context, llmConfig *models.LLMConfig, req *CompletionRequest) (*CompletionResult, error) {
	opts := []option.RequestOption{option.WithAPIKey(llmConfig.APIKey)}
	if llmConfig.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(llmConfig.BaseURL))
	}
	client := anthropic.NewClient(opts...)

	model := llmConfig.Model
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   int64(maxTokensFor(llmConfig, req)),
		Temperature: anthropic.Float(float64(temperatureFor(llmConfig, req))),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}

	resp, err := client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic API error: %w", err)
	}

	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(content.String())
	if text == "" {
		return nil, errors.New("blank completion")
	}

	return &CompletionResult{
		Content:          text,
		Model:            string(resp.Model),
		PromptTokens:     int(resp.Usage.InputTokens),
		CompletionTokens: int(resp.Usage.OutputTokens),
	}, nil
}

func (s *AIService) callOllama(ctx context.Context, llmConfig *models.LLMConfig, req *CompletionRequest) (*CompletionResult, error) {
	baseURL := llmConfig.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama base URL: %w", err)
	}
	client := api.NewClient(u, http.DefaultClient)

	model := llmConfig.Model
	if model == "" {
		model = "llama3"
	}

	messages := make([]api.Message, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, api.Message{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, api.Message{Role: "user", Content: req.Prompt})

	var content strings.Builder
	err = client.Chat(ctx, &api.ChatRequest{
		Model:    model,
		Messages: messages,
		Options: map[string]interface{}{
			"temperature": temperatureFor(llmConfig, req),
			"num_predict": maxTokensFor(llmConfig, req),
		},
	}, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama API error: %w", err)
	}

	text := strings.TrimSpace(content.String())
	if text == "" {
		return nil, errors.New("blank completion")
	}
	return &CompletionResult{Content: text, Model: model}, nil
}

func (s *AIService) callGemini(ctx context.Context, llmConfig *models.LLMConfig, req *CompletionRequest) (*CompletionResult, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  llmConfig.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client error: %w", err)
	}

	model := llmConfig.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}

	genConfig := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(temperatureFor(llmConfig, req)),
		MaxOutputTokens: int32(maxTokensFor(llmConfig, req)),
	}
	if req.SystemPrompt != "" {
		genConfig.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}

	resp, err := client.Models.GenerateContent(ctx, model, genai.Text(req.Prompt), genConfig)
	if err != nil {
		return nil, fmt.Errorf("gemini API error: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return nil, errors.New("blank completion")
	}

	result := &CompletionResult{Content: text, Model: model}
	if resp.UsageMetadata != nil {
		result.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		result.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return result, nil
}
