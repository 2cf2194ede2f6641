package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HuggingFace reports metadata of the model under evaluation under "model":
// architecture, parameter count, dtype and estimated memory footprint.
type HuggingFace struct {
	ModelID string
	Token   string
	// Quantization overrides the dtype used for memory estimates
	// (fp32, fp16, bfloat16, fp8, int8, int4).
	Quantization string

	BaseURL    string
	HTTPClient *http.Client
}

// ModelConfig is the model metadata gathered from the Hub.
type ModelConfig struct {
	ParameterCount        int64  `json:"parameter_count"`
	HiddenSize            int    `json:"hidden_size"`
	NumAttentionHeads     int    `json:"num_attention_heads"`
	NumKeyValueHeads      int    `json:"num_key_value_heads"`
	NumHiddenLayers       int    `json:"num_hidden_layers"`
	MaxPositionEmbeddings int    `json:"max_position_embeddings"`
	TorchDtype            string `json:"torch_dtype"`
	ModelType             string `json:"model_type"`
}

// hfModelResponse is the subset of the /api/models response we need.
type hfModelResponse struct {
	Safetensors *struct {
		Parameters map[string]int64 `json:"parameters"`
		Total      int64            `json:"total"`
	} `json:"safetensors"`
	Config *struct {
		ModelType string `json:"model_type"`
	} `json:"config"`
	// Gated is false for public models, or "auto"/"manual" for gated models.
	Gated any `json:"gated"`
}

// hfConfigJSON is the subset of a model's config.json we need.
type hfConfigJSON struct {
	HiddenSize            int    `json:"hidden_size"`
	NumAttentionHeads     int    `json:"num_attention_heads"`
	NumKeyValueHeads      int    `json:"num_key_value_heads"`
	NumHiddenLayers       int    `json:"num_hidden_layers"`
	MaxPositionEmbeddings int    `json:"max_position_embeddings"`
	TorchDtype            string `json:"torch_dtype"`
	ModelType             string `json:"model_type"`
}

// Provide implements record.Provider.
func (h HuggingFace) Provide(ctx context.Context) (map[string]any, error) {
	if h.ModelID == "" {
		return nil, fmt.Errorf("huggingface provider: model id is required")
	}
	cfg, err := h.FetchModelConfig(ctx)
	if err != nil {
		return nil, err
	}
	dtype := h.Quantization
	if dtype == "" {
		dtype = nativeDtype(*cfg)
	}
	info := map[string]any{
		"id":                      h.ModelID,
		"model_type":              cfg.ModelType,
		"parameter_count":         cfg.ParameterCount,
		"torch_dtype":             cfg.TorchDtype,
		"hidden_size":             cfg.HiddenSize,
		"num_attention_heads":     cfg.NumAttentionHeads,
		"num_key_value_heads":     cfg.NumKeyValueHeads,
		"num_hidden_layers":       cfg.NumHiddenLayers,
		"max_position_embeddings": cfg.MaxPositionEmbeddings,
		"estimate_dtype":          dtype,
		"weights_bytes":           modelMemoryBytes(cfg.ParameterCount, dtype),
	}
	if cfg.NumAttentionHeads > 0 {
		info["kv_cache_bytes_per_token"] = kvCachePerTokenBytes(*cfg)
	}
	return map[string]any{"model": info}, nil
}

// FetchModelConfig fetches model metadata from the Hub. It makes two
// parallel requests: one for safetensors metadata and one for config.json.
func (h HuggingFace) FetchModelConfig(ctx context.Context) (*ModelConfig, error) {
	type result struct {
		model  *hfModelResponse
		config *hfConfigJSON
		err    error
	}
	baseURL := h.BaseURL
	if baseURL == "" {
		baseURL = "https://huggingface.co"
	}

	modelCh := make(chan result, 1)
	configCh := make(chan result, 1)

	go func() {
		url := fmt.Sprintf("%s/api/models/%s?expand[]=safetensors&expand[]=config&expand[]=gated", baseURL, h.ModelID)
		var resp hfModelResponse
		if err := h.doGet(ctx, url, &resp); err != nil {
			modelCh <- result{err: fmt.Errorf("fetch model info: %w", err)}
			return
		}
		modelCh <- result{model: &resp}
	}()

	go func() {
		url := fmt.Sprintf("%s/%s/resolve/main/config.json", baseURL, h.ModelID)
		var cfg hfConfigJSON
		if err := h.doGet(ctx, url, &cfg); err != nil {
			configCh <- result{err: fmt.Errorf("fetch config.json: %w", err)}
			return
		}
		configCh <- result{config: &cfg}
	}()

	mr := <-modelCh
	cr := <-configCh

	if mr.err != nil {
		return nil, mr.err
	}
	if cr.err != nil {
		if mr.model != nil && isGated(mr.model.Gated) {
			return nil, &HFError{
				StatusCode: http.StatusForbidden,
				Message:    "model is gated on HuggingFace; provide a token with access",
			}
		}
		return nil, cr.err
	}

	cfg := &ModelConfig{
		HiddenSize:            cr.config.HiddenSize,
		NumAttentionHeads:     cr.config.NumAttentionHeads,
		NumKeyValueHeads:      cr.config.NumKeyValueHeads,
		NumHiddenLayers:       cr.config.NumHiddenLayers,
		MaxPositionEmbeddings: cr.config.MaxPositionEmbeddings,
		TorchDtype:            cr.config.TorchDtype,
		ModelType:             cr.config.ModelType,
	}
	if mr.model.Safetensors != nil {
		cfg.ParameterCount = mr.model.Safetensors.Total
	}
	if mr.model.Config != nil && cfg.ModelType == "" {
		cfg.ModelType = mr.model.Config.ModelType
	}
	// Non-GQA models omit num_key_value_heads.
	if cfg.NumKeyValueHeads == 0 {
		cfg.NumKeyValueHeads = cfg.NumAttentionHeads
	}
	return cfg, nil
}

func (h HuggingFace) doGet(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if h.Token != "" {
		req.Header.Set("Authorization", "Bearer "+h.Token)
	}
	client := h.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &HFError{StatusCode: resp.StatusCode, Message: "model is gated; provide a token with access"}
	case resp.StatusCode == http.StatusNotFound:
		msg := "model not found on HuggingFace"
		if h.Token == "" {
			msg += "; private or gated models need a token"
		}
		return &HFError{StatusCode: resp.StatusCode, Message: msg}
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &HFError{StatusCode: resp.StatusCode, Message: string(body)}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// isGated interprets the gated field: false for public models, or a string
// like "auto" or "manual" for gated ones.
func isGated(v any) bool {
	switch g := v.(type) {
	case bool:
		return g
	case string:
		return g != "" && g != "false"
	default:
		return false
	}
}

// HFError is an error response from the HuggingFace API.
type HFError struct {
	StatusCode int
	Message    string
}

func (e *HFError) Error() string {
	return fmt.Sprintf("huggingface API %d: %s", e.StatusCode, e.Message)
}

func bytesPerParam(dtype string) float64 {
	switch dtype {
	case "fp32", "float32":
		return 4
	case "", "fp16", "float16", "bfloat16":
		return 2
	case "fp8", "int8":
		return 1
	case "int4":
		return 0.5
	default:
		return 2
	}
}

func modelMemoryBytes(params int64, dtype string) float64 {
	return float64(params) * bytesPerParam(dtype)
}

// kvCachePerTokenBytes assumes a 16-bit cache: K and V per layer per KV head.
func kvCachePerTokenBytes(cfg ModelConfig) float64 {
	headDim := float64(cfg.HiddenSize) / float64(cfg.NumAttentionHeads)
	return 2 * float64(cfg.NumHiddenLayers) * float64(cfg.NumKeyValueHeads) * headDim * 2
}

func nativeDtype(cfg ModelConfig) string {
	if cfg.TorchDtype != "" {
		return cfg.TorchDtype
	}
	return "bfloat16"
}
