package embedding

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// ZhipuProvider implements EmbeddingProvider against bigmodel.cn. The
// embedding-3 model returns 1024-dimensional vectors, matching the column
// width of the evidence store.
type ZhipuProvider struct {
	ApiKey  string
	BaseURL string
	Model   string
}

func NewZhipuProvider(apiKey string, baseURL string, model string) EmbeddingProvider {
	if baseURL == "" {
		baseURL = "https://open.bigmodel.cn/api/paas/v4"
	}
	if model == "" {
		model = "embedding-3"
	}
	return &ZhipuProvider{
		ApiKey:  apiKey,
		BaseURL: baseURL,
		Model:   model,
	}
}

type zhipuEmbeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type zhipuEmbeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (p *ZhipuProvider) Generate(text string, taskType string) (*EmbeddingResponse, error) {
	// Zhipu does not distinguish task types; the hint is accepted for
	// interface compatibility.
	reqBody := zhipuEmbeddingRequest{
		Model: p.Model,
		Input: text,
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/embeddings", p.BaseURL)
	req, err := http.NewRequest("POST", endpoint, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.ApiKey)
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{}
	res, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	resByte, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("zhipu embedding error, code %d, body %s", res.StatusCode, string(resByte))
	}

	var zhipuRes zhipuEmbeddingResponse
	if err := json.Unmarshal(resByte, &zhipuRes); err != nil {
		return nil, err
	}
	if len(zhipuRes.Data) == 0 {
		return nil, fmt.Errorf("zhipu embedding error: empty data")
	}

	return &EmbeddingResponse{
		Embedding: EmbeddingResponseEmbedding{
			Values: normalizeVector(zhipuRes.Data[0].Embedding),
		},
	}, nil
}
