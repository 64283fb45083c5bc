package perplexity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const okBody = `{"id":"1","choices":[{"index":0,"message":{"role":"assistant","content":"ok"}}],"usage":{}}`

// captureServer records the decoded request body and the raw JSON keys sent.
func captureServer(t *testing.T, status int, reply string) (*httptest.Server, *ChatCompletionRequest, *map[string]any) {
	t.Helper()
	var got ChatCompletionRequest
	raw := map[string]any{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body json.RawMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.NoError(t, json.Unmarshal(body, &got))
		require.NoError(t, json.Unmarshal(body, &raw))

		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv, &got, &raw
}

func ask(t *testing.T, url string, req ChatCompletionRequest, opts ...Option) (*ChatCompletionResponse, error) {
	t.Helper()
	if req.Messages == nil {
		req.Messages = []Message{{Role: "user", Content: "who is Ada Lovelace"}}
	}
	return NewClient("test-key", append([]Option{WithBaseURL(url)}, opts...)...).ChatCompletion(context.Background(), req)
}

func TestChatCompletion_DecodesReply(t *testing.T) {
	srv, _, _ := captureServer(t, http.StatusOK, `{
		"id": "cmpl-123",
		"choices": [{"index": 0, "message": {"role": "assistant", "content": "{\"summary\":\"x\"}"}}],
		"citations": ["https://a.example", "https://b.example"],
		"usage": {"prompt_tokens": 3, "completion_tokens": 4, "total_tokens": 7}
	}`)

	resp, err := ask(t, srv.URL, ChatCompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "cmpl-123", resp.ID)
	assert.Equal(t, `{"summary":"x"}`, resp.Content())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, resp.Citations)
	assert.Equal(t, Usage{PromptTokens: 3, CompletionTokens: 4, TotalTokens: 7}, resp.Usage)
}

func TestChatCompletion_ModelSelection(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
		req  string
		want string
	}{
		{"client default", nil, "", "sonar-pro"},
		{"client option", []Option{WithModel("sonar")}, "", "sonar"},
		{"request wins", []Option{WithModel("sonar")}, "sonar-reasoning", "sonar-reasoning"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, got, _ := captureServer(t, http.StatusOK, okBody)
			_, err := ask(t, srv.URL, ChatCompletionRequest{Model: tt.req}, tt.opts...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Model)
		})
	}
}

func TestChatCompletion_OptionalFields(t *testing.T) {
	srv, got, raw := captureServer(t, http.StatusOK, okBody)

	temp, maxTokens := 0.2, 500
	_, err := ask(t, srv.URL, ChatCompletionRequest{
		Temperature:         &temp,
		MaxTokens:           &maxTokens,
		SearchRecencyFilter: "month",
		WebSearch:           &WebSearchOptions{SearchContextSize: "low"},
	})
	require.NoError(t, err)
	require.NotNil(t, got.Temperature)
	assert.InDelta(t, 0.2, *got.Temperature, 1e-9)
	require.NotNil(t, got.MaxTokens)
	assert.Equal(t, 500, *got.MaxTokens)
	assert.Equal(t, "month", got.SearchRecencyFilter)
	assert.Equal(t, map[string]any{"search_context_size": "low"}, (*raw)["web_search_options"])
}

func TestChatCompletion_OmitsUnsetFields(t *testing.T) {
	srv, _, raw := captureServer(t, http.StatusOK, okBody)

	_, err := ask(t, srv.URL, ChatCompletionRequest{})
	require.NoError(t, err)
	for _, key := range []string{"temperature", "max_tokens", "search_recency_filter", "web_search_options"} {
		assert.NotContains(t, *raw, key)
	}
}

func TestChatCompletion_StatusErrors(t *testing.T) {
	for _, status := range []int{http.StatusTooManyRequests, http.StatusForbidden, http.StatusServiceUnavailable} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			srv, _, _ := captureServer(t, status, `{"error":"invalid api key"}`)

			resp, err := ask(t, srv.URL, ChatCompletionRequest{})
			assert.Nil(t, resp)
			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, status, apiErr.HTTPStatus())
			assert.Contains(t, err.Error(), "invalid api key")
		})
	}
}

func TestChatCompletion_TruncatesErrorBody(t *testing.T) {
	srv, _, _ := captureServer(t, http.StatusBadGateway, strings.Repeat("x", 4*maxErrorBody))

	_, err := ask(t, srv.URL, ChatCompletionRequest{})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Len(t, apiErr.Body, maxErrorBody)
}

func TestChatCompletion_MalformedReply(t *testing.T) {
	srv, _, _ := captureServer(t, http.StatusOK, `{invalid json`)

	_, err := ask(t, srv.URL, ChatCompletionRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "perplexity: decode response")
}

func TestChatCompletion_CanceledContext(t *testing.T) {
	srv, _, _ := captureServer(t, http.StatusOK, okBody)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewClient("test-key", WithBaseURL(srv.URL)).ChatCompletion(ctx, ChatCompletionRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "perplexity: send request")
}

func TestNewClient_Options(t *testing.T) {
	hc := NewClient("my-key").(*httpClient)
	assert.Equal(t, defaultBaseURL, hc.baseURL)
	assert.Equal(t, defaultModel, hc.model)
	assert.NotNil(t, hc.http.Transport)

	custom := &http.Client{}
	assert.Same(t, custom, NewClient("k", WithHTTPClient(custom)).(*httpClient).http)
}

func TestContent_Empty(t *testing.T) {
	var nilResp *ChatCompletionResponse
	assert.Empty(t, nilResp.Content())
	assert.Empty(t, (&ChatCompletionResponse{}).Content())
}
