package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCreateChatCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		var req ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, ResponseFormatTypeJSONObject, req.ResponseFormat.Type)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":" {\"tips\":[]} "}}],"usage":{"prompt_tokens":3,"completion_tokens":4}}`))
	}))
	defer srv.Close()

	c := NewClient("key", srv.URL+"/", time.Second)
	resp, err := c.CreateChatCompletion(context.Background(), ChatCompletionRequest{
		Model:          "gpt-test",
		Messages:       []ChatMessage{{Role: RoleUser, Content: "hi"}},
		ResponseFormat: JSONObject(),
	})
	require.NoError(t, err)
	require.Equal(t, "gpt-test", resp.Model)
	content, err := resp.Content()
	require.NoError(t, err)
	require.Equal(t, `{"tips":[]}`, content)
}

func TestCreateChatCompletionAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer srv.Close()

	_, err := NewClient("key", srv.URL, time.Second).CreateChatCompletion(context.Background(), ChatCompletionRequest{Model: "m"})
	require.EqualError(t, err, "openai: rate limited")
}

func TestCreateChatCompletionRequiresKey(t *testing.T) {
	_, err := NewClient("", "", 0).CreateChatCompletion(context.Background(), ChatCompletionRequest{})
	require.Error(t, err)
}

func TestContentEmpty(t *testing.T) {
	_, err := ChatCompletionResponse{}.Content()
	require.ErrorIs(t, err, ErrEmptyCompletion)
}
