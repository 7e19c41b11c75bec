package llm

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrapClient(t *testing.T) {
	completeCalled, streamCalled, configCalled := false, false, false

	client := WrapClient(
		func(_ context.Context, _ CompletionRequest) (CompletionResponse, error) {
			completeCalled = true
			return CompletionResponse{Content: "wrapped"}, nil
		},
		func(_ context.Context, _ CompletionRequest) (<-chan StreamChunk, error) {
			streamCalled = true
			ch := make(chan StreamChunk)
			close(ch)
			return ch, nil
		},
		func() ModelDefaults {
			configCalled = true
			return ModelDefaults{Name: "wrapped-model"}
		},
	)

	ctx := context.Background()
	req := NewCompletionRequest([]CompletionMessage{NewUserMessage("test")})

	resp, err := client.Complete(ctx, req)
	require.NoError(t, err)
	require.True(t, completeCalled)
	require.Equal(t, "wrapped", resp.Content)

	_, err = client.Stream(ctx, req)
	require.NoError(t, err)
	require.True(t, streamCalled)

	require.Equal(t, "wrapped-model", client.GetDefaultConfig().Name)
	require.True(t, configCalled)
}

func passThroughMiddleware(transform func(CompletionResponse) CompletionResponse) Middleware {
	return func(next LLMClient) LLMClient {
		return WrapClient(
			func(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
				resp, err := next.Complete(ctx, req)
				if err != nil {
					return resp, err
				}
				return transform(resp), nil
			},
			func(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
				return next.Stream(ctx, req)
			},
			next.GetDefaultConfig,
		)
	}
}

func TestChainSingleMiddleware(t *testing.T) {
	base := &mockLLMClient{completeFunc: func(_ context.Context, _ CompletionRequest) (CompletionResponse, error) {
		return CompletionResponse{Content: "base"}, nil
	}}

	prefix := passThroughMiddleware(func(r CompletionResponse) CompletionResponse {
		r.Content = "prefix:" + r.Content
		return r
	})

	client := Chain(base, prefix)
	resp, err := client.Complete(context.Background(), NewCompletionRequest(nil))
	require.NoError(t, err)
	require.Equal(t, "prefix:base", resp.Content)
}

func TestChainMultipleMiddlewaresAppliedOutermostFirst(t *testing.T) {
	base := &mockLLMClient{completeFunc: func(_ context.Context, _ CompletionRequest) (CompletionResponse, error) {
		return CompletionResponse{Content: "base"}, nil
	}}

	mw1 := passThroughMiddleware(func(r CompletionResponse) CompletionResponse { r.Content = "mw1:" + r.Content; return r })
	mw2 := passThroughMiddleware(func(r CompletionResponse) CompletionResponse { r.Content = r.Content + ":mw2"; return r })
	mw3 := passThroughMiddleware(func(r CompletionResponse) CompletionResponse { r.Content = "[" + r.Content + "]"; return r })

	client := Chain(base, mw1, mw2, mw3)
	resp, err := client.Complete(context.Background(), NewCompletionRequest(nil))
	require.NoError(t, err)
	require.Equal(t, "mw1:[base]:mw2", resp.Content)
}

func TestChainRequestModification(t *testing.T) {
	base := &mockLLMClient{completeFunc: func(_ context.Context, req CompletionRequest) (CompletionResponse, error) {
		return CompletionResponse{Content: fmt.Sprintf("temp=%.1f", req.Temperature)}, nil
	}}

	tempMiddleware := func(next LLMClient) LLMClient {
		return WrapClient(
			func(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
				req.Temperature = 0.9
				return next.Complete(ctx, req)
			},
			next.Stream,
			next.GetDefaultConfig,
		)
	}

	client := Chain(base, tempMiddleware)
	req := NewCompletionRequest(nil)
	req.Temperature = 0.5

	resp, err := client.Complete(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "temp=0.9", resp.Content)
}

func TestChainErrorPropagation(t *testing.T) {
	base := &mockLLMClient{completeFunc: func(_ context.Context, _ CompletionRequest) (CompletionResponse, error) {
		return CompletionResponse{}, fmt.Errorf("base error")
	}}

	wrapErr := func(next LLMClient) LLMClient {
		return WrapClient(
			func(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
				resp, err := next.Complete(ctx, req)
				if err != nil {
					return resp, fmt.Errorf("middleware wrapper: %w", err)
				}
				return resp, nil
			},
			next.Stream,
			next.GetDefaultConfig,
		)
	}

	client := Chain(base, wrapErr)
	_, err := client.Complete(context.Background(), NewCompletionRequest(nil))
	require.EqualError(t, err, "middleware wrapper: base error")
}

func TestChainShortCircuit(t *testing.T) {
	baseCalled := false
	base := &mockLLMClient{completeFunc: func(_ context.Context, _ CompletionRequest) (CompletionResponse, error) {
		baseCalled = true
		return CompletionResponse{Content: "base"}, nil
	}}

	shortCircuit := func(next LLMClient) LLMClient {
		return WrapClient(
			func(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
				if len(req.Messages) > 0 && req.Messages[0].Content == "skip" {
					return CompletionResponse{Content: "short-circuited"}, nil
				}
				return next.Complete(ctx, req)
			},
			next.Stream,
			next.GetDefaultConfig,
		)
	}

	client := Chain(base, shortCircuit)
	ctx := context.Background()

	resp, err := client.Complete(ctx, NewCompletionRequest([]CompletionMessage{NewUserMessage("skip")}))
	require.NoError(t, err)
	require.Equal(t, "short-circuited", resp.Content)
	require.False(t, baseCalled)

	resp, err = client.Complete(ctx, NewCompletionRequest([]CompletionMessage{NewUserMessage("normal")}))
	require.NoError(t, err)
	require.Equal(t, "base", resp.Content)
	require.True(t, baseCalled)
}

func TestChainNoMiddlewaresReturnsBase(t *testing.T) {
	base := &mockLLMClient{completeFunc: func(_ context.Context, _ CompletionRequest) (CompletionResponse, error) {
		return CompletionResponse{Content: "base"}, nil
	}}

	client := Chain(base)
	resp, err := client.Complete(context.Background(), NewCompletionRequest(nil))
	require.NoError(t, err)
	require.Equal(t, "base", resp.Content)
}
