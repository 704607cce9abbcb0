package contextstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codelab-platform/agent-control-plane/pkg/llm"
)

type stubEmbedder struct {
	err error
}

func (s stubEmbedder) Chat(ctx context.Context, messages []llm.ChatMessage) (string, error) {
	return "", nil
}

func (s stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []float32{1, 0, 0}, nil
}

func TestFailingEmbedderFallsBackToHashVector(t *testing.T) {
	s := New(stubEmbedder{err: errors.New("provider unavailable")})
	id, err := s.Add(context.Background(), "u1", "a1", "hello world")
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestAddAndSearchRanksByCosineSimilarity(t *testing.T) {
	s := New(nil)
	ctx := context.Background()

	_, err := s.Add(ctx, "u1", "a1", "deploy the service to staging")
	require.NoError(t, err)
	_, err = s.Add(ctx, "u1", "a1", "roll back the last deployment")
	require.NoError(t, err)
	_, err = s.Add(ctx, "u1", "a1", "completely unrelated text about cooking")
	require.NoError(t, err)

	results, err := s.Search(ctx, "u1", "a1", "deploy the service to staging", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "deploy the service to staging", results[0].Text)
}

func TestSearchIsScopedPerUserAgentPair(t *testing.T) {
	s := New(nil)
	ctx := context.Background()

	_, err := s.Add(ctx, "u1", "a1", "alpha")
	require.NoError(t, err)

	results, err := s.Search(ctx, "u1", "a2", "alpha", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestFallbackVectorIsDeterministic(t *testing.T) {
	a := fallbackVector("same input")
	b := fallbackVector("same input")
	assert.Equal(t, a, b)

	c := fallbackVector("different input")
	assert.NotEqual(t, a, c)
}

func TestCosineSimilarityOfIdenticalVectorsIsOne(t *testing.T) {
	v := []float32{1, 2, 3}
	assert.InDelta(t, 1.0, cosineSimilarity(v, v), 1e-6)
}

func TestCosineSimilarityHandlesZeroVector(t *testing.T) {
	assert.Equal(t, float32(0), cosineSimilarity([]float32{0, 0}, []float32{1, 1}))
}
