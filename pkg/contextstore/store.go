// Package contextstore gives each (user, agent) pair a vector collection
// for retrieval-augmented context: text is embedded via an llm.Client,
// stored alongside its source text, and retrieved by cosine-similarity
// top-k search. When the injected embedder is unavailable, a stable
// fallback hash vector keeps the store usable (degraded relevance, not a
// hard failure) rather than blocking the whole request path on an
// external embedding call.
package contextstore

import (
	"context"
	"hash/fnv"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/codelab-platform/agent-control-plane/pkg/llm"
)

const fallbackVectorSize = 64

// Document is a single stored, embedded piece of context.
type Document struct {
	ID     string
	Text   string
	Vector []float32
}

// Store holds per-(user, agent) vector collections in memory. A
// production deployment would back this with a real vector database;
// Store is a concrete type, with no interface in front of it.
type Store struct {
	mu          sync.RWMutex
	collections map[string][]Document
	embedder    llm.Client
}

// New builds a Store. embedder may be nil, in which case Add falls back
// to the deterministic hash vector for every document.
func New(embedder llm.Client) *Store {
	return &Store{
		collections: make(map[string][]Document),
		embedder:    embedder,
	}
}

func collectionKey(userID, agentID string) string {
	return userID + ":" + agentID
}

// Add embeds text and stores it in the (userID, agentID) collection.
func (s *Store) Add(ctx context.Context, userID, agentID, text string) (string, error) {
	vector, err := s.embed(ctx, text)
	if err != nil {
		return "", err
	}

	doc := Document{ID: uuid.NewString(), Text: text, Vector: vector}

	key := collectionKey(userID, agentID)
	s.mu.Lock()
	s.collections[key] = append(s.collections[key], doc)
	s.mu.Unlock()

	return doc.ID, nil
}

func (s *Store) embed(ctx context.Context, text string) ([]float32, error) {
	if s.embedder != nil {
		vec, err := s.embedder.Embed(ctx, text)
		if err == nil {
			return vec, nil
		}
	}
	return fallbackVector(text), nil
}

// fallbackVector derives a deterministic pseudo-embedding from a text
// hash so cosine similarity still behaves sanely (identical text yields
// identical vectors) when no real embedder is configured.
func fallbackVector(text string) []float32 {
	vec := make([]float32, fallbackVectorSize)
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed%2001)-1000) / 1000.0
	}
	return vec
}

// scored pairs a document with its similarity to a query vector.
type scored struct {
	doc   Document
	score float32
}

// Search returns the topK documents in (userID, agentID)'s collection
// most similar to query, ranked by cosine similarity, descending.
func (s *Store) Search(ctx context.Context, userID, agentID, query string, topK int) ([]Document, error) {
	queryVec, err := s.embed(ctx, query)
	if err != nil {
		return nil, err
	}

	key := collectionKey(userID, agentID)
	s.mu.RLock()
	docs := append([]Document(nil), s.collections[key]...)
	s.mu.RUnlock()

	scores := make([]scored, 0, len(docs))
	for _, d := range docs {
		scores = append(scores, scored{doc: d, score: cosineSimilarity(queryVec, d.Vector)})
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	if topK > len(scores) {
		topK = len(scores)
	}
	out := make([]Document, topK)
	for i := 0; i < topK; i++ {
		out[i] = scores[i].doc
	}
	return out, nil
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
