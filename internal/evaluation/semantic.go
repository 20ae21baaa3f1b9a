package evaluation

import (
	"context"
	"fmt"
	"math"
	"strings"

	"Exam-Prep-Assessment-Backend/internal/client"
	"Exam-Prep-Assessment-Backend/internal/model"
	"Exam-Prep-Assessment-Backend/internal/monitoring"
)

const StrategySemantic = "semantic"

// SemanticStrategy scores by cosine similarity between the answer embedding and
// the cached embeddings of the model answer and each key point.
type SemanticStrategy struct {
	embedder       client.Embedder
	cache          *EmbeddingCache
	threshold      float64
	overallWeight  float64
	keyPointWeight float64
	metrics        *monitoring.Metrics
}

func NewSemanticStrategy(embedder client.Embedder, cache *EmbeddingCache, threshold, overallWeight, keyPointWeight float64, metrics *monitoring.Metrics) *SemanticStrategy {
	return &SemanticStrategy{
		embedder:       embedder,
		cache:          cache,
		threshold:      threshold,
		overallWeight:  overallWeight,
		keyPointWeight: keyPointWeight,
		metrics:        metrics,
	}
}

func (s *SemanticStrategy) Name() string { return StrategySemantic }

func (s *SemanticStrategy) Score(ctx context.Context, item model.QuestionItem, points []string, answer Answer) (*Coverage, error) {
	vec := answer.Vector
	if vec == nil {
		vecs, err := s.embedder.EmbedBatch(ctx, []string{answer.Text})
		if err != nil {
			return nil, err
		}
		if len(vecs) != 1 {
			return nil, fmt.Errorf("embed answer: got %d vectors", len(vecs))
		}
		vec = vecs[0]
	}

	refs, err := s.references(ctx, item.ModelAnswer, points)
	if err != nil {
		return nil, err
	}

	cov := &Coverage{Strategy: StrategySemantic}
	var pointSum float64
	for i, p := range points {
		sim := cosine(vec, refs.Points[i])
		pointSum += sim
		if sim >= s.threshold {
			cov.Matched = append(cov.Matched, p)
		} else {
			cov.Missing = append(cov.Missing, p)
		}
	}
	pointMean := 0.0
	if len(points) > 0 {
		pointMean = pointSum / float64(len(points))
	}

	overall := pointMean
	if refs.Answer != nil {
		overall = cosine(vec, refs.Answer)
	}
	if len(points) == 0 {
		pointMean = overall
	}

	cov.Ratio = clamp(s.overallWeight*overall+s.keyPointWeight*pointMean, 0, 1)
	cov.Similarity = &overall
	return cov, nil
}

// references returns the reference embeddings, computing and caching them on
// first use.
func (s *SemanticStrategy) references(ctx context.Context, modelAnswer string, points []string) (References, error) {
	key := ReferenceKey(modelAnswer, points)
	if refs, ok := s.cache.Get(key); ok {
		s.metrics.EmbeddingCacheLookup(true)
		return refs, nil
	}
	s.metrics.EmbeddingCacheLookup(false)

	modelAnswer = strings.TrimSpace(modelAnswer)
	texts := make([]string, 0, len(points)+1)
	if modelAnswer != "" {
		texts = append(texts, modelAnswer)
	}
	texts = append(texts, points...)
	if len(texts) == 0 {
		return References{}, fmt.Errorf("%w: nothing to compare against", model.ErrInvalidItem)
	}

	vecs, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return References{}, err
	}
	if len(vecs) != len(texts) {
		return References{}, fmt.Errorf("embed references: got %d vectors for %d texts", len(vecs), len(texts))
	}

	var refs References
	if modelAnswer != "" {
		refs.Answer, vecs = vecs[0], vecs[1:]
	}
	refs.Points = vecs
	s.cache.Put(key, refs)
	return refs, nil
}

// cosine similarity, clamped to [0, 1]. Mismatched or zero vectors score 0.
func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return clamp(dot/(math.Sqrt(na)*math.Sqrt(nb)), 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
