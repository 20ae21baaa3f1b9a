package evaluation

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"Exam-Prep-Assessment-Backend/internal/client/mocks"
	"Exam-Prep-Assessment-Backend/internal/config"
	"Exam-Prep-Assessment-Backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var testConfig = config.EvaluationConfig{
	MinAnswerChars:         10,
	KeyPointThreshold:      0.6,
	OverallWeight:          0.4,
	KeyPointWeight:         0.6,
	EmbeddingCacheCapacity: 16,
}

func photosynthesisItem() model.QuestionItem {
	return model.QuestionItem{
		Kind:      model.KindDescriptive,
		Question:  "Describe how plants make their food.",
		Marks:     3,
		WordLimit: "20-30 words",
		KeyPoints: []string{
			"Chlorophyll absorbs sunlight energy",
			"Carbon dioxide enters through stomata",
			"Glucose",
		},
	}
}

func TestSingleBestAnswerScoresMarksOnlyOnExactKey(t *testing.T) {
	ev := NewEvaluator(testConfig, nil, nil, nil)
	item := model.QuestionItem{
		Kind:          model.KindSingleBestAnswer,
		Question:      "Which organ pumps blood?",
		Marks:         2,
		Options:       model.NewOrderedMap("A", "Lung", "B", "Heart", "C", "Liver", "D", "Kidney"),
		CorrectAnswer: "B",
		Explanation:   "The heart is a muscular pump.",
	}

	for _, choice := range []string{"A", "B", "C", "D", "", " b "} {
		res, err := ev.Evaluate(context.Background(), item, model.Submission{Choice: choice})
		require.NoError(t, err)
		require.NotNil(t, res.Correct)
		if model.NormalizeChoice(choice) == "B" {
			assert.Equal(t, 2.0, res.Score, choice)
			assert.True(t, *res.Correct)
			assert.Equal(t, "Correct! The heart is a muscular pump.", res.Feedback)
		} else {
			assert.Equal(t, 0.0, res.Score, choice)
			assert.False(t, *res.Correct)
			assert.Contains(t, res.Feedback, "The correct answer is B.")
		}
		assert.Equal(t, 2.0, res.MaxScore)
	}
}

func TestDiagramLabelScoring(t *testing.T) {
	ev := NewEvaluator(testConfig, nil, nil, nil)
	item := model.QuestionItem{
		Kind:     model.KindDiagramLabel,
		Question: "Label the parts of the heart.",
		Marks:    3,
		Labels:   model.NewOrderedMap("1", "Aorta", "2", "Left ventricle", "3", "Pulmonary artery"),
	}

	t.Run("exact names", func(t *testing.T) {
		res, err := ev.Evaluate(context.Background(), item, model.Submission{Labels: map[string]string{
			"1": "Aorta", "2": "Left ventricle", "3": "Pulmonary artery",
		}})
		require.NoError(t, err)
		assert.Equal(t, 3.0, res.Score)
		assert.Equal(t, 100.0, res.Percentage)
		assert.Empty(t, res.MissingPoints)
	})

	t.Run("none", func(t *testing.T) {
		res, err := ev.Evaluate(context.Background(), item, model.Submission{})
		require.NoError(t, err)
		assert.Equal(t, 0.0, res.Score)
		assert.Len(t, res.MissingPoints, 3)
		assert.Contains(t, res.MissingPoints[0], "(no answer)")
	})

	t.Run("loose matches", func(t *testing.T) {
		res, err := ev.Evaluate(context.Background(), item, model.Submission{Labels: map[string]string{
			"1": "  AORTA ",
			"2": "ventricle on the left",
			"3": "vein",
		}})
		require.NoError(t, err)
		assert.Equal(t, 2.0, res.Score)
		require.Len(t, res.MissingPoints, 1)
		assert.Equal(t, "3: expected Pulmonary artery, got vein", res.MissingPoints[0])
	})

	t.Run("single letters", func(t *testing.T) {
		res, err := ev.Evaluate(context.Background(), item, model.Submission{Labels: map[string]string{
			"1": "a", "2": "e", "3": "r",
		}})
		require.NoError(t, err)
		assert.Equal(t, 0.0, res.Score)
		assert.Empty(t, res.MatchedPoints)
		assert.Len(t, res.MissingPoints, 3)
	})
}

func TestKeywordStrategy(t *testing.T) {
	ev := NewEvaluator(testConfig, nil, nil, nil)
	answer := "Plants use chlorophyll to trap sunlight and make glucose from water and air in the leaves every day for growth."

	res, err := ev.Evaluate(context.Background(), photosynthesisItem(), model.Submission{Text: answer})

	require.NoError(t, err)
	assert.Equal(t, StrategyKeyword, res.Strategy)
	assert.Equal(t, 2.0, res.Score)
	assert.Equal(t, []string{"Chlorophyll absorbs sunlight energy", "Glucose"}, res.MatchedPoints)
	assert.Equal(t, []string{"Carbon dioxide enters through stomata"}, res.MissingPoints)
	require.NotNil(t, res.WordCount)
	assert.Equal(t, 20, *res.WordCount)
	assert.Nil(t, res.SemanticSimilarity)
}

func TestTooShortAnswer(t *testing.T) {
	ev := NewEvaluator(testConfig, nil, nil, nil)

	for _, text := range []string{"", "   ", "glucose"} {
		res, err := ev.Evaluate(context.Background(), photosynthesisItem(), model.Submission{Text: text})
		require.NoError(t, err)
		assert.Equal(t, 0.0, res.Score)
		assert.Equal(t, StrategyTooShort, res.Strategy)
		assert.Equal(t, photosynthesisItem().KeyPoints, res.MissingPoints)
	}
}

func TestUnderLengthAnswerScoresLower(t *testing.T) {
	ev := NewEvaluator(testConfig, nil, nil, nil)
	core := "chlorophyll sunlight glucose carbon dioxide stomata"

	score := func(text string) float64 {
		res, err := ev.Evaluate(context.Background(), photosynthesisItem(), model.Submission{Text: text})
		require.NoError(t, err)
		return res.Score
	}

	full := score(core + " are the words I remember from the chapter on plant nutrition today")
	assert.Equal(t, 3.0, full)

	assert.Less(t, score(core), full)
	// 14 words: the proportional penalty alone would round back to full marks
	assert.Equal(t, 2.5, score(core+" are the words I remember from the chapter"))
}

func TestDescriptiveScoresAreBoundedHalfMarks(t *testing.T) {
	ev := NewEvaluator(testConfig, nil, nil, nil)
	answers := []string{
		"glucose is made",
		"chlorophyll sunlight",
		"carbon dioxide comes in through stomata and chlorophyll absorbs light",
		strings.Repeat("glucose chlorophyll sunlight energy carbon dioxide stomata ", 20),
		"nothing relevant here at all, just a few words about something else entirely",
	}
	for _, marks := range []float64{1, 2, 2.5, 3, 5} {
		item := photosynthesisItem()
		item.Marks = marks
		for _, a := range answers {
			res, err := ev.Evaluate(context.Background(), item, model.Submission{Text: a})
			require.NoError(t, err)
			assert.GreaterOrEqual(t, res.Score, 0.0)
			assert.LessOrEqual(t, res.Score, marks)
			assert.Equal(t, 0.0, math.Mod(res.Score, 0.5), "score %v", res.Score)
		}
	}
}

func TestDescriptiveWithoutKeyPointsUsesModelAnswerSentences(t *testing.T) {
	item := model.QuestionItem{
		Kind:        model.KindDescriptive,
		Question:    "What is osmosis?",
		Marks:       2,
		ModelAnswer: "Osmosis is movement of water molecules. It happens across a semi-permeable membrane.",
	}
	assert.Equal(t, []string{
		"Osmosis is movement of water molecules",
		"It happens across a semi-permeable membrane",
	}, KeyPoints(item))
}

// vectorTable embeds by lookup and records the batches it was asked for.
type vectorTable struct {
	vectors map[string][]float32
	calls   [][]string
}

func (v *vectorTable) embed(_ context.Context, texts []string) ([][]float32, error) {
	v.calls = append(v.calls, texts)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, ok := v.vectors[t]
		if !ok {
			vec = []float32{0, 0, 1}
		}
		out[i] = vec
	}
	return out, nil
}

const (
	osmosisModel = "Water moves across a membrane from dilute to concentrated solution."
	osmosisP1    = "water moves across a membrane"
	osmosisP2    = "from dilute to concentrated"
	osmosisGood  = "Osmosis is when water travels through a membrane, it goes toward the side where there is more dissolved stuff."
	osmosisOther = "It is the process where the water molecules move through a thin layer that lets only small things across it."
)

func osmosisItem() model.QuestionItem {
	return model.QuestionItem{
		Kind:        model.KindDescriptive,
		Question:    "Explain osmosis.",
		Marks:       2,
		WordLimit:   "20-30 words",
		ModelAnswer: osmosisModel,
		KeyPoints:   []string{osmosisP1, osmosisP2},
	}
}

func newOsmosisTable() *vectorTable {
	return &vectorTable{vectors: map[string][]float32{
		osmosisModel: {1, 0, 0},
		osmosisP1:    {1, 0, 0},
		osmosisP2:    {0, 1, 0},
		osmosisGood:  {1, 0, 0},
		osmosisOther: {1, 0, 0},
	}}
}

func TestSemanticStrategyUsesCachedReferences(t *testing.T) {
	ctrl := gomock.NewController(t)
	embedder := mocks.NewMockEmbedder(ctrl)
	table := newOsmosisTable()
	embedder.EXPECT().EmbedBatch(gomock.Any(), gomock.Any()).DoAndReturn(table.embed).AnyTimes()

	ev := NewEvaluator(testConfig, embedder, nil, nil)

	res, err := ev.Evaluate(context.Background(), osmosisItem(), model.Submission{Text: osmosisGood})
	require.NoError(t, err)

	// 0.4 * 1 + 0.6 * mean(1, 0) = 0.7 of 2 marks
	assert.Equal(t, StrategySemantic, res.Strategy)
	assert.Equal(t, 1.5, res.Score)
	assert.Equal(t, []string{osmosisP1}, res.MatchedPoints)
	assert.Equal(t, []string{osmosisP2}, res.MissingPoints)
	require.NotNil(t, res.SemanticSimilarity)
	assert.InDelta(t, 1.0, *res.SemanticSimilarity, 1e-6)
	assert.Contains(t, res.Feedback, "Similarity to the model answer: 100%.")

	_, err = ev.Evaluate(context.Background(), osmosisItem(), model.Submission{Text: osmosisOther})
	require.NoError(t, err)

	references := 0
	for _, c := range table.calls {
		if len(c) == 3 {
			references++
			assert.Equal(t, []string{osmosisModel, osmosisP1, osmosisP2}, c)
		}
	}
	assert.Equal(t, 1, references)
	assert.Len(t, table.calls, 3)
}

func TestSemanticFailureFallsBackToKeywords(t *testing.T) {
	ctrl := gomock.NewController(t)
	embedder := mocks.NewMockEmbedder(ctrl)
	embedder.EXPECT().EmbedBatch(gomock.Any(), gomock.Any()).Return(nil, errors.New("model not loaded")).AnyTimes()

	ev := NewEvaluator(testConfig, embedder, nil, nil)
	res, err := ev.Evaluate(context.Background(), photosynthesisItem(), model.Submission{
		Text: "Plants use chlorophyll to trap sunlight and make glucose from water and air in the leaves every day for growth.",
	})

	require.NoError(t, err)
	assert.Equal(t, StrategyKeyword, res.Strategy)
	assert.Equal(t, 2.0, res.Score)
}

func TestBatchMatchesSingleEvaluation(t *testing.T) {
	items := []model.QuestionItem{
		osmosisItem(),
		{
			Kind:          model.KindSingleBestAnswer,
			Question:      "Which organ pumps blood?",
			Marks:         1,
			Options:       model.NewOrderedMap("A", "Lung", "B", "Heart"),
			CorrectAnswer: "B",
			Explanation:   "The heart pumps blood.",
		},
		osmosisItem(),
		osmosisItem(),
	}
	subs := []model.Submission{
		{Text: osmosisGood},
		{Choice: "B"},
		{Text: osmosisOther},
		{Text: "short"},
	}

	batchTable := newOsmosisTable()
	ctrl := gomock.NewController(t)
	batchEmbedder := mocks.NewMockEmbedder(ctrl)
	batchEmbedder.EXPECT().EmbedBatch(gomock.Any(), gomock.Any()).DoAndReturn(batchTable.embed).AnyTimes()

	got, err := NewEvaluator(testConfig, batchEmbedder, nil, nil).EvaluateBatch(context.Background(), items, subs)
	require.NoError(t, err)

	singleTable := newOsmosisTable()
	singleEmbedder := mocks.NewMockEmbedder(ctrl)
	singleEmbedder.EXPECT().EmbedBatch(gomock.Any(), gomock.Any()).DoAndReturn(singleTable.embed).AnyTimes()
	single := NewEvaluator(testConfig, singleEmbedder, nil, nil)

	require.Len(t, got, len(items))
	for i := range items {
		want, err := single.Evaluate(context.Background(), items[i], subs[i])
		require.NoError(t, err)
		assert.Equal(t, want, got[i], "item %d", i)
	}

	// one call for both scoreable answers, one for the shared references
	require.Len(t, batchTable.calls, 2)
	assert.Equal(t, []string{osmosisGood, osmosisOther}, batchTable.calls[0])
}

func TestContractViolations(t *testing.T) {
	ev := NewEvaluator(testConfig, nil, nil, nil)

	_, err := ev.Evaluate(context.Background(), model.QuestionItem{
		Kind:     model.KindSingleBestAnswer,
		Question: "No options here?",
		Marks:    1,
	}, model.Submission{Choice: "A"})
	assert.ErrorIs(t, err, model.ErrInvalidItem)

	_, err = ev.EvaluateBatch(context.Background(), []model.QuestionItem{photosynthesisItem()}, nil)
	assert.ErrorIs(t, err, model.ErrInvalidItem)

	bad := photosynthesisItem()
	bad.Marks = 0
	_, err = ev.EvaluateBatch(context.Background(), []model.QuestionItem{photosynthesisItem(), bad}, make([]model.Submission, 2))
	assert.ErrorIs(t, err, model.ErrInvalidItem)
}
