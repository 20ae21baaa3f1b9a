package service

import (
	"fmt"
	"strings"

	"Exam-Prep-Assessment-Backend/internal/model"
	"Exam-Prep-Assessment-Backend/internal/repository"
)

var fallbackTopics = []string{"concept", "principle", "application", "process", "theory"}

// FallbackItems synthesizes count generic items of the requested type. They
// satisfy the item contract but carry no content of their own and are marked
// Fallback.
func FallbackItems(req model.GenerationRequest, qt repository.QuestionType, count int) []model.QuestionItem {
	subject := fallbackSubject(req)
	level := strings.TrimSpace(req.Difficulty)
	if level == "" {
		level = "Understand"
	}
	marks := qt.Marks
	if marks <= 0 {
		marks = 1
	}

	items := make([]model.QuestionItem, 0, count)
	for i := 0; i < count; i++ {
		topic := fallbackTopics[i%len(fallbackTopics)]
		item := model.QuestionItem{
			Kind:         qt.Kind,
			Marks:        marks,
			WordLimit:    qt.WordLimit,
			Difficulty:   level,
			QuestionType: qt.Code,
			Fallback:     true,
		}
		switch qt.Kind {
		case model.KindSingleBestAnswer:
			item.Question = fmt.Sprintf("Which statement best describes the %s discussed in section %d of %s?", topic, i+1, subject)
			item.Options = model.NewOrderedMap(
				"A", fmt.Sprintf("It states the central %s of the material", topic),
				"B", "It explains a key idea from the material",
				"C", "It gives an alternative interpretation of the material",
				"D", "It offers an unrelated perspective",
			)
			item.CorrectAnswer = []string{"A", "B", "C"}[i%3]
			item.Explanation = fmt.Sprintf("This choice matches the %s the material emphasises at the %s level.", topic, level)
		case model.KindDiagramLabel:
			item.Question = fmt.Sprintf("Draw a labelled diagram for the %s covered in %s and name the marked parts 1 to 3.", topic, subject)
			item.Labels = model.NewOrderedMap(
				"1", "main structure",
				"2", "supporting structure",
				"3", "connecting structure",
			)
		default:
			item.Kind = model.KindDescriptive
			item.Question = fmt.Sprintf("Explain the main %s presented in %s and discuss its significance.", topic, subject)
			item.ModelAnswer = fmt.Sprintf("The %s discussed in %s is central to the topic. It shows how the theory applies in practice and connects to the wider subject.", topic, subject)
			item.KeyPoints = []string{
				fmt.Sprintf("Identifies the %s", topic),
				"Explains how it relates to the wider topic",
				"Discusses its practical significance",
			}
		}
		items = append(items, item)
	}
	return items
}

func fallbackSubject(req model.GenerationRequest) string {
	switch {
	case req.Curriculum.Chapter != "":
		return fmt.Sprintf("the chapter %q", req.Curriculum.Chapter)
	case strings.TrimSpace(req.TopicHint) != "":
		return fmt.Sprintf("the topic %q", strings.TrimSpace(req.TopicHint))
	default:
		return "the study material"
	}
}
