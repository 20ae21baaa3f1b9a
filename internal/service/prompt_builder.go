package service

import (
	"fmt"
	"strings"

	"Exam-Prep-Assessment-Backend/internal/model"
	"Exam-Prep-Assessment-Backend/internal/repository"
)

const systemPrompt = "You are an experienced school examiner. You write exam questions strictly from the study material you are given and reply with a JSON array only."

// Prompt is the rendered request for the text generation collaborator.
type Prompt struct {
	System string
	User   string
}

// PromptBuilder renders generation requests. It only reads the curriculum
// tables, so the same request always renders the same prompt.
type PromptBuilder struct {
	curriculum *repository.CurriculumRepository
}

func NewPromptBuilder(curriculum *repository.CurriculumRepository) *PromptBuilder {
	return &PromptBuilder{curriculum: curriculum}
}

// ResolveType picks the question type for a request: the named type when it
// exists, else the first type of the requested kind, else MCQ.
func (b *PromptBuilder) ResolveType(req model.GenerationRequest) repository.QuestionType {
	if qt, ok := b.curriculum.QuestionType(req.QuestionType); ok {
		return qt
	}
	if req.Kind.Valid() {
		if qt, ok := b.curriculum.QuestionTypeForKind(req.Kind); ok {
			return qt
		}
	}
	if qt, ok := b.curriculum.QuestionType("MCQ"); ok {
		return qt
	}
	return repository.QuestionType{Code: "MCQ", Name: "Multiple Choice", Kind: model.KindSingleBestAnswer, Marks: 1}
}

// Build renders the prompt. strict adds the reminder used after a reply
// that yielded no usable questions.
func (b *PromptBuilder) Build(req model.GenerationRequest, qt repository.QuestionType, content string, strict bool) Prompt {
	var sb strings.Builder

	level := strings.TrimSpace(req.Difficulty)
	if level == "" {
		level = "Understand"
	}
	verbs := strings.Join(b.curriculum.BloomVerbs(level), ", ")

	sb.WriteString(b.header(req, qt, level, verbs))
	sb.WriteString("\nCONTENT:\n")
	sb.WriteString(content)
	sb.WriteString("\n\nRULES:\n")
	sb.WriteString("- Use ONLY the content above. Do not summarise or repeat it.\n")
	sb.WriteString("- Do not use generic filler such as \"Option A\", \"Question text\" or \"Sample question\"; every string must be real exam text.\n")
	sb.WriteString("- Return ONLY a JSON array. No markdown fences, no commentary before or after it.\n")
	if strict {
		sb.WriteString("- Your previous reply could not be used. Every object MUST contain every field shown in the format below, with non-empty values.\n")
		sb.WriteString("- Start your reply with [ and end it with ].\n")
	}
	sb.WriteString("\nFORMAT:\n")
	sb.WriteString(format(qt, req, level))

	return Prompt{System: systemPrompt, User: sb.String()}
}

func (b *PromptBuilder) header(req model.GenerationRequest, qt repository.QuestionType, level, verbs string) string {
	var sb strings.Builder
	n := req.Count
	switch {
	case qt.Kind == model.KindSingleBestAnswer:
		fmt.Fprintf(&sb, "Create exactly %d multiple-choice questions at the %q level of Bloom's taxonomy.\n", n, level)
		sb.WriteString("Each question has four options (A, B, C, D) with exactly one correct answer and plausible distractors.\n")
	case qt.Kind == model.KindDiagramLabel:
		fmt.Fprintf(&sb, "Create exactly %d diagram labelling questions.\n", n)
		sb.WriteString("Each question describes a figure from the content whose parts are marked with numbers, and lists the expected name for every marked part.\n")
	case qt.Scenario || req.Scenario:
		fmt.Fprintf(&sb, "Create exactly %d case-based questions at the %q level of Bloom's taxonomy.\n", n, level)
		sb.WriteString("Each question opens with a short real-life scenario drawn from the content, followed by an analytical question about it.\n")
	default:
		fmt.Fprintf(&sb, "Create exactly %d %s questions at the %q level of Bloom's taxonomy.\n", n, strings.ToLower(qt.Name), level)
	}
	if qt.Kind != model.KindDiagramLabel {
		fmt.Fprintf(&sb, "Start questions with command verbs such as: %s.\n", verbs)
	}
	if qt.Marks > 0 {
		fmt.Fprintf(&sb, "Each question carries %g mark(s).", qt.Marks)
		if qt.WordLimit != "" {
			fmt.Fprintf(&sb, " Expected answer length: %s.", qt.WordLimit)
		}
		sb.WriteString("\n")
	}
	if c := req.Curriculum; c.Subject != "" {
		fmt.Fprintf(&sb, "Curriculum: %s", c.Subject)
		if c.Class > 0 {
			fmt.Fprintf(&sb, ", Class %d", c.Class)
		}
		if c.Board != "" {
			fmt.Fprintf(&sb, " (%s)", c.Board)
		}
		if c.Chapter != "" {
			fmt.Fprintf(&sb, ", chapter %q", c.Chapter)
		}
		sb.WriteString(".\n")
	}
	if topic := strings.TrimSpace(req.TopicHint); topic != "" {
		fmt.Fprintf(&sb, "Focus on: %s.\n", topic)
	}
	return sb.String()
}

func format(qt repository.QuestionType, req model.GenerationRequest, level string) string {
	switch {
	case qt.Kind == model.KindSingleBestAnswer:
		return fmt.Sprintf(`[
  {
    "kind": "mcq",
    "question": "<the question>",
    "options": {"A": "<first choice>", "B": "<second choice>", "C": "<third choice>", "D": "<fourth choice>"},
    "correct_answer": "<A, B, C or D>",
    "explanation": "<why the answer is correct>",
    "difficulty": %q
  }
]`, level)
	case qt.Kind == model.KindDiagramLabel:
		return `[
  {
    "kind": "diagram_label",
    "question": "<the figure and what to label>",
    "labels": {"1": "<name of part 1>", "2": "<name of part 2>", "3": "<name of part 3>"}
  }
]`
	case qt.Scenario || req.Scenario:
		return fmt.Sprintf(`[
  {
    "kind": "descriptive",
    "scenario": "<two or three sentence situation>",
    "question": "<the question about the scenario>",
    "model_answer": "<a full marks answer>",
    "key_points": ["<point>", "<point>", "<point>"],
    "word_limit": %q,
    "difficulty": %q
  }
]`, qt.WordLimit, level)
	default:
		return fmt.Sprintf(`[
  {
    "kind": "descriptive",
    "question": "<the question>",
    "model_answer": "<a full marks answer>",
    "key_points": ["<point>", "<point>", "<point>"],
    "word_limit": %q,
    "difficulty": %q
  }
]`, qt.WordLimit, level)
	}
}
