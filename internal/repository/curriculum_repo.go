package repository

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/spf13/afero"

	"Exam-Prep-Assessment-Backend/internal/model"
)

//go:embed data/curriculum.yaml
var defaultCurriculum []byte

var defaultBloomVerbs = []string{"Explain", "Describe"}

type QuestionType struct {
	Code        string     `yaml:"-" json:"code"`
	Name        string     `yaml:"name" json:"name"`
	Kind        model.Kind `yaml:"kind" json:"kind"`
	Marks       float64    `yaml:"marks" json:"marks"`
	WordLimit   string     `yaml:"word_limit" json:"word_limit,omitempty"`
	Visual      bool       `yaml:"visual" json:"visual,omitempty"`
	Scenario    bool       `yaml:"scenario" json:"scenario,omitempty"`
	Description string     `yaml:"description" json:"description"`
}

type PatternSection struct {
	Count int     `yaml:"count" json:"count"`
	Marks float64 `yaml:"marks" json:"marks"`
}

type ChapterReference struct {
	Pages   string   `yaml:"pages" json:"pages"`
	KeyFigs []string `yaml:"key_figs" json:"key_figs"`
}

type CurriculumTables struct {
	Boards        []string                               `yaml:"boards" json:"boards"`
	Classes       []int                                  `yaml:"classes" json:"classes"`
	Subjects      map[string][]string                    `yaml:"subjects" json:"subjects"`
	QuestionTypes map[string]QuestionType                `yaml:"question_types" json:"question_types"`
	BloomLevels   map[string][]string                    `yaml:"bloom_levels" json:"bloom_levels"`
	ExamPatterns  map[string]map[string]PatternSection   `yaml:"exam_patterns" json:"exam_patterns"`
	Chapters      map[string][]string                    `yaml:"chapters" json:"chapters"`
	References    map[string]map[string]ChapterReference `yaml:"references" json:"references"`
}

// CurriculumRepository serves the static curriculum tables. They are read once
// and never mutated.
type CurriculumRepository struct {
	data CurriculumTables
}

// NewCurriculumRepository loads the tables from overridePath on fs, or the
// built-in tables when overridePath is empty.
func NewCurriculumRepository(fs afero.Fs, overridePath string) (*CurriculumRepository, error) {
	raw := defaultCurriculum
	if overridePath != "" {
		data, err := afero.ReadFile(fs, overridePath)
		if err != nil {
			return nil, fmt.Errorf("read curriculum file '%s': %w", overridePath, err)
		}
		raw = data
	}

	var c CurriculumTables
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parse curriculum tables: %w", err)
	}
	for code, qt := range c.QuestionTypes {
		qt.Code = code
		if !qt.Kind.Valid() {
			return nil, fmt.Errorf("question type %s has unknown kind %q", code, qt.Kind)
		}
		c.QuestionTypes[code] = qt
	}
	return &CurriculumRepository{data: c}, nil
}

func (r *CurriculumRepository) QuestionType(code string) (QuestionType, bool) {
	qt, ok := r.data.QuestionTypes[strings.ToUpper(strings.TrimSpace(code))]
	return qt, ok
}

// QuestionTypeForKind returns the first question type (by code) of the given kind.
func (r *CurriculumRepository) QuestionTypeForKind(kind model.Kind) (QuestionType, bool) {
	codes := make([]string, 0, len(r.data.QuestionTypes))
	for code := range r.data.QuestionTypes {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		if qt := r.data.QuestionTypes[code]; qt.Kind == kind && !qt.Scenario {
			return qt, true
		}
	}
	return QuestionType{}, false
}

// BloomVerbs returns exemplar command verbs for a Bloom level.
func (r *CurriculumRepository) BloomVerbs(level string) []string {
	for name, verbs := range r.data.BloomLevels {
		if strings.EqualFold(name, strings.TrimSpace(level)) {
			return verbs
		}
	}
	return defaultBloomVerbs
}

func (r *CurriculumRepository) Chapters(subject string, class int) []string {
	return r.data.Chapters[fmt.Sprintf("%s_%d", subject, class)]
}

func (r *CurriculumRepository) ExamPattern(board string, class int) map[string]PatternSection {
	if p, ok := r.data.ExamPatterns[fmt.Sprintf("%s_%d", board, class)]; ok {
		return p
	}
	return r.data.ExamPatterns[board]
}

// Reference renders the textbook reference line for a chapter, or "" when the
// chapter is not in the tables.
func (r *CurriculumRepository) Reference(c model.Curriculum) string {
	ref, ok := r.data.References[fmt.Sprintf("%s_%d", c.Subject, c.Class)][c.Chapter]
	if !ok {
		return ""
	}
	parts := []string{
		fmt.Sprintf("NCERT %s Class %d", c.Subject, c.Class),
		"Chapter: " + c.Chapter,
	}
	if ref.Pages != "" {
		parts = append(parts, "Pages "+ref.Pages)
	}
	if len(ref.KeyFigs) > 0 {
		figs := ref.KeyFigs
		if len(figs) > 3 {
			figs = figs[:3]
		}
		parts = append(parts, "Key Figures: "+strings.Join(figs, ", "))
	}
	return strings.Join(parts, " | ")
}

func (r *CurriculumRepository) Snapshot() CurriculumTables {
	return r.data
}
