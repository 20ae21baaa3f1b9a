package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"Exam-Prep-Assessment-Backend/internal/content"
	"Exam-Prep-Assessment-Backend/internal/model"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

const pdfPageLimit = 5

var genFlags struct {
	file         string
	topic        string
	count        int
	difficulty   string
	questionType string
	board        string
	class        int
	subject      string
	chapter      string
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate questions from a text, HTML or PDF file",
	Long: `Reads study material from --file and prints the generation result as JSON.

Example:
  exam-prep generate --file chapter6.pdf --type SA --count 4 --subject Biology --class 10`,
	RunE: runGenerate,
}

func init() {
	f := generateCmd.Flags()
	f.StringVarP(&genFlags.file, "file", "f", "", "study material (.txt, .html or .pdf)")
	f.StringVar(&genFlags.topic, "topic", "", "focus the questions on this topic")
	f.IntVarP(&genFlags.count, "count", "n", 5, "number of questions")
	f.StringVar(&genFlags.difficulty, "difficulty", "Understand", "Bloom level (Remember..Create)")
	f.StringVarP(&genFlags.questionType, "type", "t", "MCQ", "question type code (MCQ, VSA, SA, LA, LABEL, CASE)")
	f.StringVar(&genFlags.board, "board", "CBSE", "exam board")
	f.IntVar(&genFlags.class, "class", 10, "class")
	f.StringVar(&genFlags.subject, "subject", "", "subject")
	f.StringVar(&genFlags.chapter, "chapter", "", "chapter")
	_ = generateCmd.MarkFlagRequired("file")
}

func readMaterial(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".pdf" {
		return content.ExtractPDF(path, pdfPageLimit)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	if ext == ".html" || ext == ".htm" || content.LooksLikeHTML(string(data)) {
		return content.ExtractHTML(bytes.NewReader(data))
	}
	return string(data), nil
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context(), configFile)
	if err != nil {
		return err
	}
	defer a.Close(cmd.Context())

	text, err := readMaterial(genFlags.file)
	if err != nil {
		return err
	}
	if n := utf8.RuneCountInString(strings.TrimSpace(text)); n < a.cfg.Generation.MinContentLength {
		return fmt.Errorf("%s has %d characters of text, at least %d are required", genFlags.file, n, a.cfg.Generation.MinContentLength)
	}

	res := a.generation.Generate(cmd.Context(), model.GenerationRequest{
		Content:      text,
		TopicHint:    genFlags.topic,
		Count:        genFlags.count,
		Difficulty:   genFlags.difficulty,
		QuestionType: genFlags.questionType,
		Curriculum: model.Curriculum{
			Board:   genFlags.board,
			Class:   genFlags.class,
			Subject: genFlags.subject,
			Chapter: genFlags.chapter,
		},
	})

	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return err
}
