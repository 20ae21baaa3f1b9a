package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"Exam-Prep-Assessment-Backend/internal/model"
)

// ContentSampleRunes bounds how much of the content takes part in the cache key.
const ContentSampleRunes = 1000

const keyVersion = "v1"

// DeriveCacheKey returns a stable sha256 hex identity for a generation request over
// the given (already prepared) content. It hashes a bounded content prefix together
// with the full content length, every generation parameter and the image set.
func DeriveCacheKey(req model.GenerationRequest, content string) string {
	runes := []rune(content)
	sample := runes
	if len(sample) > ContentSampleRunes {
		sample = sample[:ContentSampleRunes]
	}

	parts := []string{
		keyVersion,
		"content=" + string(sample),
		fmt.Sprintf("length=%d", len(runes)),
		fmt.Sprintf("count=%d", req.Count),
		"difficulty=" + normalize(req.Difficulty),
		"type=" + normalize(req.QuestionType),
		"kind=" + string(req.Kind),
		fmt.Sprintf("scenario=%t", req.Scenario),
		"topic=" + normalize(req.TopicHint),
		"board=" + normalize(req.Curriculum.Board),
		fmt.Sprintf("class=%d", req.Curriculum.Class),
		"subject=" + normalize(req.Curriculum.Subject),
		"chapter=" + normalize(req.Curriculum.Chapter),
		"images=" + ImageFingerprint(req.Images),
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:])
}

// ImageFingerprint is an order independent digest of the attached images.
func ImageFingerprint(images []model.Image) string {
	if len(images) == 0 {
		return ""
	}
	digests := make([]string, 0, len(images))
	for _, img := range images {
		sum := sha256.Sum256(img.Data)
		digests = append(digests, hex.EncodeToString(sum[:]))
	}
	sort.Strings(digests)
	return strings.Join(digests, ",")
}

func normalize(s string) string {
	return strings.TrimSpace(strings.TrimRight(strings.TrimSpace(s), ". "))
}
