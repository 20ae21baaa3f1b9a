package content

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"
)

const DefaultMaxPDFPages = 5

var (
	htmlMarker = regexp.MustCompile(`(?i)<(html|body|article|p|div|section)[\s>]`)
	spaceRun   = regexp.MustCompile(`[ \t\r\f\v]+`)
)

// LooksLikeHTML reports whether s is markup rather than plain text.
func LooksLikeHTML(s string) bool {
	return htmlMarker.MatchString(s)
}

// ExtractHTML returns the readable text of an HTML document with one paragraph
// per block element.
func ExtractHTML(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style, noscript, nav, footer").Remove()

	var blocks []string
	doc.Find("h1, h2, h3, h4, h5, h6, p, li, pre, blockquote, td, figcaption").Each(func(_ int, s *goquery.Selection) {
		if s.Find("p, li").Length() > 0 {
			return
		}
		if text := normalizeSpace(s.Text()); text != "" {
			blocks = append(blocks, text)
		}
	})
	if len(blocks) == 0 {
		return normalizeSpace(doc.Text()), nil
	}
	return strings.Join(blocks, paragraphBreak), nil
}

// ExtractPDF reads the plain text of the first maxPages pages of a PDF file.
func ExtractPDF(path string, maxPages int) (string, error) {
	if maxPages <= 0 {
		maxPages = DefaultMaxPDFPages
	}
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf %s: %w", path, err)
	}
	defer f.Close()

	var pages []string
	for i := 1; i <= r.NumPage() && i <= maxPages; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("read pdf page %d: %w", i, err)
		}
		if text = strings.TrimSpace(text); text != "" {
			pages = append(pages, text)
		}
	}
	return strings.Join(pages, paragraphBreak), nil
}

func normalizeSpace(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		if l = strings.TrimSpace(spaceRun.ReplaceAllString(l, " ")); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, " ")
}
