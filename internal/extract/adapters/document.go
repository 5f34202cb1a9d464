package adapters

import (
	"regexp"
	"strings"

	"github.com/ppiankov/confluence/internal/model"
	"golang.org/x/net/html"
)

// markupPattern detects excerpts that carry HTML tags
var markupPattern = regexp.MustCompile(`</?[a-zA-Z][a-zA-Z0-9]*(\s[^<>]*)?/?>`)

// DocumentAdapter normalizes document excerpts
type DocumentAdapter struct{}

// NewDocumentAdapter creates a new document adapter
func NewDocumentAdapter() *DocumentAdapter {
	return &DocumentAdapter{}
}

// Kind returns DOCUMENT
func (a *DocumentAdapter) Kind() model.SourceKind {
	return model.SourceDocument
}

// Normalize converts each excerpt into a record, reducing HTML excerpts to
// their visible text
func (a *DocumentAdapter) Normalize(req model.FusionRequest, d Defaults) []model.SourceRecord {
	records := make([]model.SourceRecord, 0, len(req.Documents))
	for i, doc := range req.Documents {
		content := model.ContentString(doc.Content)
		fromHTML := false
		if markupPattern.MatchString(content) {
			if text, err := VisibleText(content); err == nil {
				content = text
				fromHTML = true
			}
		}

		rec := newRecord(a.Kind(), i, content, d, doc.Confidence, doc.Relevance, doc.CreatedAt)

		rec.Metadata.Set("document_id", doc.DocumentID)
		if doc.Title != "" {
			rec.Metadata.Set("title", doc.Title)
		}
		if doc.Page != nil {
			rec.Metadata.Set("page", *doc.Page)
		}
		if doc.ChunkIndex != nil {
			rec.Metadata.Set("chunk_index", *doc.ChunkIndex)
		}
		if fromHTML {
			rec.Metadata.Set("html_stripped", true)
		}

		records = append(records, rec)
	}
	return records
}

// VisibleText parses an HTML fragment and returns its text nodes, skipping
// scripts and styles
func VisibleText(fragment string) (string, error) {
	doc, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		return "", err
	}

	var buf strings.Builder

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe", "head":
				return
			}
		}

		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				buf.WriteString(text)
				buf.WriteString(" ")
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(doc)
	return strings.TrimSpace(buf.String()), nil
}
