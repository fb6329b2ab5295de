package service

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"content-batch/internal/models"
)

// ExportRecord is one completed item in the structured export
type ExportRecord struct {
	Order       int        `json:"order"`
	Topic       string     `json:"topic"`
	Keywords    []string   `json:"keywords"`
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	CharCount   int        `json:"charCount"`
	Model       string     `json:"model,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// BuildRecords projects the completed items of job, in order
func BuildRecords(job *models.Job) []ExportRecord {
	records := []ExportRecord{}
	if job == nil {
		return records
	}
	for _, it := range job.Items {
		if it.Status != models.ItemCompleted || it.Output == nil {
			continue
		}
		settings := job.GlobalSettings.Merge(it.Settings)
		keywords := it.Input.Keywords
		if keywords == nil {
			keywords = []string{}
		}
		records = append(records, ExportRecord{
			Order:       it.Order,
			Topic:       it.Input.Topic,
			Keywords:    keywords,
			Title:       it.Output.Title,
			Body:        it.Output.Body,
			CharCount:   it.Output.CharCount,
			Model:       settings.Model,
			CompletedAt: it.CompletedAt,
		})
	}
	return records
}

// ExportAsStructuredRecords returns the completed items as a JSON array
func (c *Controller) ExportAsStructuredRecords() ([]byte, error) {
	job := c.GetJob()
	if job == nil {
		return nil, ErrNoJob
	}
	data, err := json.MarshalIndent(BuildRecords(job), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal records: %w", err)
	}
	return data, nil
}

// ExportAsDocumentBundle returns a zip archive with one markdown document per
// completed item plus an index
func (c *Controller) ExportAsDocumentBundle() ([]byte, error) {
	job := c.GetJob()
	if job == nil {
		return nil, ErrNoJob
	}
	return BuildDocumentBundle(BuildRecords(job))
}

// BuildDocumentBundle writes records into a zip archive
func BuildDocumentBundle(records []ExportRecord) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	var index strings.Builder
	index.WriteString("# Generated content\n\n")

	for _, rec := range records {
		name := DocumentName(rec)
		w, err := zw.Create(name)
		if err != nil {
			return nil, fmt.Errorf("failed to add %s: %w", name, err)
		}
		if _, err := w.Write([]byte(renderDocument(rec))); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", name, err)
		}
		fmt.Fprintf(&index, "%d. [%s](%s)\n", rec.Order, documentTitle(rec), name)
	}

	w, err := zw.Create("index.md")
	if err != nil {
		return nil, fmt.Errorf("failed to add index: %w", err)
	}
	if _, err := w.Write([]byte(index.String())); err != nil {
		return nil, fmt.Errorf("failed to write index: %w", err)
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish bundle: %w", err)
	}
	return buf.Bytes(), nil
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// DocumentName returns the bundle file name for a record, e.g. 001-my-topic.md
func DocumentName(rec ExportRecord) string {
	slug := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(documentTitle(rec)), "-"), "-")
	if len(slug) > 60 {
		slug = strings.TrimRight(slug[:60], "-")
	}
	if slug == "" {
		slug = "item"
	}
	return fmt.Sprintf("%03d-%s.md", rec.Order, slug)
}

func documentTitle(rec ExportRecord) string {
	if t := strings.TrimSpace(rec.Title); t != "" {
		return t
	}
	return rec.Topic
}

func renderDocument(rec ExportRecord) string {
	var b strings.Builder
	b.WriteString("---\n")
	fmt.Fprintf(&b, "topic: %q\n", rec.Topic)
	if len(rec.Keywords) > 0 {
		quoted := make([]string, len(rec.Keywords))
		for i, k := range rec.Keywords {
			quoted[i] = fmt.Sprintf("%q", k)
		}
		fmt.Fprintf(&b, "keywords: [%s]\n", strings.Join(quoted, ", "))
	}
	if rec.Model != "" {
		fmt.Fprintf(&b, "model: %s\n", rec.Model)
	}
	b.WriteString("---\n\n")
	fmt.Fprintf(&b, "# %s\n\n", documentTitle(rec))
	b.WriteString(strings.TrimSpace(rec.Body))
	b.WriteString("\n")
	return b.String()
}
