package service

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"content-batch/internal/logger"
	"content-batch/internal/models"
)

func exportJob() *models.Job {
	return &models.Job{
		ID:             "job-1",
		GlobalSettings: models.Settings{Model: "gpt-4o-mini"},
		Items: []*models.Item{
			{ID: "a", Order: 1, Status: models.ItemCompleted, Input: models.ItemInput{Topic: "Go Channels", Keywords: []string{"go", "concurrency"}},
				Output: &models.ItemOutput{Title: "Understanding Go Channels!", Body: "Channels connect goroutines.", CharCount: 28}},
			{ID: "b", Order: 2, Status: models.ItemFailed, Input: models.ItemInput{Topic: "Broken"}, Error: "timeout"},
			{ID: "c", Order: 3, Status: models.ItemCompleted, Input: models.ItemInput{Topic: "Context"},
				Settings: &models.Settings{Model: "gpt-4o"},
				Output:   &models.ItemOutput{Title: "", Body: "Cancellation.", CharCount: 13}},
			{ID: "d", Order: 4, Status: models.ItemPending, Input: models.ItemInput{Topic: "Later"}},
		},
	}
}

func TestBuildRecords(t *testing.T) {
	records := BuildRecords(exportJob())

	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Order != 1 || records[0].Title != "Understanding Go Channels!" || records[0].Model != "gpt-4o-mini" {
		t.Errorf("unexpected first record %+v", records[0])
	}
	if records[1].Order != 3 || records[1].Model != "gpt-4o" {
		t.Errorf("expected per-item model override, got %+v", records[1])
	}
	if records[1].Keywords == nil {
		t.Errorf("expected empty keywords to export as an empty list")
	}

	if empty := BuildRecords(nil); empty == nil || len(empty) != 0 {
		t.Errorf("expected an empty record list for no job")
	}
}

func TestDocumentName(t *testing.T) {
	tests := []struct {
		rec  ExportRecord
		want string
	}{
		{ExportRecord{Order: 1, Title: "Understanding Go Channels!"}, "001-understanding-go-channels.md"},
		{ExportRecord{Order: 12, Topic: "Fallback Topic"}, "012-fallback-topic.md"},
		{ExportRecord{Order: 3, Title: "???"}, "003-item.md"},
	}
	for _, tt := range tests {
		if got := DocumentName(tt.rec); got != tt.want {
			t.Errorf("expected %s, got %s", tt.want, got)
		}
	}
}

func TestBuildDocumentBundle(t *testing.T) {
	data, err := BuildDocumentBundle(BuildRecords(exportJob()))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("expected a valid zip, got %v", err)
	}

	files := make(map[string]string)
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("failed to open %s: %v", f.Name, err)
		}
		body, _ := io.ReadAll(rc)
		rc.Close()
		files[f.Name] = string(body)
	}

	if len(files) != 3 {
		t.Errorf("expected 2 documents and an index, got %d files", len(files))
	}
	doc, ok := files["001-understanding-go-channels.md"]
	if !ok {
		t.Fatalf("expected document for item 1, got %v", files)
	}
	if !strings.Contains(doc, `topic: "Go Channels"`) || !strings.Contains(doc, "# Understanding Go Channels!") {
		t.Errorf("unexpected document content:\n%s", doc)
	}
	if _, ok := files["003-context.md"]; !ok {
		t.Errorf("expected untitled item to be named after its topic")
	}
	if !strings.Contains(files["index.md"], "(003-context.md)") {
		t.Errorf("expected index to link documents, got:\n%s", files["index.md"])
	}
}

func TestController_Exports(t *testing.T) {
	c := NewController(&memStore{}, newFakeGenerator(), Options{Pacer: NewPacer(0, 0), Logger: logger.Discard()})

	if _, err := c.ExportAsStructuredRecords(); !errors.Is(err, ErrNoJob) {
		t.Errorf("expected ErrNoJob, got %v", err)
	}

	if _, err := c.CreateJob(context.Background(), inputs("A", "B"), models.Settings{Model: "gpt-4o"}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	runToEnd(t, c, c.Start)

	data, err := c.ExportAsStructuredRecords()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	var records []ExportRecord
	if err := json.Unmarshal(data, &records); err != nil {
		t.Fatalf("expected valid JSON, got %v", err)
	}
	if len(records) != 2 || records[0].Topic != "A" || records[1].Title != "Title for B" {
		t.Errorf("unexpected records %+v", records)
	}

	bundle, err := c.ExportAsDocumentBundle()
	if err != nil || len(bundle) == 0 {
		t.Errorf("expected a bundle, got %d bytes and %v", len(bundle), err)
	}
}
