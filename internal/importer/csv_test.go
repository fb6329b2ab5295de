package importer

import (
	"errors"
	"reflect"
	"testing"

	"content-batch/internal/models"
)

func TestParse_RecognizedColumns(t *testing.T) {
	text := "Subject,Tags,Additional Info\n" +
		"Go concurrency,goroutines|channels,\"intro, with examples\"\n" +
		"\"Quoted \"\"topic\"\"\",a, b|c,\n"

	got, err := Parse(text)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	want := []models.ItemInput{
		{Topic: "Go concurrency", Keywords: []string{"goroutines", "channels"}, AdditionalInfo: "intro, with examples"},
		{Topic: `Quoted "topic"`, Keywords: []string{"a"}, AdditionalInfo: "b|c"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %+v, got %+v", want, got)
	}
}

func TestParse_SkipsBlankTopics(t *testing.T) {
	text := "topic,keywords\n   ,x\nRust,\n,\n"

	got, err := Parse(text)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(got) != 1 || got[0].Topic != "Rust" || got[0].Keywords != nil {
		t.Errorf("unexpected result %+v", got)
	}
}

func TestParse_FormatErrors(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"header only", "topic,keywords\n"},
		{"no topic column", "keywords,notes\nx,y\n"},
		{"no usable rows", "topic,keywords\n ,a|b\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.text)
			var ferr *FormatError
			if !errors.As(err, &ferr) {
				t.Fatalf("expected FormatError, got %v", err)
			}
		})
	}
}

func TestParse_StripsBOMAndCRLF(t *testing.T) {
	got, err := Parse("\ufeffTopic,Keywords\r\nHello,world\r\n")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(got) != 1 || got[0].Topic != "Hello" || got[0].Keywords[0] != "world" {
		t.Errorf("unexpected result %+v", got)
	}
}

func TestSerialize_RoundTrip(t *testing.T) {
	inputs := []models.ItemInput{
		{Topic: "Plain", Keywords: []string{"one", "two words"}, AdditionalInfo: "none"},
		{Topic: "With, comma", Keywords: []string{"a,b", "c"}, AdditionalInfo: `says "hi"`},
		{Topic: "No extras"},
		{Topic: "Multi\nline", AdditionalInfo: "line one\nline two"},
		{Topic: "Pipes", Keywords: []string{"a|b", `back\slash`, `trail\`, "c"}},
	}

	text, err := Serialize(inputs)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}

	got, err := Parse(text)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !reflect.DeepEqual(got, inputs) {
		t.Errorf("round trip mismatch:\nwant %+v\ngot  %+v", inputs, got)
	}
}

func TestParse_KeywordEscapes(t *testing.T) {
	got, err := Parse("topic,keywords\nGo," + `a\|b|c\\d|lone\x` + "\n")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := []string{"a|b", `c\d`, `lone\x`}
	if !reflect.DeepEqual(got[0].Keywords, want) {
		t.Errorf("expected keywords %q, got %q", want, got[0].Keywords)
	}
}
