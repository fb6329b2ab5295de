// Package importer turns delimited-text uploads into item inputs.
package importer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"content-batch/internal/models"
)

// KeywordSeparator splits the keyword column; keywords may themselves contain commas.
// Inside a keyword it is written as \| and a backslash as \\.
const KeywordSeparator = "|"

// FormatError reports malformed or empty import text
type FormatError struct {
	Line   int
	Reason string
}

func (e *FormatError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("csv format error on line %d: %s", e.Line, e.Reason)
	}
	return "csv format error: " + e.Reason
}

type column int

const (
	colUnknown column = iota
	colTopic
	colKeywords
	colAdditionalInfo
)

var headerAliases = map[string]column{
	"topic":          colTopic,
	"subject":        colTopic,
	"title":          colTopic,
	"keywords":       colKeywords,
	"keyword":        colKeywords,
	"tags":           colKeywords,
	"additionalinfo": colAdditionalInfo,
	"info":           colAdditionalInfo,
	"notes":          colAdditionalInfo,
	"description":    colAdditionalInfo,
	"details":        colAdditionalInfo,
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(h)
}

// Parse reads a header row plus data rows and returns one input per usable row.
// Rows with a blank topic are skipped.
func Parse(text string) ([]models.ItemInput, error) {
	text = strings.TrimPrefix(text, "\ufeff")

	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	records, err := readAll(r)
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, &FormatError{Reason: "expected a header row and at least one data row"}
	}

	index := map[column]int{}
	for i, h := range records[0] {
		col := headerAliases[normalizeHeader(h)]
		if col == colUnknown {
			continue
		}
		if _, seen := index[col]; !seen {
			index[col] = i
		}
	}
	if _, ok := index[colTopic]; !ok {
		return nil, &FormatError{Line: 1, Reason: "no topic column in header"}
	}

	field := func(rec []string, col column) string {
		i, ok := index[col]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var inputs []models.ItemInput
	for _, rec := range records[1:] {
		topic := field(rec, colTopic)
		if topic == "" {
			continue
		}
		inputs = append(inputs, models.ItemInput{
			Topic:          topic,
			Keywords:       splitKeywords(field(rec, colKeywords)),
			AdditionalInfo: field(rec, colAdditionalInfo),
		})
	}

	if len(inputs) == 0 {
		return nil, &FormatError{Reason: "no rows with a topic"}
	}
	return inputs, nil
}

func readAll(r *csv.Reader) ([][]string, error) {
	var records [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				return nil, &FormatError{Line: perr.Line, Reason: perr.Err.Error()}
			}
			return nil, &FormatError{Reason: err.Error()}
		}
		records = append(records, rec)
	}
}

// splitKeywords splits on the separator; a backslash escapes the separator or itself
func splitKeywords(s string) []string {
	if s == "" {
		return nil
	}
	var (
		out []string
		cur strings.Builder
	)
	flush := func() {
		if k := strings.TrimSpace(cur.String()); k != "" {
			out = append(out, k)
		}
		cur.Reset()
	}
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] == '\\' && i+1 < len(s) && (s[i+1] == '\\' || s[i+1] == KeywordSeparator[0]):
			i++
			cur.WriteByte(s[i])
		case s[i] == KeywordSeparator[0]:
			flush()
		default:
			cur.WriteByte(s[i])
		}
	}
	flush()
	return out
}

var keywordEscaper = strings.NewReplacer(`\`, `\\`, KeywordSeparator, `\`+KeywordSeparator)

func joinKeywords(keywords []string) string {
	escaped := make([]string, len(keywords))
	for i, k := range keywords {
		escaped[i] = keywordEscaper.Replace(k)
	}
	return strings.Join(escaped, KeywordSeparator)
}

// Serialize writes inputs in the format Parse reads. Parse trims every field, so
// the round trip is exact for inputs without surrounding whitespace.
func Serialize(inputs []models.ItemInput) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"topic", "keywords", "additionalInfo"}); err != nil {
		return "", fmt.Errorf("failed to write header: %w", err)
	}
	for _, in := range inputs {
		row := []string{in.Topic, joinKeywords(in.Keywords), in.AdditionalInfo}
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("failed to write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("failed to flush csv: %w", err)
	}
	return buf.String(), nil
}
