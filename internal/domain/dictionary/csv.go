package dictionary

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Schema fixes the delimiter and column positions of an upstream CSV.
// A deployment uses exactly one schema; it is never inferred from the data.
type Schema struct {
	Name      string
	Comma     rune
	CodeField int
	NameField int
}

var (
	// SchemaMKB10 matches the ak4nv/mkb10 export: "id","parent_code","code","name".
	SchemaMKB10 = Schema{Name: "mkb10", Comma: ',', CodeField: 2, NameField: 3}
	// SchemaPlain is a two-column "code;name" file.
	SchemaPlain = Schema{Name: "plain", Comma: ';', CodeField: 0, NameField: 1}
)

// SchemaByName resolves a configured schema name.
func SchemaByName(name string) (Schema, error) {
	switch name {
	case SchemaMKB10.Name:
		return SchemaMKB10, nil
	case SchemaPlain.Name:
		return SchemaPlain, nil
	}
	return Schema{}, fmt.Errorf("unknown dictionary schema %q", name)
}

func (s Schema) minFields() int {
	return max(s.CodeField, s.NameField) + 1
}

// Parser turns CSV bytes into validated entries.
type Parser struct {
	schema Schema
}

func NewParser(schema Schema) *Parser {
	return &Parser{schema: schema}
}

// Parse reads the whole stream. The first record is a header and is skipped.
// Short rows, rows with a malformed code and rows with an empty name are
// dropped and counted. When a code repeats, the later name replaces the
// earlier one in place. A read or framing error aborts with *ParseError and
// no entries. Quoting is strict: an unterminated or stray quote is a
// framing error, never part of a name.
func (p *Parser) Parse(r io.Reader) ([]Entry, ParseStats, error) {
	var stats ParseStats

	cr := csv.NewReader(r)
	cr.Comma = p.schema.Comma
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	if _, err := cr.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, stats, nil
		}
		return nil, stats, parseError(1, err)
	}
	line, _ := cr.FieldPos(0)

	var entries []Entry
	index := make(map[string]int)
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, ParseStats{}, parseError(line+1, err)
		}
		line, _ = cr.FieldPos(0)
		stats.Rows++

		if len(record) < p.schema.minFields() {
			stats.Short++
			continue
		}

		code := clean(record[p.schema.CodeField])
		name := clean(record[p.schema.NameField])
		if !ValidCode(code) || name == "" {
			stats.Invalid++
			continue
		}

		if i, ok := index[code]; ok {
			entries[i].Name = name
			stats.Duplicates++
			continue
		}
		index[code] = len(entries)
		entries = append(entries, Entry{Code: code, Name: name})
	}

	stats.Accepted = len(entries)
	return entries, stats, nil
}

// parseError prefers the line reported by encoding/csv; next is the line
// after the last record read successfully.
func parseError(next int, err error) error {
	var csvErr *csv.ParseError
	if errors.As(err, &csvErr) {
		return &ParseError{Line: csvErr.Line, Err: csvErr.Err}
	}
	return &ParseError{Line: next, Err: err}
}

func clean(field string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(field), `"`))
}
