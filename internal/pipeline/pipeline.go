// Package pipeline provides helpers for reading and writing filing streams
// via stdin/stdout in JSONL format, the pipe format between
// `filings get --format jsonl` and `filings download --stdin`.
package pipeline

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/derickschaefer/filings/internal/filingset"
	"github.com/derickschaefer/filings/internal/model"
)

// Line is the JSONL form of one filing. Relations appear only when they
// were loaded; an empty but loaded message list is written as [].
type Line struct {
	*model.Filing
	Entity             *model.Entity               `json:"entity,omitempty"`
	ValidationMessages *[]*model.ValidationMessage `json:"validation_messages,omitempty"`
}

// NewLine builds the line of f.
func NewLine(f *model.Filing) Line {
	l := Line{Filing: f}
	if e, err := f.Entity(); err == nil && e != nil {
		l.Entity = e
	}
	if msgs, err := f.ValidationMessages(); err == nil {
		ms := msgs
		if ms == nil {
			ms = []*model.ValidationMessage{}
		}
		l.ValidationMessages = &ms
	}
	return l
}

// WriteFilings writes one JSON object per filing to w.
func WriteFilings(w io.Writer, filings []*model.Filing) error {
	enc := json.NewEncoder(w)
	for _, f := range filings {
		if err := enc.Encode(NewLine(f)); err != nil {
			return fmt.Errorf("encoding filing %s: %w", f.APIID, err)
		}
	}
	return nil
}

// ReadFilings reads JSONL filings from r into a set. Entities with the
// same api_id are shared between filings. Blank lines and lines starting
// with // are skipped.
func ReadFilings(r io.Reader) (*filingset.Set, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 4*1024*1024), 4*1024*1024)

	set := filingset.New()
	entities := make(map[string]*model.Entity)

	lineNum := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		lineNum++
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		var rec Line
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, fmt.Errorf("line %d: invalid JSON: %w", lineNum, err)
		}
		if rec.Filing == nil || rec.APIID == "" {
			return nil, fmt.Errorf("line %d: missing api_id", lineNum)
		}

		f := rec.Filing
		if rec.Entity != nil {
			e, ok := entities[rec.Entity.APIID]
			if !ok {
				e = rec.Entity
				entities[e.APIID] = e
			}
			f.SetEntity(e)
			if f.EntityAPIID == "" {
				f.EntityAPIID = e.APIID
			}
		}
		if rec.ValidationMessages != nil {
			f.SetValidationMessages(*rec.ValidationMessages)
		}
		set.Add(f)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	if set.Len() == 0 {
		return nil, fmt.Errorf("no filings read from input (is stdin empty?)")
	}
	return set, nil
}

// IsTTY reports whether f is a terminal rather than a pipe or file.
func IsTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
