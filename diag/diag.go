// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

// Package diag provides collection of non-fatal errors
// that are reported with their source positions.
package diag

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	jsonv2 "github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
)

// Position is a location in a file.
// Line and Column are 1-based; zero means unknown.
type Position struct {
	Filename string
	Line     int
	Column   int
}

// String formats the position as "file:line:col",
// omitting unknown parts.
func (pos Position) String() string {
	sb := new(strings.Builder)
	if pos.Filename != "" {
		sb.WriteString(pos.Filename)
	}
	if pos.Line > 0 {
		if sb.Len() > 0 {
			sb.WriteString(":")
		}
		sb.WriteString(strconv.Itoa(pos.Line))
		if pos.Column > 0 {
			sb.WriteString(":")
			sb.WriteString(strconv.Itoa(pos.Column))
		}
	}
	return sb.String()
}

// Diagnostic is a single reported error.
type Diagnostic struct {
	Pos     Position
	Message string
}

// Error formats the diagnostic as "file:line:col: message".
func (d *Diagnostic) Error() string {
	pos := d.Pos.String()
	if pos == "" {
		return d.Message
	}
	return pos + ": " + d.Message
}

// FromJSON converts an error from decoding data as JSON
// to a diagnostic positioned at the offending byte.
func FromJSON(filename string, data []byte, err error) *Diagnostic {
	offset := int64(-1)
	var semErr *jsonv2.SemanticError
	var synErr *jsontext.SyntacticError
	switch {
	case errors.As(err, &semErr):
		offset = semErr.ByteOffset
	case errors.As(err, &synErr):
		offset = synErr.ByteOffset
	}
	pos := Position{Filename: filename}
	if offset >= 0 && offset <= int64(len(data)) {
		prefix := data[:offset]
		pos.Line = bytes.Count(prefix, []byte("\n")) + 1
		pos.Column = int(offset) - (bytes.LastIndexByte(prefix, '\n') + 1) + 1
	}
	return &Diagnostic{Pos: pos, Message: err.Error()}
}

// Collector accepts diagnostics.
// Implementations must be safe to call from multiple goroutines.
type Collector interface {
	Report(d *Diagnostic)
}

// Errorf reports a formatted diagnostic to c.
func Errorf(c Collector, pos Position, format string, args ...any) {
	c.Report(&Diagnostic{Pos: pos, Message: fmt.Sprintf(format, args...)})
}

// List is a [Collector] that records every diagnostic in the order reported.
// The zero value is an empty list that does not echo.
type List struct {
	// Echo, if not nil, receives each diagnostic as a line when it is reported.
	Echo io.Writer

	mu    sync.Mutex
	diags []*Diagnostic
}

// Report implements [Collector].
func (l *List) Report(d *Diagnostic) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.diags = append(l.diags, d)
	if l.Echo != nil {
		msg := d.Error()
		if !strings.HasSuffix(msg, "\n") {
			msg += "\n"
		}
		io.WriteString(l.Echo, msg)
	}
}

// Len returns the number of diagnostics reported so far.
func (l *List) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.diags)
}

// Diagnostics returns the reported diagnostics.
func (l *List) Diagnostics() []*Diagnostic {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Diagnostic(nil), l.diags...)
}

// Err returns nil if no diagnostics have been reported
// or an error that wraps each diagnostic otherwise.
func (l *List) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.diags) == 0 {
		return nil
	}
	errs := make([]error, len(l.diags))
	for i, d := range l.diags {
		errs[i] = d
	}
	return errors.Join(errs...)
}
