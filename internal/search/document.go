// Copyright 2024 The Pulldb Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package search builds index documents for mirrored entities and feeds
// them to a pluggable index backend.
package search

import (
	"context"
	"time"

	"go.chromium.org/luci/common/logging"
)

// FieldKind is the index type of a document field.
type FieldKind int

const (
	// KindText is tokenized plain text.
	KindText FieldKind = iota
	// KindHTML is markup; the index strips tags before tokenizing.
	KindHTML
	// KindNumber is a numeric field usable in range queries.
	KindNumber
	// KindDate is a date field usable in range queries.
	KindDate
)

// Field is one named value on an index document.
type Field struct {
	Name   string
	Kind   FieldKind
	Text   string
	Number float64
	Date   time.Time
}

// Text makes a plain text field.
func Text(name, value string) Field {
	return Field{Name: name, Kind: KindText, Text: value}
}

// HTML makes a markup field.
func HTML(name, value string) Field {
	return Field{Name: name, Kind: KindHTML, Text: value}
}

// Number makes a numeric field.
func Number(name string, value float64) Field {
	return Field{Name: name, Kind: KindNumber, Number: value}
}

// Date makes a date field.
func Date(name string, value time.Time) Field {
	return Field{Name: name, Kind: KindDate, Date: value}
}

// Document is one entity's searchable representation. ID matches the
// entity's datastore key, so index hits resolve straight back to storage.
type Document struct {
	ID     string
	Fields []Field
}

// Sink accepts documents for indexing.
type Sink interface {
	Put(ctx context.Context, doc Document) error
}

// LogSink records indexed documents in the request log. It stands in when
// no real index backend is configured.
type LogSink struct{}

// Put implements Sink.
func (LogSink) Put(ctx context.Context, doc Document) error {
	logging.Fields{
		"document": doc.ID,
		"fields":   len(doc.Fields),
	}.Debugf(ctx, "indexed document")
	return nil
}
