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

package search

import (
	"regexp"

	"github.com/pulldb/pulldb/internal/comicvine"
	"github.com/pulldb/pulldb/internal/model"
)

// Index field names must look like identifiers; anything else collapses to
// the generic "person" role.
var fieldNameRE = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// roleField maps a credit role onto a legal field name.
func roleField(role string) string {
	if fieldNameRE.MatchString(role) {
		return role
	}
	return "person"
}

// personCredits turns the payload's person credit list into one field per
// credited person, named by role.
func personCredits(raw comicvine.Payload) []Field {
	var fields []Field
	for _, person := range raw.List("person_credits") {
		name := person.Str("name")
		if name == "" {
			continue
		}
		fields = append(fields, Text(roleField(person.Str("role")), name))
	}
	return fields
}

// VolumeDocument builds the index document for a volume.
func VolumeDocument(vol *model.Volume) Document {
	raw := vol.Raw()
	fields := []Field{
		Text("name", vol.Name),
		Number("volume_id", float64(vol.Identifier)),
	}
	if vol.StartYear > 0 {
		fields = append(fields, Number("start_year", float64(vol.StartYear)))
	}
	if pub := raw.Sub("publisher").Str("name"); pub != "" {
		fields = append(fields, Text("publisher", pub))
	}
	fields = append(fields, personCredits(raw)...)
	if desc := raw.Str("description"); desc != "" {
		fields = append(fields, HTML("description", desc))
	}
	return Document{ID: vol.ID, Fields: fields}
}

// IssueDocument builds the index document for an issue.
func IssueDocument(issue *model.Issue) Document {
	raw := issue.Raw()
	fields := []Field{
		Text("name", issue.Title),
		Text("issue_number", issue.IssueNumber),
		Number("issue_id", float64(issue.Identifier)),
	}
	if !issue.Pubdate.IsZero() {
		fields = append(fields, Date("pubdate", issue.Pubdate))
	}
	if vol := raw.Sub("volume"); vol != nil {
		if name := vol.Str("name"); name != "" {
			fields = append(fields, Text("volume", name))
		}
		if id, ok := vol.ID(); ok {
			fields = append(fields, Number("volume_id", float64(id)))
		}
	}
	fields = append(fields, personCredits(raw)...)
	if desc := raw.Str("description"); desc != "" {
		fields = append(fields, HTML("description", desc))
	}
	return Document{ID: issue.ID, Fields: fields}
}

// ArcDocument builds the index document for a story arc.
func ArcDocument(arc *model.StoryArc) Document {
	raw := arc.Raw()
	fields := []Field{
		Text("name", arc.Name),
		Number("arc_id", float64(arc.Identifier)),
	}
	if aliases := raw.Str("aliases"); aliases != "" {
		fields = append(fields, Text("aliases", aliases))
	}
	if deck := raw.Str("deck"); deck != "" {
		fields = append(fields, Text("deck", deck))
	}
	if desc := raw.Str("description"); desc != "" {
		fields = append(fields, HTML("description", desc))
	}
	return Document{ID: arc.ID, Fields: fields}
}
