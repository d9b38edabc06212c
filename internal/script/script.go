// Package script loads the scripted message sequences a worker replays.
// Sources are tabular CSV files with loose, synonym-tolerant headers; rows
// are resolved into fixed-shape Message records once at load time and never
// re-interpreted per send.
package script

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"
)

// Kind is the payload type of one message row.
type Kind string

const (
	KindText  Kind = "text"
	KindPhoto Kind = "photo"
	KindVideo Kind = "video"
	KindFile  Kind = "file"
)

// IsMedia reports whether the kind carries a file upload.
func (k Kind) IsMedia() bool {
	switch k {
	case KindPhoto, KindVideo, KindFile:
		return true
	}
	return false
}

// Message is one row of a script. Immutable once loaded; the ordered sequence
// is replayed verbatim each cycle.
type Message struct {
	ID       string
	Kind     Kind
	Text     string // content for text rows, caption for media rows
	MediaRef string // media reference, empty for text rows
}

// Header synonyms, matched case-insensitively after trimming.
var (
	contentColumns = []string{"content", "message_content", "text", "message"}
	typeColumns    = []string{"type", "message_type", "msg_type"}
	mediaColumns   = []string{"media_file", "media", "file"}
	idColumns      = []string{"id", "message_id", "row_id"}
)

// LoadCSV reads an ordered message sequence from path. Ragged rows are
// tolerated (missing trailing cells read as empty); an empty file yields an
// empty sequence, not an error.
func LoadCSV(path string) ([]Message, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open script: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read script %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	cols := resolveColumns(rows[0])
	msgs := make([]Message, 0, len(rows)-1)
	for i, row := range rows[1:] {
		m := Message{
			ID:       cols.get(row, idColumns),
			Kind:     normalizeKind(cols.get(row, typeColumns)),
			Text:     cols.get(row, contentColumns),
			MediaRef: cols.get(row, mediaColumns),
		}
		if m.ID == "" {
			m.ID = fmt.Sprintf("row-%d", i+1)
		}
		normalizeMessage(&m)
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// normalizeMessage applies the load-time fixups:
//   - a media row with no media reference but path-looking content uses the
//     content as the reference and drops it as caption
//   - a caption identical to the media reference is dropped
func normalizeMessage(m *Message) {
	m.Text = strings.TrimSpace(m.Text)
	m.MediaRef = strings.TrimSpace(m.MediaRef)
	if !m.Kind.IsMedia() {
		m.MediaRef = ""
		return
	}
	if m.MediaRef == "" && m.Text != "" && looksLikePath(m.Text) {
		m.MediaRef = m.Text
		m.Text = ""
	}
	if m.Text != "" && m.Text == m.MediaRef {
		m.Text = ""
	}
}

func looksLikePath(s string) bool {
	return strings.ContainsAny(s, "/\\") || strings.Contains(s, ".")
}

func normalizeKind(raw string) Kind {
	k := Kind(strings.ToLower(strings.TrimSpace(raw)))
	if k == "" {
		return KindText
	}
	return k
}

// columnMap maps lowercased header names to their index.
type columnMap map[string]int

func resolveColumns(header []string) columnMap {
	m := make(columnMap, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		if _, dup := m[key]; !dup {
			m[key] = i
		}
	}
	return m
}

// get returns the first non-empty cell among the synonym columns.
func (m columnMap) get(row []string, synonyms []string) string {
	for _, name := range synonyms {
		idx, ok := m[name]
		if !ok || idx >= len(row) {
			continue
		}
		if v := strings.TrimSpace(row[idx]); v != "" && !strings.EqualFold(v, "nan") {
			return v
		}
	}
	return ""
}
