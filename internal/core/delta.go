package core

import "strings"

type OpKind string

const (
	OpAdd    OpKind = "add"
	OpUpdate OpKind = "update"
	OpRemove OpKind = "remove"
)

// Op is one entry of a state patch. Path is a JSON pointer into the room state.
type Op struct {
	Op    OpKind `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value,omitempty"`
}

// StateFrame carries the full room state; sent once, on join.
type StateFrame struct {
	Type    string `json:"type"`
	Version uint64 `json:"version"`
	State   any    `json:"state"`
}

// PatchFrame carries every op produced by one mutation of the room state.
// Versions increase by exactly one per patch so clients can detect gaps.
type PatchFrame struct {
	Type    string `json:"type"`
	Version uint64 `json:"version"`
	Ops     []Op   `json:"ops"`
}

var pointerEscaper = strings.NewReplacer("~", "~0", "/", "~1")

// Path builds a JSON pointer from raw segments.
func Path(segments ...string) string {
	var b strings.Builder
	for _, s := range segments {
		b.WriteByte('/')
		b.WriteString(pointerEscaper.Replace(s))
	}
	return b.String()
}
