package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// RenderObject returns the canonical text statement for one object. Blocks
// are placed on continuation lines.
func RenderObject(o *Object) string {
	spec := o.Spec()
	var sb strings.Builder
	sb.WriteString(string(o.Kind))

	switch {
	case spec != nil && spec.FixedID:
	case spec != nil && spec.DefaultID != "":
		sb.WriteString(" " + Quote(o.ID) + ":")
	case o.Kind == KindNode && len(o.Head) > 0:
		sb.WriteString(" " + Quote(o.ID+":"+o.Head[0]))
	default:
		sb.WriteString(" " + Quote(o.ID))
	}

	if o.Kind != KindNode {
		for _, t := range o.Head {
			sb.WriteString(" " + Quote(t))
		}
	}
	for _, c := range o.Children {
		sb.WriteString(" " + Quote(c))
	}
	for _, p := range o.Attrs {
		sb.WriteString(" " + QuotePair(p))
	}
	for _, b := range o.Blocks {
		sb.WriteString(" \\\n\t" + b.Type)
		if b.Name != "" {
			sb.WriteString(" " + Quote(b.Name))
		}
		for _, p := range b.Pairs {
			sb.WriteString(" " + QuotePair(p))
		}
	}
	return sb.String()
}

// Render returns the canonical text for a list of objects, one statement
// per object in the given order.
func Render(objects []*Object) []byte {
	var buf bytes.Buffer
	for _, o := range objects {
		buf.WriteString(RenderObject(o))
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// MarshalDocument returns the raw form of a document.
func MarshalDocument(doc *Document) ([]byte, error) {
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	return append(out, '\n'), nil
}

// UnmarshalDocument parses the raw form. Unknown kinds are rejected.
func UnmarshalDocument(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		perr := &ParseError{Msg: err.Error()}
		var syn *json.SyntaxError
		if errors.As(err, &syn) {
			perr.Line = 1 + bytes.Count(data[:min(int(syn.Offset), len(data))], []byte("\n"))
		}
		return nil, perr
	}
	for i, o := range doc.Objects {
		if o == nil {
			return nil, &ParseError{Msg: fmt.Sprintf("object %d is null", i)}
		}
		if SpecOf(o.Kind) == nil {
			return nil, &ParseError{Msg: fmt.Sprintf("object %q: unknown element %q", o.ID, o.Kind)}
		}
	}
	return &doc, nil
}
