package model

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ParseError reports malformed configuration text or raw input.
// Line is 1-based; zero means the position is unknown.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse error at line %d: %s", e.Line, e.Msg)
	}
	return "parse error: " + e.Msg
}

// SyntaxError lists every problem found while parsing one statement's tokens.
// Partial holds what could be parsed, leaving out the offending tokens; it is
// nil when not even the id was found.
type SyntaxError struct {
	Kind     Kind
	Problems []string
	Partial  *Object
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, strings.Join(e.Problems, "; "))
}

// ParseTokens builds an object of the given kind from the tokens following
// the kind keyword. All problems are collected before returning.
func ParseTokens(kind Kind, tokens []string) (*Object, error) {
	spec := SpecOf(kind)
	if spec == nil {
		return nil, &SyntaxError{Kind: kind, Problems: []string{fmt.Sprintf("unknown kind %q", kind)}}
	}

	var problems []string
	o := &Object{Kind: kind}
	i := 0

	switch {
	case spec.FixedID:
		o.ID = spec.DefaultID
	case spec.DefaultID != "":
		o.ID = spec.DefaultID
		if len(tokens) > 0 {
			t := tokens[0]
			if id, ok := strings.CutPrefix(t, "$id="); ok {
				o.ID = id
				i++
			} else if strings.HasSuffix(t, ":") && !isPair(t) {
				o.ID = strings.TrimSuffix(t, ":")
				i++
			}
		}
	default:
		if len(tokens) == 0 || spec.AllowsBlock(tokens[0]) || isPair(tokens[0]) {
			return nil, &SyntaxError{Kind: kind, Problems: []string{"missing object id"}}
		}
		o.ID = tokens[0]
		i++
		if kind == KindNode {
			if uname, typ, ok := strings.Cut(o.ID, ":"); ok {
				o.ID = uname
				o.Head = []string{typ}
			}
		}
	}

	for ; i < len(tokens); i++ {
		t := tokens[i]
		if spec.AllowsBlock(t) || (!spec.Opaque && isPair(t)) {
			break
		}
		if kind == KindNode {
			problems = append(problems, fmt.Sprintf("unexpected token %q", t))
			continue
		}
		if spec.Container {
			o.Children = append(o.Children, t)
		} else {
			o.Head = append(o.Head, t)
		}
	}

	for ; i < len(tokens); i++ {
		t := tokens[i]
		if spec.AllowsBlock(t) {
			break
		}
		p, ok := splitPair(t)
		if !ok {
			problems = append(problems, fmt.Sprintf("unexpected token %q", t))
			continue
		}
		if !spec.Options {
			problems = append(problems, fmt.Sprintf("option %q is not allowed here", p.Name))
			continue
		}
		o.Attrs = append(o.Attrs, p)
	}

	for i < len(tokens) {
		t := tokens[i]
		i++
		if !spec.AllowsBlock(t) {
			problems = append(problems, fmt.Sprintf("unexpected token %q", t))
			continue
		}
		b := Block{Type: t}
		named := true
		if t == BlockOp {
			if i >= len(tokens) || isPair(tokens[i]) || spec.AllowsBlock(tokens[i]) {
				problems = append(problems, "op without operation name")
				named = false
			} else {
				b.Name = tokens[i]
				i++
			}
		}
		for i < len(tokens) && !spec.AllowsBlock(tokens[i]) {
			p, ok := splitPair(tokens[i])
			if !ok {
				break
			}
			b.Pairs = append(b.Pairs, p)
			i++
		}
		if named {
			o.Blocks = append(o.Blocks, b)
		}
	}

	if len(problems) > 0 {
		return nil, &SyntaxError{Kind: kind, Problems: problems, Partial: o}
	}
	return o, nil
}

// Parse reads canonical configuration text. Lines ending in a backslash
// continue on the next line; lines starting with '#' are comments.
func Parse(text []byte) ([]*Object, error) {
	var objects []*Object
	err := eachStatement(norm.NFC.Bytes(text), func(line int, stmt string) error {
		tokens, err := Tokenize(stmt)
		if err != nil {
			return &ParseError{Line: line, Msg: err.Error()}
		}
		if len(tokens) == 0 {
			return nil
		}
		spec, ok := LookupKind(tokens[0])
		if !ok {
			return &ParseError{Line: line, Msg: fmt.Sprintf("unknown element %q", tokens[0])}
		}
		o, err := ParseTokens(spec.Kind, tokens[1:])
		if err != nil {
			return &ParseError{Line: line, Msg: err.Error()}
		}
		objects = append(objects, o)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return objects, nil
}

func eachStatement(text []byte, fn func(line int, stmt string) error) error {
	scanner := bufio.NewScanner(bytes.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var (
		stmt  strings.Builder
		start int
		lineN int
	)
	for scanner.Scan() {
		lineN++
		raw := strings.TrimRight(scanner.Text(), " \t\r")
		if stmt.Len() == 0 {
			trimmed := strings.TrimSpace(raw)
			if trimmed == "" || strings.HasPrefix(trimmed, "#") {
				continue
			}
			start = lineN
		}
		if cont, ok := strings.CutSuffix(raw, `\`); ok {
			stmt.WriteString(cont)
			stmt.WriteByte(' ')
			continue
		}
		stmt.WriteString(raw)
		if err := fn(start, stmt.String()); err != nil {
			return err
		}
		stmt.Reset()
	}
	if err := scanner.Err(); err != nil {
		return &ParseError{Line: lineN, Msg: err.Error()}
	}
	if stmt.Len() > 0 {
		return fn(start, stmt.String())
	}
	return nil
}
