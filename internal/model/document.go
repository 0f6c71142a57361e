package model

import (
	_ "crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/cyberphone/json-canonicalization/go/src/webpki.org/jsoncanonicalizer"
	"github.com/opencontainers/go-digest"
)

// Document is a whole configuration as exchanged with the live coordinator.
type Document struct {
	Schema  string    `json:"schema"`
	Epoch   int64     `json:"epoch"`
	Objects []*Object `json:"objects"`
}

// Clone returns a deep copy. Object states are reset to clean.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	c := &Document{Schema: d.Schema, Epoch: d.Epoch, Objects: make([]*Object, 0, len(d.Objects))}
	for _, o := range d.Objects {
		oc := o.Clone()
		oc.State = StateClean
		c.Objects = append(c.Objects, oc)
	}
	return c
}

// Lookup returns the object with the given id.
func (d *Document) Lookup(id string) (*Object, bool) {
	for _, o := range d.Objects {
		if o.ID == id {
			return o, true
		}
	}
	return nil, false
}

// IDs returns object ids in document order.
func (d *Document) IDs() []string {
	ids := make([]string, 0, len(d.Objects))
	for _, o := range d.Objects {
		ids = append(ids, o.ID)
	}
	return ids
}

// Patch is the incremental difference between two documents.
// Schema is set only when the schema changes.
type Patch struct {
	Schema  string    `json:"schema,omitempty"`
	Upserts []*Object `json:"upserts,omitempty"`
	Deletes []string  `json:"deletes,omitempty"`
}

// Empty reports whether applying the patch would change nothing.
func (p *Patch) Empty() bool {
	return p == nil || (p.Schema == "" && len(p.Upserts) == 0 && len(p.Deletes) == 0)
}

// Diff computes the patch that turns base into local.
func Diff(base, local *Document) *Patch {
	p := &Patch{}
	if base.Schema != local.Schema {
		p.Schema = local.Schema
	}
	index := make(map[string]*Object, len(base.Objects))
	for _, o := range base.Objects {
		index[o.ID] = o
	}
	present := make(map[string]bool, len(local.Objects))
	for _, o := range local.Objects {
		present[o.ID] = true
		if prev, ok := index[o.ID]; !ok || !prev.Equal(o) {
			p.Upserts = append(p.Upserts, o.Clone())
		}
	}
	for _, o := range base.Objects {
		if !present[o.ID] {
			p.Deletes = append(p.Deletes, o.ID)
		}
	}
	return p
}

// Apply returns a copy of doc with the patch applied. Upserted objects keep
// their position when they already exist and are appended otherwise.
func (p *Patch) Apply(doc *Document) *Document {
	out := doc.Clone()
	if p == nil {
		return out
	}
	if p.Schema != "" {
		out.Schema = p.Schema
	}
	deleted := make(map[string]bool, len(p.Deletes))
	for _, id := range p.Deletes {
		deleted[id] = true
	}
	kept := out.Objects[:0]
	for _, o := range out.Objects {
		if !deleted[o.ID] {
			kept = append(kept, o)
		}
	}
	out.Objects = kept
	for _, u := range p.Upserts {
		replaced := false
		for i, o := range out.Objects {
			if o.ID == u.ID {
				out.Objects[i] = u.Clone()
				replaced = true
				break
			}
		}
		if !replaced {
			out.Objects = append(out.Objects, u.Clone())
		}
	}
	return out
}

// Digest returns the content digest of a document: SHA-256 over the RFC 8785
// canonical JSON of its schema and objects. The epoch is not part of the
// digest.
func Digest(doc *Document) (digest.Digest, error) {
	payload := struct {
		Schema  string    `json:"schema"`
		Objects []*Object `json:"objects"`
	}{Schema: doc.Schema, Objects: doc.Objects}
	if payload.Objects == nil {
		payload.Objects = []*Object{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("digest: %w", err)
	}
	canonical, err := jsoncanonicalizer.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("digest: canonicalize: %w", err)
	}
	return digest.FromBytes(canonical), nil
}
