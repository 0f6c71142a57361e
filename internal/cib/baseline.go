package cib

import (
	"github.com/opencontainers/go-digest"

	"github.com/roach88/cibconf/internal/model"
)

// Baseline is the configuration last read from the live coordinator.
type Baseline struct {
	doc    *model.Document
	digest digest.Digest
}

func newBaseline(doc *model.Document) (*Baseline, error) {
	d, err := model.Digest(doc)
	if err != nil {
		return nil, err
	}
	return &Baseline{doc: doc.Clone(), digest: d}, nil
}

// Document returns a copy of the baseline document.
func (b *Baseline) Document() *model.Document {
	return b.doc.Clone()
}

// Digest returns the content digest of the baseline.
func (b *Baseline) Digest() digest.Digest {
	return b.digest
}

// Matches reports whether doc has the same content as the baseline.
func (b *Baseline) Matches(doc *model.Document) (bool, error) {
	d, err := model.Digest(doc)
	if err != nil {
		return false, err
	}
	return d == b.digest, nil
}
