// Package search provides full-text search over view contents using
// Bleve. Grounded on the teacher's internal/search/index.go, adapted
// from indexing fixed uuid.UUID-keyed vault entries to indexing
// pkg/crdtkit views by their string Hub name: a view's "content" is
// whatever text its current projection (Register.ToObject, each live
// Set/List value, Text.String) renders to, and the document ID is the
// view name itself rather than a generated UUID.
package search

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/blevesearch/bleve/v2"
)

// Index wraps a Bleve index over view contents.
type Index struct {
	index bleve.Index
	path  string
}

// Document is a searchable rendering of one named view.
type Document struct {
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Content string `json:"content"`
}

// NewIndex creates or opens a Bleve index at dataDir/search.bleve.
func NewIndex(dataDir string) (*Index, error) {
	indexPath := filepath.Join(dataDir, "search.bleve")

	idx, err := bleve.Open(indexPath)
	if err == bleve.ErrorIndexPathDoesNotExist {
		mapping := bleve.NewIndexMapping()

		docMapping := bleve.NewDocumentMapping()

		contentField := bleve.NewTextFieldMapping()
		contentField.Analyzer = "standard"
		docMapping.AddFieldMappingsAt("content", contentField)

		kindField := bleve.NewTextFieldMapping()
		kindField.Analyzer = "keyword"
		docMapping.AddFieldMappingsAt("kind", kindField)

		mapping.AddDocumentMapping("view", docMapping)

		idx, err = bleve.New(indexPath, mapping)
		if err != nil {
			return nil, fmt.Errorf("search: create index: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("search: open index: %w", err)
	}

	return &Index{index: idx, path: indexPath}, nil
}

// NewMemoryIndex creates an in-memory index, for one-shot CLI commands
// that rebuild their state fresh on every invocation (the same shape
// cmd/mviewd's other one-shot subcommands already use) and for tests.
func NewMemoryIndex() (*Index, error) {
	mapping := bleve.NewIndexMapping()
	idx, err := bleve.NewMemOnly(mapping)
	if err != nil {
		return nil, err
	}
	return &Index{index: idx}, nil
}

// IndexView adds or updates the document for the named view.
func (i *Index) IndexView(name, kind, content string) error {
	return i.index.Index(name, Document{Name: name, Kind: kind, Content: content})
}

// DeleteView removes the named view's document from the index.
func (i *Index) DeleteView(name string) error {
	return i.index.Delete(name)
}

// SearchOptions configures a search query.
type SearchOptions struct {
	Kind  string // filter to one view kind, empty for no filter
	Limit int    // max results, default 50
}

// SearchResult is one search hit.
type SearchResult struct {
	Name  string
	Score float64
}

// Search performs a full-text search over indexed view content.
func (i *Index) Search(query string, opts SearchOptions) ([]SearchResult, error) {
	contentQuery := bleve.NewMatchQuery(query)
	contentQuery.SetField("content")

	var q bleve.Query = contentQuery
	if opts.Kind != "" {
		kindQuery := bleve.NewMatchQuery(opts.Kind)
		kindQuery.SetField("kind")
		q = bleve.NewConjunctionQuery(contentQuery, kindQuery)
	}

	searchReq := bleve.NewSearchRequest(q)
	searchReq.Size = opts.Limit
	if searchReq.Size <= 0 {
		searchReq.Size = 50
	}

	searchRes, err := i.index.Search(searchReq)
	if err != nil {
		return nil, fmt.Errorf("search: query failed: %w", err)
	}

	results := make([]SearchResult, 0, len(searchRes.Hits))
	for _, hit := range searchRes.Hits {
		results = append(results, SearchResult{Name: hit.ID, Score: hit.Score})
	}
	return results, nil
}

// Close closes the index.
func (i *Index) Close() error {
	return i.index.Close()
}

// Delete removes the index from disk.
func (i *Index) Delete() error {
	i.index.Close()
	if i.path != "" {
		return os.RemoveAll(i.path)
	}
	return nil
}
