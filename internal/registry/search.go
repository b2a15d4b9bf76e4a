package registry

import (
	"fmt"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/jakewatkins/mcphost/internal/protocol"
)

// SearchResult is one hit from SearchTools, ranked by bleve's BM25 score.
type SearchResult struct {
	Server string
	Tool   protocol.Tool
	Score  float64
}

type toolDoc struct {
	Server      string `json:"server"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// searchIndex wraps an in-memory bleve index over every registered tool's
// name and description, so a caller can find candidate tools by keyword
// instead of needing the exact qualified name. Grounded on the teacher's
// internal/index.Manager (BM25-only path; the pack's semantic/embedding
// index is dropped, see DESIGN.md).
type searchIndex struct {
	mu    sync.Mutex
	index bleve.Index
	docs  map[string]protocol.Tool // docID -> tool, for result hydration
}

func newSearchIndex() (*searchIndex, error) {
	idx, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create search index: %w", err)
	}
	return &searchIndex{index: idx, docs: make(map[string]protocol.Tool)}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	nameField := bleve.NewTextFieldMapping()
	nameField.Analyzer = "standard"

	descField := bleve.NewTextFieldMapping()
	descField.Analyzer = "standard"

	serverField := bleve.NewTextFieldMapping()
	serverField.Analyzer = "keyword"

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("name", nameField)
	doc.AddFieldMappingsAt("description", descField)
	doc.AddFieldMappingsAt("server", serverField)

	im := bleve.NewIndexMapping()
	im.DefaultMapping = doc
	return im
}

func docID(server, toolName string) string {
	return server + "\x00" + toolName
}

func (s *searchIndex) indexTool(server string, tool protocol.Tool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := docID(server, tool.Name)
	if err := s.index.Index(id, toolDoc{Server: server, Name: tool.Name, Description: tool.Description}); err != nil {
		return fmt.Errorf("failed to index tool %q: %w", id, err)
	}
	s.docs[id] = tool
	return nil
}

func (s *searchIndex) deleteServer(server string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range s.docs {
		if len(id) > len(server) && id[:len(server)] == server && id[len(server)] == 0 {
			s.index.Delete(id)
			delete(s.docs, id)
		}
	}
}

func (s *searchIndex) search(query string, topK int) ([]SearchResult, error) {
	if topK <= 0 {
		topK = 20
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	q := bleve.NewDisjunctionQuery(
		bleve.NewMatchQuery(query),
		bleve.NewMatchPhraseQuery(query),
	)
	req := bleve.NewSearchRequest(q)
	req.Size = topK

	res, err := s.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	out := make([]SearchResult, 0, len(res.Hits))
	for _, hit := range res.Hits {
		tool, ok := s.docs[hit.ID]
		if !ok {
			continue
		}
		server := ""
		if idx := indexOfNull(hit.ID); idx >= 0 {
			server = hit.ID[:idx]
		}
		out = append(out, SearchResult{Server: server, Tool: tool, Score: hit.Score})
	}
	return out, nil
}

func indexOfNull(s string) int {
	for i := 0; i < len(s); i++ {
		if s[i] == 0 {
			return i
		}
	}
	return -1
}

// reindexServer replaces a server's documents in the search index with
// its current tool set. The index is created lazily on first use.
func (r *Registry) reindexServer(name string, caps Capabilities) error {
	r.searchMu.Lock()
	if r.search == nil {
		idx, err := newSearchIndex()
		if err != nil {
			r.searchMu.Unlock()
			return err
		}
		r.search = idx
	}
	search := r.search
	r.searchMu.Unlock()

	search.deleteServer(name)
	for _, tool := range caps.Tools {
		if err := search.indexTool(name, tool); err != nil {
			return err
		}
	}
	return nil
}

// SearchTools ranks registered tools against a free-text query using
// bleve's BM25 scoring over each tool's name and description.
func (r *Registry) SearchTools(query string, topK int) ([]SearchResult, error) {
	r.searchMu.RLock()
	search := r.search
	r.searchMu.RUnlock()

	if search == nil {
		return nil, nil
	}
	return search.search(query, topK)
}
