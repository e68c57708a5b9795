package lsp

import (
	"sync"

	"github.com/tliron/glsp"

	"github.com/Sumatoshi-tech/sqltree/pkg/playground"
)

// document is one open editor buffer with its own reparse pipeline.
type document struct {
	uri    string
	pg     *playground.Playground
	notify glsp.NotifyFunc

	mu        sync.Mutex
	published uint64
	failing   bool
}

// DocumentStore is a thread-safe store of open documents keyed by URI.
type DocumentStore struct {
	documents map[string]*document
	mu        sync.RWMutex
}

// NewDocumentStore creates a new empty DocumentStore.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		documents: make(map[string]*document),
	}
}

func (ds *DocumentStore) set(doc *document) *document {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	prev := ds.documents[doc.uri]
	ds.documents[doc.uri] = doc

	return prev
}

func (ds *DocumentStore) get(uri string) (*document, bool) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	doc, ok := ds.documents[uri]

	return doc, ok
}

func (ds *DocumentStore) remove(uri string) (*document, bool) {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	doc, ok := ds.documents[uri]
	delete(ds.documents, uri)

	return doc, ok
}

func (ds *DocumentStore) drain() []*document {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	docs := make([]*document, 0, len(ds.documents))
	for uri, doc := range ds.documents {
		docs = append(docs, doc)
		delete(ds.documents, uri)
	}

	return docs
}

// Len returns the number of open documents.
func (ds *DocumentStore) Len() int {
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	return len(ds.documents)
}
