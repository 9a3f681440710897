package store

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"
)

// BM25 parameters, standard values.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// LexIndex is a BM25 inverted index over chunk text. It is rebuilt on
// every commit and serialised into an index region of the file, so open
// never needs the chunk text to answer lexical queries.
type LexIndex struct {
	Docs     []lexDoc                `json:"docs"`
	Postings map[string][]lexPosting `json:"postings"`
	AvgLen   float64                 `json:"avg_len"`

	docIdx map[string]int
}

type lexDoc struct {
	ChunkID string `json:"chunk_id"`
	Length  int    `json:"length"` // token count
}

type lexPosting struct {
	Doc int `json:"doc"` // index into Docs
	TF  int `json:"tf"`
}

// LexHit is one scored lexical match.
type LexHit struct {
	ChunkID string
	Score   float64
}

// NewLexIndex returns an empty index.
func NewLexIndex() *LexIndex {
	return &LexIndex{
		Postings: make(map[string][]lexPosting),
		docIdx:   make(map[string]int),
	}
}

// Add indexes one chunk's text. Re-adding a chunk ID is not supported;
// superseded chunks stay in the postings and are dropped from results
// by the caller's tombstone filter.
func (ix *LexIndex) Add(chunkID, text string) {
	tokens := tokenize(text)
	doc := len(ix.Docs)
	ix.Docs = append(ix.Docs, lexDoc{ChunkID: chunkID, Length: len(tokens)})
	ix.docIdx[chunkID] = doc

	tf := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		tf[tok]++
	}
	for term, n := range tf {
		ix.Postings[term] = append(ix.Postings[term], lexPosting{Doc: doc, TF: n})
	}

	total := 0
	for _, d := range ix.Docs {
		total += d.Length
	}
	ix.AvgLen = float64(total) / float64(len(ix.Docs))
}

// Len reports the number of indexed documents.
func (ix *LexIndex) Len() int { return len(ix.Docs) }

// Has reports whether the chunk is indexed.
func (ix *LexIndex) Has(chunkID string) bool {
	_, ok := ix.docIdx[chunkID]
	return ok
}

// Search scores the query against the index with BM25 and returns up to
// topK hits, best first. Ties break on ascending chunk ID so results are
// stable across runs.
func (ix *LexIndex) Search(query string, topK int) []LexHit {
	if len(ix.Docs) == 0 || topK <= 0 {
		return nil
	}

	scores := make(map[int]float64)
	n := float64(len(ix.Docs))
	seen := make(map[string]bool)
	for _, term := range tokenize(query) {
		if seen[term] {
			continue
		}
		seen[term] = true
		postings := ix.Postings[term]
		if len(postings) == 0 {
			continue
		}
		df := float64(len(postings))
		idf := math.Log(1 + (n-df+0.5)/(df+0.5))
		for _, p := range postings {
			tf := float64(p.TF)
			dl := float64(ix.Docs[p.Doc].Length)
			norm := tf * (bm25K1 + 1) / (tf + bm25K1*(1-bm25B+bm25B*dl/ix.AvgLen))
			scores[p.Doc] += idf * norm
		}
	}

	hits := make([]LexHit, 0, len(scores))
	for doc, score := range scores {
		hits = append(hits, LexHit{ChunkID: ix.Docs[doc].ChunkID, Score: score})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits
}

// Marshal serialises the index for storage in an index region.
func (ix *LexIndex) Marshal() ([]byte, error) {
	data, err := json.Marshal(ix)
	if err != nil {
		return nil, fmt.Errorf("marshal lex index: %w", err)
	}
	return data, nil
}

// UnmarshalLexIndex restores an index from its serialised region bytes.
func UnmarshalLexIndex(data []byte) (*LexIndex, error) {
	ix := NewLexIndex()
	if err := json.Unmarshal(data, ix); err != nil {
		return nil, fmt.Errorf("unmarshal lex index: %w", err)
	}
	if ix.Postings == nil {
		ix.Postings = make(map[string][]lexPosting)
	}
	ix.docIdx = make(map[string]int, len(ix.Docs))
	for i, d := range ix.Docs {
		ix.docIdx[d.ChunkID] = i
	}
	return ix, nil
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
