package mcp

import (
	"context"

	"github.com/custodia-labs/memvault/internal/core/domain"
)

// mockMemoryService is a mock implementation of driving.MemoryService.
type mockMemoryService struct {
	receipt  domain.IngestReceipt
	results  []domain.SearchResult
	response domain.AskResponse
	entries  []domain.TimelineEntry
	stats    domain.Stats
	report   domain.VerifyReport
	err      error

	lastQuery    string
	lastQuestion string
	lastText     string
	lastSearch   domain.SearchOptions
	lastIngest   domain.IngestOptions
}

func (m *mockMemoryService) Ingest(_ context.Context, text string, opts domain.IngestOptions) (domain.IngestReceipt, error) {
	m.lastText = text
	m.lastIngest = opts
	return m.receipt, m.err
}

func (m *mockMemoryService) Search(_ context.Context, query string, opts domain.SearchOptions) ([]domain.SearchResult, error) {
	m.lastQuery = query
	m.lastSearch = opts
	return m.results, m.err
}

func (m *mockMemoryService) Ask(_ context.Context, question string, _ domain.AskOptions) (domain.AskResponse, error) {
	m.lastQuestion = question
	return m.response, m.err
}

func (m *mockMemoryService) Timeline(_ context.Context, _ domain.TimelineOptions) ([]domain.TimelineEntry, error) {
	return m.entries, m.err
}

func (m *mockMemoryService) Stats(_ context.Context) (domain.Stats, error) {
	return m.stats, m.err
}

func (m *mockMemoryService) Verify(_ context.Context) (domain.VerifyReport, error) {
	return m.report, m.err
}

func (m *mockMemoryService) Close() error {
	return nil
}
