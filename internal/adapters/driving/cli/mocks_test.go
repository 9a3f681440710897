package cli

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
}

func (m *mockMemoryService) Ingest(_ context.Context, _ string, _ domain.IngestOptions) (domain.IngestReceipt, error) {
	return m.receipt, m.err
}

func (m *mockMemoryService) Search(_ context.Context, _ string, _ domain.SearchOptions) ([]domain.SearchResult, error) {
	return m.results, m.err
}

func (m *mockMemoryService) Ask(_ context.Context, _ string, _ domain.AskOptions) (domain.AskResponse, error) {
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

// setupTestService injects a mock memory service and returns a cleanup
// function restoring the previous one.
func setupTestService(mock *mockMemoryService) func() {
	old := memoryService
	memoryService = mock
	return func() {
		memoryService = old
	}
}
