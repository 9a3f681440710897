package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/custodia-labs/memvault/internal/core/domain"
	"github.com/custodia-labs/memvault/internal/core/ports/driven"
	"github.com/custodia-labs/memvault/internal/logger"
)

const askSystemPrompt = `You are a knowledge assistant answering from the user's stored memory.
Use only the numbered context passages below. Cite passages as [n].
If the context does not contain the answer, say so.`

// Ask retrieves context for the question, assembles a token-bounded
// prompt with the trailing conversation history and invokes the
// completion service once. The top-ranked chunk and the most recent
// history turn always survive truncation. History is appended only
// after a successful completion and is bounded to the configured
// number of exchanges.
func (m *Memory) Ask(ctx context.Context, question string, opts domain.AskOptions) (domain.AskResponse, error) {
	if m.completer == nil {
		return domain.AskResponse{}, fmt.Errorf("%w: no completion service configured", domain.ErrInvalidConfiguration)
	}
	if strings.TrimSpace(question) == "" {
		return domain.AskResponse{}, fmt.Errorf("%w: empty question", domain.ErrInvalidConfiguration)
	}

	chunksPerQuery := m.cfg.Ask.ChunksPerQuery
	if opts.ChunksPerQuery > 0 {
		chunksPerQuery = opts.ChunksPerQuery
	}
	temperature := m.cfg.Ask.Temperature
	if opts.Temperature >= 0 {
		temperature = opts.Temperature
	}
	maxOutput := m.cfg.Ask.MaxOutputTokens
	if opts.MaxOutputTokens > 0 {
		maxOutput = opts.MaxOutputTokens
	}

	results, err := m.Search(ctx, question, domain.SearchOptions{TopK: chunksPerQuery})
	if err != nil {
		return domain.AskResponse{}, err
	}

	m.mu.Lock()
	history := make([]domain.Turn, len(m.history))
	copy(history, m.history)
	m.mu.Unlock()

	logger.Section("Ask")
	prompt := m.assemble(question, results, history)
	logger.Info("assembled context: %d chunks, %d history turns, ~%d tokens",
		len(prompt.citations), len(prompt.messages)-1, prompt.tokens)

	answer, err := m.completer.Complete(ctx, driven.CompletionRequest{
		System:      prompt.system,
		Messages:    prompt.messages,
		Temperature: temperature,
		MaxTokens:   maxOutput,
	})
	if err != nil {
		return domain.AskResponse{}, fmt.Errorf("%w: %v", domain.ErrCompletionFailed, err)
	}

	m.mu.Lock()
	m.history = append(m.history,
		domain.Turn{Role: domain.RoleUser, Text: question},
		domain.Turn{Role: domain.RoleAssistant, Text: answer})
	// Two turns per exchange; drop the oldest exchanges past the cap.
	if max := 2 * m.cfg.Ask.MaxHistory; max > 0 && len(m.history) > max {
		m.history = append([]domain.Turn(nil), m.history[len(m.history)-max:]...)
	}
	m.mu.Unlock()

	return domain.AskResponse{
		Answer:        answer,
		Citations:     prompt.citations,
		ContextTokens: prompt.tokens,
	}, nil
}

// History returns a copy of the accumulated conversation turns.
func (m *Memory) History() []domain.Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Turn, len(m.history))
	copy(out, m.history)
	return out
}

type assembledPrompt struct {
	system    string
	messages  []driven.CompletionMessage
	citations []domain.Citation
	tokens    int
}

// assemble builds the prompt within the configured token window. Chunks
// are admitted in rank order and history newest-first; the top-1 chunk
// and the most recent turn are kept even when over budget.
func (m *Memory) assemble(question string, results []domain.SearchResult, history []domain.Turn) assembledPrompt {
	budget := m.cfg.Ask.ContextTokens
	used := m.tokens.Count(askSystemPrompt) + m.tokens.Count(question)

	var blocks []string
	var citations []domain.Citation
	for i, r := range results {
		block := fmt.Sprintf("[%d] %s (%s)\n%s", i+1, r.Chunk.Title, r.Chunk.URI, r.Chunk.Text)
		cost := m.tokens.Count(block)
		if i > 0 && used+cost > budget {
			logger.Debug("context window full, dropping chunks ranked %d and below", i+1)
			break
		}
		blocks = append(blocks, block)
		citations = append(citations, domain.Citation{
			ChunkID: r.Chunk.ID,
			URI:     r.Chunk.URI,
			Score:   r.Score,
		})
		used += cost
	}

	var kept []domain.Turn
	for i := len(history) - 1; i >= 0; i-- {
		cost := m.tokens.Count(history[i].Text)
		if i < len(history)-1 && used+cost > budget {
			logger.Debug("context window full, dropping history before turn %d", i+1)
			break
		}
		kept = append([]domain.Turn{history[i]}, kept...)
		used += cost
	}

	system := askSystemPrompt
	if len(blocks) > 0 {
		system += "\n\nContext:\n\n" + strings.Join(blocks, "\n\n")
	}

	messages := make([]driven.CompletionMessage, 0, len(kept)+1)
	for _, turn := range kept {
		messages = append(messages, driven.CompletionMessage{Role: string(turn.Role), Text: turn.Text})
	}
	messages = append(messages, driven.CompletionMessage{Role: string(domain.RoleUser), Text: question})

	return assembledPrompt{system: system, messages: messages, citations: citations, tokens: used}
}
