package domain

// Role identifies the author of a conversation turn.
type Role string

// Conversation roles.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one (role, text) entry in the conversation history.
type Turn struct {
	Role Role
	Text string
}

// AskOptions configures a single question against the memory.
type AskOptions struct {
	// ChunksPerQuery overrides the configured number of retrieved chunks.
	ChunksPerQuery int

	// Temperature overrides the configured sampling temperature when
	// non-negative.
	Temperature float64

	// MaxOutputTokens overrides the configured completion budget when
	// positive.
	MaxOutputTokens int
}

// Citation points an answer back at a retrieved chunk.
type Citation struct {
	// ChunkID is the cited chunk.
	ChunkID string

	// URI is the chunk's originating document.
	URI string

	// Score is the retrieval score of the cited chunk.
	Score float64
}

// AskResponse is the answer produced by the completion service together
// with the chunks that grounded it.
type AskResponse struct {
	// Answer is the completion text.
	Answer string

	// Citations lists the retrieved chunks included in the context, in
	// rank order.
	Citations []Citation

	// ContextTokens is the estimated token count of the assembled prompt.
	ContextTokens int
}
