package store

import (
	"context"
	"database/sql"

	"github.com/tesslate/studio-orchestrator/internal/models"
	"github.com/tesslate/studio-orchestrator/internal/orcherr"
)

// CreateChat inserts a new chat scoped to a project.
func (s *Store) CreateChat(ctx context.Context, c models.Chat) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chats (id, project_id, title) VALUES ($1, $2, $3)`,
		c.ID, c.ProjectID, c.Title)
	if err != nil {
		return orcherr.PermanentError(orcherr.CodeInternal, "create chat", err)
	}
	return nil
}

// GetChat returns a chat by id.
func (s *Store) GetChat(ctx context.Context, chatID string) (*models.Chat, error) {
	var c models.Chat
	err := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, title, created_at, updated_at FROM chats WHERE id = $1`, chatID).
		Scan(&c.ID, &c.ProjectID, &c.Title, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, orcherr.UserError(orcherr.CodeNotFound, "chat not found: "+chatID)
	}
	if err != nil {
		return nil, orcherr.PermanentError(orcherr.CodeInternal, "get chat", err)
	}
	return &c, nil
}

// ListChatsByProject returns every chat for a project, newest first.
func (s *Store) ListChatsByProject(ctx context.Context, projectID string) ([]models.Chat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, title, created_at, updated_at
		FROM chats WHERE project_id = $1 ORDER BY updated_at DESC`, projectID)
	if err != nil {
		return nil, orcherr.PermanentError(orcherr.CodeInternal, "list chats", err)
	}
	defer rows.Close()

	var out []models.Chat
	for rows.Next() {
		var c models.Chat
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, orcherr.PermanentError(orcherr.CodeInternal, "scan chat", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// NextMessageSequence returns the next monotone sequence number for a chat,
// so messages and their AgentSteps order deterministically without relying
// on timestamp precision.
func (s *Store) NextMessageSequence(ctx context.Context, chatID string) (int64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(sequence) FROM messages WHERE chat_id = $1`, chatID).Scan(&seq)
	if err != nil {
		return 0, orcherr.PermanentError(orcherr.CodeInternal, "next message sequence", err)
	}
	return seq.Int64 + 1, nil
}

// CreateMessage inserts a message at the given sequence.
func (s *Store) CreateMessage(ctx context.Context, m models.Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, chat_id, role, content, sequence)
		VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.ChatID, m.Role, m.Content, m.Sequence)
	if err != nil {
		return orcherr.PermanentError(orcherr.CodeInternal, "create message", err)
	}
	_, err = s.db.ExecContext(ctx, `UPDATE chats SET updated_at = CURRENT_TIMESTAMP WHERE id = $1`, m.ChatID)
	if err != nil {
		return orcherr.PermanentError(orcherr.CodeInternal, "touch chat", err)
	}
	return nil
}

// ListMessagesByChat returns a chat's messages in sequence order, each with
// its AgentSteps attached.
func (s *Store) ListMessagesByChat(ctx context.Context, chatID string) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, chat_id, role, content, sequence, created_at
		FROM messages WHERE chat_id = $1 ORDER BY sequence`, chatID)
	if err != nil {
		return nil, orcherr.PermanentError(orcherr.CodeInternal, "list messages", err)
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Role, &m.Content, &m.Sequence, &m.CreatedAt); err != nil {
			return nil, orcherr.PermanentError(orcherr.CodeInternal, "scan message", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		steps, err := s.ListAgentStepsByMessage(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Steps = steps
	}
	return out, nil
}

// InsertAgentStep records one iteration of the Agent Turn Engine's
// trajectory for a message.
func (s *Store) InsertAgentStep(ctx context.Context, step models.AgentStep) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agent_steps (id, message_id, iteration, thought, tool_calls, response_fragment, is_complete)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		step.ID, step.MessageID, step.Iteration, step.Thought, step.ToolCalls, step.ResponseFragment, step.IsComplete)
	if err != nil {
		return orcherr.PermanentError(orcherr.CodeInternal, "insert agent step", err)
	}
	return nil
}

// ListAgentStepsByMessage returns a message's AgentStep trajectory in
// iteration order.
func (s *Store) ListAgentStepsByMessage(ctx context.Context, messageID string) ([]models.AgentStep, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, message_id, iteration, thought, tool_calls, response_fragment, is_complete, created_at
		FROM agent_steps WHERE message_id = $1 ORDER BY iteration`, messageID)
	if err != nil {
		return nil, orcherr.PermanentError(orcherr.CodeInternal, "list agent steps", err)
	}
	defer rows.Close()

	var out []models.AgentStep
	for rows.Next() {
		var st models.AgentStep
		if err := rows.Scan(&st.ID, &st.MessageID, &st.Iteration, &st.Thought, &st.ToolCalls,
			&st.ResponseFragment, &st.IsComplete, &st.CreatedAt); err != nil {
			return nil, orcherr.PermanentError(orcherr.CodeInternal, "scan agent step", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
