package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tesslate/studio-orchestrator/internal/models"
)

func TestCreateChat(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO chats").
		WithArgs("chat-1", "proj-1", "").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.CreateChat(context.Background(), models.Chat{ID: "chat-1", ProjectID: "proj-1"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNextMessageSequence_EmptyChat(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT MAX\\(sequence\\) FROM messages").
		WithArgs("chat-1").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(nil))

	seq, err := s.NextMessageSequence(context.Background(), "chat-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), seq)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateMessage(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO messages").
		WithArgs("msg-1", "chat-1", models.RoleUser, "hello", int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE chats SET updated_at").
		WithArgs("chat-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.CreateMessage(context.Background(), models.Message{
		ID: "msg-1", ChatID: "chat-1", Role: models.RoleUser, Content: "hello", Sequence: 1,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListMessagesByChat(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	msgRows := sqlmock.NewRows([]string{"id", "chat_id", "role", "content", "sequence", "created_at"}).
		AddRow("msg-1", "chat-1", models.RoleUser, "hello", int64(1), now)
	mock.ExpectQuery("SELECT .* FROM messages").WithArgs("chat-1").WillReturnRows(msgRows)

	stepRows := sqlmock.NewRows([]string{
		"id", "message_id", "iteration", "thought", "tool_calls", "response_fragment", "is_complete", "created_at",
	})
	mock.ExpectQuery("SELECT .* FROM agent_steps").WithArgs("msg-1").WillReturnRows(stepRows)

	messages, err := s.ListMessagesByChat(context.Background(), "chat-1")
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "hello", messages[0].Content)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertAgentStep(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO agent_steps").
		WithArgs("step-1", "msg-1", 1, "", sqlmock.AnyArg(), "done", true).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.InsertAgentStep(context.Background(), models.AgentStep{
		ID: "step-1", MessageID: "msg-1", Iteration: 1, ResponseFragment: "done", IsComplete: true,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
