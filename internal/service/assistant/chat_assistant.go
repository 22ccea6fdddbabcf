package assistant

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"mojochat/internal/models"
	"mojochat/internal/redis"
)

const historyKeyPrefix = "history:"

// GetChat returns one chat. It yields ErrNotFound for unknown ids and
// ErrForbidden when the chat belongs to someone else.
func (s *Service) GetChat(ctx context.Context, userID, chatID string) (*models.Chat, error) {
	chat, err := s.getChatByID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if chat.UserID != userID {
		return nil, ErrForbidden
	}
	return chat, nil
}

// SaveChat replaces the stored transcript for chat.ID, creating the record on
// first save. Concurrent saves for one id are last-write-wins.
func (s *Service) SaveChat(ctx context.Context, chat *models.Chat) error {
	if chat == nil || strings.TrimSpace(chat.ID) == "" || chat.UserID == "" {
		return fmt.Errorf("%w: chat id and owner are required", ErrInvalidInput)
	}
	messages, err := json.Marshal(models.FilterEmpty(chat.Messages))
	if err != nil {
		return fmt.Errorf("encode messages: %w", err)
	}
	toolCalls, err := marshalOptional(chat.ToolCalls)
	if err != nil {
		return fmt.Errorf("encode tool calls: %w", err)
	}
	toolResults, err := marshalOptional(chat.ToolResults)
	if err != nil {
		return fmt.Errorf("encode tool results: %w", err)
	}

	existing, err := s.getChatByID(ctx, chat.ID)
	switch {
	case errors.Is(err, ErrNotFound):
		if chat.CreatedAt.IsZero() {
			chat.CreatedAt = s.now()
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO chats (id, user_id, created_at, messages, tool_calls, tool_results) VALUES (?, ?, ?, ?, ?, ?)`,
			chat.ID, chat.UserID, chat.CreatedAt, string(messages), toolCalls, toolResults,
		)
		if err != nil {
			if isUniqueViolation(err) {
				// lost the insert race; fall through to the update path
				return s.SaveChat(ctx, chat)
			}
			return fmt.Errorf("insert chat: %w", err)
		}
	case err != nil:
		return err
	default:
		if existing.UserID != chat.UserID {
			return ErrForbidden
		}
		chat.CreatedAt = existing.CreatedAt
		_, err = s.db.ExecContext(ctx,
			`UPDATE chats SET messages = ?, tool_calls = ?, tool_results = ? WHERE id = ?`,
			string(messages), toolCalls, toolResults, chat.ID,
		)
		if err != nil {
			return fmt.Errorf("update chat: %w", err)
		}
	}
	s.invalidateHistory(ctx, chat.UserID)
	return nil
}

// DeleteChat removes a chat owned by userID.
func (s *Service) DeleteChat(ctx context.Context, userID, chatID string) error {
	if _, err := s.GetChat(ctx, userID, chatID); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM chats WHERE id = ? AND user_id = ?`, chatID, userID)
	if err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("chat rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	s.invalidateHistory(ctx, userID)
	return nil
}

// ListChats returns the user's chats, newest first. Results are served from
// redis when a cache is configured.
func (s *Service) ListChats(ctx context.Context, userID string) ([]models.Chat, error) {
	key := historyKeyPrefix + userID
	if s.cache.Enabled() {
		raw, err := s.cache.Get(ctx, key)
		if err == nil {
			var chats []models.Chat
			if err := json.Unmarshal([]byte(raw), &chats); err == nil {
				return chats, nil
			}
			s.logger.Warn("history cache decode failed", zap.String("user_id", userID))
		} else if !errors.Is(err, redis.ErrCacheMiss) {
			s.logger.Warn("history cache read failed", zap.String("user_id", userID), zap.Error(err))
		}
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, created_at, messages, tool_calls, tool_results FROM chats WHERE user_id = ? ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	chats := make([]models.Chat, 0)
	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		chats = append(chats, *chat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chats: %w", err)
	}

	if s.cache.Enabled() {
		if payload, err := json.Marshal(chats); err == nil {
			if err := s.cache.Set(ctx, key, payload, s.historyTTL); err != nil {
				s.logger.Warn("history cache write failed", zap.String("user_id", userID), zap.Error(err))
			}
		}
	}
	return chats, nil
}

func (s *Service) getChatByID(ctx context.Context, chatID string) (*models.Chat, error) {
	if strings.TrimSpace(chatID) == "" {
		return nil, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, created_at, messages, tool_calls, tool_results FROM chats WHERE id = ?`,
		chatID,
	)
	chat, err := scanChat(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return chat, nil
}

func (s *Service) invalidateHistory(ctx context.Context, userID string) {
	if err := s.cache.Del(ctx, historyKeyPrefix+userID); err != nil {
		s.logger.Warn("history cache invalidate failed", zap.String("user_id", userID), zap.Error(err))
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChat(row rowScanner) (*models.Chat, error) {
	var (
		chat        models.Chat
		messages    []byte
		toolCalls   sql.NullString
		toolResults sql.NullString
	)
	if err := row.Scan(&chat.ID, &chat.UserID, &chat.CreatedAt, &messages, &toolCalls, &toolResults); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan chat: %w", err)
	}
	if err := json.Unmarshal(messages, &chat.Messages); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	if toolCalls.Valid && toolCalls.String != "" {
		if err := json.Unmarshal([]byte(toolCalls.String), &chat.ToolCalls); err != nil {
			return nil, fmt.Errorf("decode tool calls: %w", err)
		}
	}
	if toolResults.Valid && toolResults.String != "" {
		if err := json.Unmarshal([]byte(toolResults.String), &chat.ToolResults); err != nil {
			return nil, fmt.Errorf("decode tool results: %w", err)
		}
	}
	return &chat, nil
}

func marshalOptional[T any](items []T) (sql.NullString, error) {
	if len(items) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(items)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}
