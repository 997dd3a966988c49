package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/hitoshi/chatman/internal/model"
)

// PostgresMessageRepo はPostgreSQLを使用したメッセージリポジトリ。
type PostgresMessageRepo struct {
	db *sql.DB
}

// NewPostgresMessageRepo はPostgresMessageRepoを生成する。
func NewPostgresMessageRepo(db *sql.DB) *PostgresMessageRepo {
	return &PostgresMessageRepo{db: db}
}

// Append はメッセージにIDを割り当てて会話ログ末尾に永続化する。
// 本文の検証は呼び出し側の責務（ストアは再検証しない）。
func (r *PostgresMessageRepo) Append(ctx context.Context, msg *model.Message) (*model.Message, error) {
	sender := userDoc{UserID: msg.Sender.ID, Email: msg.Sender.Email, Name: msg.Sender.Name}
	senderJSON, err := json.Marshal(sender)
	if err != nil {
		return nil, fmt.Errorf("failed to encode sender snapshot: %w", err)
	}

	stored := *msg
	stored.ID = uuid.New().String()

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO messages (id, chat_id, sender, body, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		stored.ID, stored.ChatID, senderJSON, stored.Text, stored.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}

	return &stored, nil
}

// ListByChatID は会話の全メッセージをcreated_at降順で返す。
// created_atが同時刻の場合はseq（挿入順）の逆順で並ぶ。
func (r *PostgresMessageRepo) ListByChatID(ctx context.Context, chatID string) ([]*model.Message, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, chat_id, sender, body, created_at
		 FROM messages
		 WHERE chat_id = $1
		 ORDER BY created_at DESC, seq DESC`,
		chatID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []*model.Message
	for rows.Next() {
		msg := &model.Message{}
		var senderJSON []byte
		if err := rows.Scan(&msg.ID, &msg.ChatID, &senderJSON, &msg.Text, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}

		var sender userDoc
		if err := json.Unmarshal(senderJSON, &sender); err != nil {
			return nil, fmt.Errorf("failed to decode sender snapshot: %w", err)
		}
		msg.Sender = model.User{ID: sender.UserID, Email: sender.Email, Name: sender.Name}

		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}

	return messages, nil
}

// compile-time interface check
var _ MessageRepository = (*PostgresMessageRepo)(nil)
