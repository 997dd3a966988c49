package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/hitoshi/chatman/internal/model"
)

// userDoc はchats.users / messages.senderに格納するユーザースナップショットのJSON表現。
type userDoc struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Name   string `json:"name"`
}

// encodeUserDocs はユーザースナップショットをJSONBカラム用にエンコードする。
func encodeUserDocs(users []model.User) ([]byte, error) {
	docs := make([]userDoc, 0, len(users))
	for _, u := range users {
		docs = append(docs, userDoc{UserID: u.ID, Email: u.Email, Name: u.Name})
	}
	data, err := json.Marshal(docs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode user snapshots: %w", err)
	}
	return data, nil
}

// decodeUserDocs はJSONBカラムからユーザースナップショットを復元する。
func decodeUserDocs(data []byte) ([]model.User, error) {
	var docs []userDoc
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode user snapshots: %w", err)
	}
	users := make([]model.User, 0, len(docs))
	for _, d := range docs {
		users = append(users, model.User{ID: d.UserID, Email: d.Email, Name: d.Name})
	}
	return users, nil
}

// pairKey は正規化済み参加者ID列からUNIQUE制約用の結合キーを作る。
// 参加者IDはUUID等の":"を含まない識別子を前提とする。
func pairKey(userIDs []string) string {
	return strings.Join(userIDs, ":")
}

// PostgresChatRepo はPostgreSQLを使用した会話リポジトリ。
type PostgresChatRepo struct {
	db *sql.DB
}

// NewPostgresChatRepo はPostgresChatRepoを生成する。
func NewPostgresChatRepo(db *sql.DB) *PostgresChatRepo {
	return &PostgresChatRepo{db: db}
}

// FindByID は指定IDの会話を取得する。見つからない場合はnilを返す。
func (r *PostgresChatRepo) FindByID(ctx context.Context, id string) (*model.Chat, error) {
	return r.findOne(ctx,
		`SELECT id, user_ids, users, created_at FROM chats WHERE id = $1`,
		id,
	)
}

// FindByUserIDs は正規化済み参加者ID列で会話を検索する。
// 見つからない場合はnilを返す。複数存在する場合は作成日時が最も古いものを返す。
func (r *PostgresChatRepo) FindByUserIDs(ctx context.Context, userIDs []string) (*model.Chat, error) {
	return r.findOne(ctx,
		`SELECT id, user_ids, users, created_at
		 FROM chats
		 WHERE pair_key = $1
		 ORDER BY created_at ASC
		 LIMIT 1`,
		pairKey(userIDs),
	)
}

// CreateIfAbsent は会話を条件付きで作成する。
// pair_keyのUNIQUE制約を利用したINSERT ... ON CONFLICT DO NOTHINGにより、
// 同一ペアに対する同時作成でもレコードは1件に収束する。
// 衝突して挿入できなかった場合は勝者のレコードを読み直して返す。
func (r *PostgresChatRepo) CreateIfAbsent(ctx context.Context, chat *model.Chat) (*model.Chat, bool, error) {
	usersJSON, err := encodeUserDocs(chat.Users)
	if err != nil {
		return nil, false, err
	}

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO chats (id, pair_key, user_ids, users, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (pair_key) DO NOTHING`,
		chat.ID, pairKey(chat.UserIDs), pq.Array(chat.UserIDs), usersJSON, chat.CreatedAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert chat: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected > 0 {
		return chat, true, nil
	}

	// 同時作成に負けた場合。勝者のレコードを返す。
	existing, err := r.FindByUserIDs(ctx, chat.UserIDs)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("chat insert conflicted but winner not found: %s", pairKey(chat.UserIDs))
	}
	return existing, false, nil
}

// findOne は1件の会話を取得する共通処理。
func (r *PostgresChatRepo) findOne(ctx context.Context, query string, args ...any) (*model.Chat, error) {
	chat := &model.Chat{}
	var usersJSON []byte

	err := r.db.QueryRowContext(ctx, query, args...).
		Scan(&chat.ID, pq.Array(&chat.UserIDs), &usersJSON, &chat.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find chat: %w", err)
	}

	users, err := decodeUserDocs(usersJSON)
	if err != nil {
		return nil, err
	}
	chat.Users = users

	return chat, nil
}

// compile-time interface check
var _ ChatRepository = (*PostgresChatRepo)(nil)
