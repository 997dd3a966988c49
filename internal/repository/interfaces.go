// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/chatman/internal/model"
)

// UserRepository はユーザーディレクトリの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByIDs は指定ID群のユーザーを取得する。存在するものだけ返す。
	FindByIDs(ctx context.Context, ids []string) ([]*model.User, error)

	// Create はユーザーディレクトリにレコードを作成する。
	Create(ctx context.Context, user *model.User) error

	// ListAll は全ユーザーをname昇順で返す。
	ListAll(ctx context.Context) ([]*model.User, error)
}

// CredentialRepository はIDプロバイダーの認証情報の永続化インターフェース。
type CredentialRepository interface {
	// FindByEmail はメールアドレスで認証情報を検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.Credential, error)

	// Create は認証情報を作成する。メールアドレス重複時はエラーを返す。
	Create(ctx context.Context, cred *model.Credential) error

	// UpdateDisplayName は表示名を更新する。
	UpdateDisplayName(ctx context.Context, uid, name string) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
	// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// ChatRepository は会話レコードの永続化インターフェース。
type ChatRepository interface {
	// FindByID は指定IDの会話を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Chat, error)

	// FindByUserIDs は正規化済み参加者ID列で会話を検索する。
	// 見つからない場合はnilを返す。複数存在する場合は作成日時が最も古いものを返す。
	FindByUserIDs(ctx context.Context, userIDs []string) (*model.Chat, error)

	// CreateIfAbsent は会話を条件付きで作成する。
	// 同一ペアの会話が既に存在する場合は作成せず既存レコードを返す。
	// 戻り値のboolは新規作成したかどうかを示す。
	CreateIfAbsent(ctx context.Context, chat *model.Chat) (*model.Chat, bool, error)
}

// MessageRepository はメッセージログの永続化インターフェース。
type MessageRepository interface {
	// Append はメッセージをIDを割り当てて会話ログ末尾に永続化し、
	// 保存されたメッセージを返す。本文の検証は呼び出し側の責務。
	Append(ctx context.Context, msg *model.Message) (*model.Message, error)

	// ListByChatID は会話の全メッセージをcreated_at降順で返す。
	// created_atが同時刻の場合は挿入順の逆順で並ぶ。
	ListByChatID(ctx context.Context, chatID string) ([]*model.Message, error)
}
