// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, chat, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeAuthFailed           = "AUTH_FAILED"
	ErrCodeDirectoryWriteFailed = "DIRECTORY_WRITE_FAILED"
	ErrCodeChatNotReady         = "CHAT_NOT_READY"
	ErrCodeChatNotFound         = "CHAT_NOT_FOUND"
	ErrCodeNotParticipant       = "NOT_PARTICIPANT"
	ErrCodeEmptyMessage         = "EMPTY_MESSAGE"
	ErrCodeInvalidParticipants  = "INVALID_PARTICIPANTS"
	ErrCodeUserNotFound         = "USER_NOT_FOUND"
)

// NewAuthFailedError は認証失敗エラーを生成する。
// 無効な認証情報、脆弱なパスワード、登録済みメールアドレス等、
// IDプロバイダーから伝播した失敗をまとめて表す。自動リトライはしない。
func NewAuthFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeAuthFailed,
		Message:  fmt.Sprintf("認証に失敗しました: %s", reason),
		Category: "auth",
		Action:   "メールアドレスとパスワードを確認してください。",
	}
}

// NewDirectoryWriteFailedError はユーザーディレクトリへの書き込み失敗エラーを生成する。
// 認証情報の作成後にディレクトリ書き込みが失敗した場合、孤立した認証情報が残る
// （既知の整合性ギャップ。自動では修復しない）。
func NewDirectoryWriteFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeDirectoryWriteFailed,
		Message:  "ユーザー情報の保存に失敗しました。",
		Category: "system",
		Action:   "しばらく待ってから再度サインアップしてください。",
	}
}

// NewChatNotReadyError は会話の解決が完了する前の送信エラーを生成する。
// ローカルで同期的に検出される失敗であり、ネットワークエラーではない。
func NewChatNotReadyError() *APIError {
	return &APIError{
		Code:     ErrCodeChatNotReady,
		Message:  "会話の読み込みが完了していません。",
		Category: "chat",
		Action:   "会話が表示されてからメッセージを送信してください。",
	}
}

// NewChatNotFoundError は会話が見つからない場合のエラーを生成する。
func NewChatNotFoundError(chatID string) *APIError {
	return &APIError{
		Code:     ErrCodeChatNotFound,
		Message:  fmt.Sprintf("指定された会話が見つかりません: %s", chatID),
		Category: "chat",
		Action:   "会話IDを確認してください。",
	}
}

// NewNotParticipantError は参加していない会話への操作エラーを生成する。
func NewNotParticipantError() *APIError {
	return &APIError{
		Code:     ErrCodeNotParticipant,
		Message:  "この会話に参加していません。",
		Category: "auth",
		Action:   "自分が参加している会話を選択してください。",
	}
}

// NewEmptyMessageError は空メッセージの送信エラーを生成する。
func NewEmptyMessageError() *APIError {
	return &APIError{
		Code:     ErrCodeEmptyMessage,
		Message:  "メッセージ本文が空です。",
		Category: "validation",
		Action:   "本文を入力してから送信してください。",
	}
}

// NewInvalidParticipantsError は参加者指定が不正な場合のエラーを生成する。
// 会話には相異なる2人以上の参加者が必要。
func NewInvalidParticipantsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidParticipants,
		Message:  "会話には相異なる2人以上の参加者が必要です。",
		Category: "validation",
		Action:   "自分以外のユーザーを選択してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError(userID string) *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  fmt.Sprintf("ユーザーが見つかりません: %s", userID),
		Category: "auth",
		Action:   "ユーザーIDを確認するか、ログインし直してください。",
	}
}
