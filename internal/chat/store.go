package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/hitoshi/chatman/internal/model"
	"github.com/hitoshi/chatman/internal/repository"
)

// Store はメッセージログの追記・取得を提供するサービス層。
// ログは追記専用で、取得は常に全件（ページネーションなしのread-all設計。
// メッセージ量が少ない前提であり、それ以上のスケールは範囲外）。
type Store struct {
	messages repository.MessageRepository
	recorder Recorder
}

// NewStore はStoreを生成する。recorderはnilでもよい。
func NewStore(messages repository.MessageRepository, recorder Recorder) *Store {
	return &Store{
		messages: messages,
		recorder: recorder,
	}
}

// Append はメッセージを会話ログに追記し、IDが割り当てられた保存済みメッセージを返す。
// 本文が空でないことの検証は呼び出し側の責務（ストアは再検証しない）。
// 会話のChat.users / Chat.userIdsには影響しない。
func (s *Store) Append(ctx context.Context, chatID string, sender model.User, text string, createdAt time.Time) (*model.Message, error) {
	start := time.Now()

	msg := &model.Message{
		ChatID:    chatID,
		Sender:    sender,
		Text:      text,
		CreatedAt: createdAt,
	}

	stored, err := s.messages.Append(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("メッセージの保存に失敗しました: %w", err)
	}

	if s.recorder != nil {
		s.recorder.RecordMessageSent(time.Since(start))
	}

	return stored, nil
}

// List は会話の全メッセージをcreatedAt降順（新しいものが先頭）で返す。
// リモート参加者の新着メッセージは、次にListが呼ばれるまで観測されない
// （ライブ購読なしは意図した簡略化であり、バグではない）。
func (s *Store) List(ctx context.Context, chatID string) ([]*model.Message, error) {
	messages, err := s.messages.ListByChatID(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("メッセージの取得に失敗しました: %w", err)
	}
	return messages, nil
}
