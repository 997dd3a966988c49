package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/chatman/internal/model"
)

// ConversationStatus は会話ハンドルの読み込み状態を表す。
type ConversationStatus string

const (
	// StatusLoadingChat は会話レコードの解決中を示す。
	StatusLoadingChat ConversationStatus = "loading-chat"
	// StatusLoadingMessages はメッセージログの読み込み中を示す。
	StatusLoadingMessages ConversationStatus = "loading-messages"
	// StatusReady は会話の操作が可能な状態を示す。
	StatusReady ConversationStatus = "ready"
)

// Controller はリゾルバーとストアを会話単位のAPIとして束ねる。
// ビューレイヤーは参加者IDのペアを渡すだけで、会話状態・メッセージ一覧・
// 送信操作を持つハンドルを受け取る。
type Controller struct {
	resolver *Resolver
	store    *Store
}

// NewController はControllerを生成する。
func NewController(resolver *Resolver, store *Store) *Controller {
	return &Controller{
		resolver: resolver,
		store:    store,
	}
}

// Open は自分と相手の会話を解決し、メッセージログを読み込んだ会話ハンドルを返す。
// 状態遷移: loading-chat → loading-messages → ready。
// 会話IDがメッセージ取得の前提条件のため、2つの読み込みは順次実行する。
func (c *Controller) Open(ctx context.Context, myID, partnerID string) (*Conversation, error) {
	conv := &Conversation{
		status: StatusLoadingChat,
		store:  c.store,
	}

	chat, err := c.resolver.Resolve(ctx, []string{myID, partnerID})
	if err != nil {
		return nil, err
	}

	me, ok := findUser(chat.Users, myID)
	if !ok {
		// 解決済み会話に自分のスナップショットがないのは不整合（過去の競合の痕跡等）
		return nil, model.NewNotParticipantError()
	}

	conv.mu.Lock()
	conv.chat = chat
	conv.me = me
	conv.status = StatusLoadingMessages
	conv.mu.Unlock()

	messages, err := c.store.List(ctx, chat.ID)
	if err != nil {
		return nil, err
	}

	conv.mu.Lock()
	conv.messages = messages
	conv.status = StatusReady
	conv.mu.Unlock()

	return conv, nil
}

// Conversation は解決済み会話の呼び出し側向け投影（会話ハンドル）。
// 保持するメッセージ一覧はストア状態のキャッシュであり、真実の源はストア側。
// Refreshで明示的に再読み込みし、Sendの戻り値で明示的に先頭へ追加する
// （変更のたびに再問い合わせはしない）。
type Conversation struct {
	store *Store

	mu       sync.Mutex
	status   ConversationStatus
	chat     *model.Chat
	me       model.User
	messages []*model.Message
}

// Status は現在の読み込み状態を返す。
func (v *Conversation) Status() ConversationStatus {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.status
}

// Chat は解決済みの会話レコードを返す。未解決の場合はnil。
func (v *Conversation) Chat() *model.Chat {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.chat
}

// Messages はメッセージ一覧（新しいものが先頭）のスナップショットを返す。
func (v *Conversation) Messages() []*model.Message {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]*model.Message, len(v.messages))
	copy(out, v.messages)
	return out
}

// Send はメッセージを送信する。
// 会話の解決が完了していない場合はCHAT_NOT_READYで失敗し、追記は発生しない。
// 成功時はストアが返した保存済みメッセージをローカル一覧の先頭に加える
// （楽観的ローカル更新。Appendの戻り値が正であり、再取得はしない）。
func (v *Conversation) Send(ctx context.Context, text string) (*model.Message, error) {
	v.mu.Lock()
	if v.status != StatusReady {
		v.mu.Unlock()
		return nil, model.NewChatNotReadyError()
	}
	chatID := v.chat.ID
	sender := v.me
	v.mu.Unlock()

	if strings.TrimSpace(text) == "" {
		return nil, model.NewEmptyMessageError()
	}

	msg, err := v.store.Append(ctx, chatID, sender, text, time.Now())
	if err != nil {
		return nil, err
	}

	v.mu.Lock()
	v.messages = append([]*model.Message{msg}, v.messages...)
	v.mu.Unlock()

	return msg, nil
}

// Refresh はメッセージ一覧をストアから再読み込みし、ローカルキャッシュを置き換える。
func (v *Conversation) Refresh(ctx context.Context) error {
	v.mu.Lock()
	if v.status != StatusReady {
		v.mu.Unlock()
		return model.NewChatNotReadyError()
	}
	chatID := v.chat.ID
	v.mu.Unlock()

	messages, err := v.store.List(ctx, chatID)
	if err != nil {
		return fmt.Errorf("メッセージの再読み込みに失敗しました: %w", err)
	}

	v.mu.Lock()
	v.messages = messages
	v.mu.Unlock()

	return nil
}

// findUser はスナップショット列から指定IDのユーザーを探す。
func findUser(users []model.User, id string) (model.User, bool) {
	for _, u := range users {
		if u.ID == id {
			return u, true
		}
	}
	return model.User{}, false
}
