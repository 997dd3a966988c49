package chat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/chatman/internal/model"
	"github.com/hitoshi/chatman/internal/repository"
)

// Resolver は参加者IDの非順序集合をちょうど1件の正準な会話レコードへ解決する。
// 初回接触時には会話を新規作成する。
//
// 同時解決の扱い: chats.pair_keyのUNIQUE制約を使った条件付きINSERTにより、
// 2つのプロセスが同じペアを同時に解決してもレコードは1件に収束する
// （素朴なread-then-writeが持つ重複作成の競合をストアレベルで閉じた設計）。
type Resolver struct {
	chats    repository.ChatRepository
	users    repository.UserRepository
	recorder Recorder
}

// NewResolver はResolverを生成する。recorderはnilでもよい。
func NewResolver(chats repository.ChatRepository, users repository.UserRepository, recorder Recorder) *Resolver {
	return &Resolver{
		chats:    chats,
		users:    users,
		recorder: recorder,
	}
}

// Resolve は参加者IDの集合に対応する会話を返す。
// フロー: 正準キーの算出 → 既存会話の検索 → （なければ）参加者の取得と条件付き作成。
// 引数の順序に対して冪等: Resolve({A,B})とResolve({B,A})は同じ会話を返す。
func (r *Resolver) Resolve(ctx context.Context, participantIDs []string) (*model.Chat, error) {
	// 1. 正準キーを算出（昇順ソート・重複排除）
	key := Key(participantIDs)
	if len(key) < 2 {
		return nil, model.NewInvalidParticipantsError()
	}

	// 2. 既存会話を検索（複数存在する場合は最古のものが返る）
	existing, err := r.chats.FindByUserIDs(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("会話の検索に失敗しました: %w", err)
	}
	if existing != nil {
		if r.recorder != nil {
			r.recorder.RecordChatReused()
		}
		return existing, nil
	}

	// 3. 参加者のユーザーレコードを取得
	participants, err := r.users.FindByIDs(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("参加者の取得に失敗しました: %w", err)
	}
	if missing := missingID(key, participants); missing != "" {
		return nil, model.NewUserNotFoundError(missing)
	}

	users := make([]model.User, 0, len(participants))
	for _, u := range participants {
		users = append(users, *u)
	}

	// 4. 条件付き作成。同時作成に敗れた場合は勝者のレコードが返る。
	chat := &model.Chat{
		ID:        uuid.New().String(),
		UserIDs:   key,
		Users:     users,
		CreatedAt: time.Now(),
	}

	winner, created, err := r.chats.CreateIfAbsent(ctx, chat)
	if err != nil {
		return nil, fmt.Errorf("会話の作成に失敗しました: %w", err)
	}

	if created {
		if r.recorder != nil {
			r.recorder.RecordChatCreated()
		}
		slog.Info("chat created",
			slog.String("chat_id", winner.ID),
			slog.Any("user_ids", winner.UserIDs),
		)
	} else {
		if r.recorder != nil {
			r.recorder.RecordResolveConflict()
		}
		slog.Info("chat create conflicted, reusing winner",
			slog.String("chat_id", winner.ID),
		)
	}

	return winner, nil
}

// missingID はキーに含まれるが取得結果に存在しないユーザーIDを返す。
// すべて揃っている場合は空文字を返す。
func missingID(key []string, users []*model.User) string {
	found := make(map[string]struct{}, len(users))
	for _, u := range users {
		found[u.ID] = struct{}{}
	}
	for _, id := range key {
		if _, ok := found[id]; !ok {
			return id
		}
	}
	return ""
}
