// Package user はユーザーディレクトリのドメインロジックを提供する。
package user

import (
	"context"
	"fmt"

	"github.com/hitoshi/chatman/internal/model"
	"github.com/hitoshi/chatman/internal/repository"
)

// Service はユーザーディレクトリのサービス層。
// 会話相手の選択に使う名簿（自分以外の全ユーザー）の取得を提供する。
type Service struct {
	userRepo repository.UserRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository) *Service {
	return &Service{
		userRepo: userRepo,
	}
}

// ListOthers は自分以外の全ユーザーを表示名の昇順で返す。
// ユーザー数が名簿として一覧できる規模である前提（ページネーションなし）。
func (s *Service) ListOthers(ctx context.Context, selfID string) ([]*model.User, error) {
	users, err := s.userRepo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}

	others := make([]*model.User, 0, len(users))
	for _, u := range users {
		if u.ID == selfID {
			continue
		}
		others = append(others, u)
	}
	return others, nil
}

// Get は指定IDのユーザーを返す。存在しない場合はUSER_NOT_FOUNDエラー。
func (s *Service) Get(ctx context.Context, userID string) (*model.User, error) {
	u, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if u == nil {
		return nil, model.NewUserNotFoundError(userID)
	}
	return u, nil
}
