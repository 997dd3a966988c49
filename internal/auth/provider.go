// Package auth はIDプロバイダー抽象、認証セッション状態機械、セッション管理を提供する。
package auth

import "context"

// Identity はIDプロバイダーが報告する認証済みID情報を表す。
type Identity struct {
	UID         string
	Email       string
	DisplayName string
}

// Provider はIDプロバイダーのインターフェース。
// 認証情報の発行・検証と、ID変更イベントの購読を提供する。
// 将来的に外部IdPへ差し替え可能にするための抽象化。
type Provider interface {
	// CreateAccount はメールアドレスとパスワードで認証情報を作成する。
	// メールアドレス形式不正、パスワード強度不足、登録済みメールアドレスの場合は
	// model.ErrCodeAuthFailedのAPIErrorを返す。
	CreateAccount(ctx context.Context, email, password string) (*Identity, error)

	// SignIn はメールアドレスとパスワードで認証する。
	// 認証失敗はmodel.ErrCodeAuthFailedのAPIErrorを返す。
	SignIn(ctx context.Context, email, password string) (*Identity, error)

	// SignOut は現在のIDを破棄する。購読者にはnilが通知される。
	SignOut(ctx context.Context) error

	// UpdateDisplayName は表示名を更新し、購読者に変更後のIDを通知する。
	UpdateDisplayName(ctx context.Context, uid, name string) error

	// Subscribe はID変更イベントの購読を登録し、購読解除関数を返す。
	// 登録直後に現在のID（未認証の場合はnil）が1回通知される。
	Subscribe(fn func(*Identity)) (unsubscribe func())
}
