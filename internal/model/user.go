// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// IDにはIDプロバイダーが発行した識別子をそのまま使用する。
// サインアップで作成された後、このコアでは不変として扱う。
type User struct {
	ID        string
	Email     string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Credential はIDプロバイダーが保持する認証情報を表す。
// ユーザーディレクトリ（users）とは別に、プロバイダー自身が所有する。
type Credential struct {
	UID          string
	Email        string
	PasswordHash string
	DisplayName  string
	CreatedAt    time.Time
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
