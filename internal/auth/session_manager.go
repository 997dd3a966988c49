package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/chatman/internal/model"
	"github.com/hitoshi/chatman/internal/repository"
)

// SessionStatus は認証セッションの基本状態を表す。
type SessionStatus string

const (
	// StatusUninitialized はIDプロバイダーからの初回通知を受け取る前の状態。
	StatusUninitialized SessionStatus = "uninitialized"
	// StatusAnonymous は未認証の状態。
	StatusAnonymous SessionStatus = "anonymous"
	// StatusAuthenticated は認証済みの状態。
	StatusAuthenticated SessionStatus = "authenticated"
)

// SessionManager は現在の認証セッションを所有する状態機械。
// IDプロバイダーのID変更イベントを購読し、派生状態（status / user / initialized）を公開する。
// 状態遷移: Uninitialized → {Anonymous, Authenticated}。
// サインアップ・サインイン処理中は一時的なAuthenticatingフラグが基本状態に重なる。
//
// 購読はプロセス生存期間中に1回だけ確立し、Closeで1回だけ解除する。
// 同時に複数のサインアップ/サインインを発行しないのは呼び出し側の契約。
type SessionManager struct {
	provider Provider
	users    repository.UserRepository

	subscribeOnce sync.Once
	closeOnce     sync.Once
	unsubscribe   func()

	mu               sync.Mutex
	initialized      bool
	status           SessionStatus
	user             *model.User
	processingSignup bool
	processingSignin bool
}

// NewSessionManager はSessionManagerを生成する。状態はUninitializedで開始する。
func NewSessionManager(provider Provider, users repository.UserRepository) *SessionManager {
	return &SessionManager{
		provider: provider,
		users:    users,
		status:   StatusUninitialized,
	}
}

// Initialize はIDプロバイダーのID変更イベントの購読を確立する。
// 何度呼ばれても購読は1回しか確立しない。
// 初回のイベントは、ペイロードがnilであってもUninitializedからの遷移を引き起こす
// （initializedフラグはビューレイヤーのローディング表示の判定に使われる）。
func (m *SessionManager) Initialize() {
	m.subscribeOnce.Do(func() {
		m.unsubscribe = m.provider.Subscribe(m.onIdentityChanged)
	})
}

// Close はID変更イベントの購読を解除する。何度呼ばれても解除は1回だけ行う。
func (m *SessionManager) Close() {
	m.closeOnce.Do(func() {
		if m.unsubscribe != nil {
			m.unsubscribe()
		}
	})
}

// onIdentityChanged はIDプロバイダーからのID変更イベントを処理する。
// 非nilのIDが報告されればAuthenticated(user)、nilならAnonymousに遷移する。
// userはプロバイダーが報告した値から組み立てる（ディレクトリは参照しない）。
func (m *SessionManager) onIdentityChanged(identity *Identity) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.initialized = true
	if identity != nil {
		m.status = StatusAuthenticated
		m.user = &model.User{
			ID:    identity.UID,
			Email: identity.Email,
			Name:  identity.DisplayName,
		}
	} else {
		m.status = StatusAnonymous
		m.user = nil
	}
}

// Initialized は初回のID変更イベントを受信済みかどうかを返す。
func (m *SessionManager) Initialized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initialized
}

// Status は現在の基本状態を返す。
func (m *SessionManager) Status() SessionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// CurrentUser は現在の認証済みユーザーのコピーを返す。未認証の場合はnil。
func (m *SessionManager) CurrentUser() *model.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user == nil {
		return nil
	}
	u := *m.user
	return &u
}

// ProcessingSignup はサインアップ処理中かどうかを返す。
func (m *SessionManager) ProcessingSignup() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.processingSignup
}

// ProcessingSignin はサインイン処理中かどうかを返す。
func (m *SessionManager) ProcessingSignin() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.processingSignin
}

// Signup は新規アカウントを作成する。
// フロー: 認証情報の作成 → 表示名の設定 → ユーザーディレクトリへの書き込み。
// 認証情報の作成後にディレクトリ書き込みが失敗した場合、孤立した認証情報が残る
// （既知の整合性ギャップ。このコアでは自動修復しない）。
// 成否にかかわらず、終了時にAuthenticating(Signup)フラグは必ず解除される。
func (m *SessionManager) Signup(ctx context.Context, email, password, name string) (*model.User, error) {
	m.setProcessingSignup(true)
	defer m.setProcessingSignup(false)

	// 1. 認証情報を作成（成功するとID変更イベントが発火する）
	identity, err := m.provider.CreateAccount(ctx, email, password)
	if err != nil {
		return nil, err
	}

	// 2. 表示名を設定
	if err := m.provider.UpdateDisplayName(ctx, identity.UID, name); err != nil {
		return nil, err
	}

	// 3. ユーザーディレクトリに書き込む（プロバイダー発行の識別子をキーにする）
	now := time.Now()
	user := &model.User{
		ID:        identity.UID,
		Email:     email,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.users.Create(ctx, user); err != nil {
		slog.Error("failed to write user directory record",
			slog.String("user_id", identity.UID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewDirectoryWriteFailedError()
	}

	slog.Info("new user signed up",
		slog.String("user_id", identity.UID),
		slog.String("email", email),
	)

	return user, nil
}

// Signin は既存アカウントで認証する。
// セッション状態（user）を最終的に更新するのは、この呼び出しの戻り値ではなく
// プロバイダーのID変更イベント。戻り値はHTTPレイヤーがセッション発行に使う。
// 成否にかかわらず、終了時にAuthenticating(Signin)フラグは必ず解除される。
func (m *SessionManager) Signin(ctx context.Context, email, password string) (*model.User, error) {
	m.setProcessingSignin(true)
	defer m.setProcessingSignin(false)

	identity, err := m.provider.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}

	// ディレクトリレコードがあればそれを返す。
	// 見つからない場合はプロバイダーが報告したIDから組み立てる（元設計と同じ寛容さ）。
	user, err := m.users.FindByID(ctx, identity.UID)
	if err != nil {
		slog.Warn("failed to load user directory record after signin",
			slog.String("user_id", identity.UID),
			slog.String("error", err.Error()),
		)
	}
	if user == nil {
		user = &model.User{ID: identity.UID, Email: identity.Email, Name: identity.DisplayName}
	}

	slog.Info("user signed in", slog.String("user_id", identity.UID))

	return user, nil
}

// Signout は現在のIDを破棄する。
// 結果のID変更イベント（nil）がセッション状態をAnonymousへ遷移させる。
func (m *SessionManager) Signout(ctx context.Context) error {
	return m.provider.SignOut(ctx)
}

func (m *SessionManager) setProcessingSignup(v bool) {
	m.mu.Lock()
	m.processingSignup = v
	m.mu.Unlock()
}

func (m *SessionManager) setProcessingSignin(v bool) {
	m.mu.Lock()
	m.processingSignin = v
	m.mu.Unlock()
}
