package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/chatman/internal/model"
	"github.com/hitoshi/chatman/internal/repository"
)

// defaultPasswordMinLength はパスワードの最低文字数のデフォルト値。
const defaultPasswordMinLength = 6

// LocalProviderConfig はLocalProviderの設定。
type LocalProviderConfig struct {
	PasswordMinLength int // パスワードの最低文字数（0の場合はデフォルト値）
}

// LocalProvider は自前の認証情報ストアを使ったProvider実装。
// パスワードはbcryptでハッシュ化して保存する。
// 「現在のID」はプロセスローカルの状態で、変更のたびに購読者へ通知される。
type LocalProvider struct {
	creds  repository.CredentialRepository
	config LocalProviderConfig

	mu      sync.Mutex
	current *Identity
	subs    map[int]func(*Identity)
	nextSub int
}

// NewLocalProvider はLocalProviderを生成する。
func NewLocalProvider(creds repository.CredentialRepository, config LocalProviderConfig) *LocalProvider {
	if config.PasswordMinLength <= 0 {
		config.PasswordMinLength = defaultPasswordMinLength
	}
	return &LocalProvider{
		creds:  creds,
		config: config,
		subs:   make(map[int]func(*Identity)),
	}
}

// CreateAccount はメールアドレスとパスワードで認証情報を作成する。
// 成功すると作成したIDが現在のIDとなり、購読者に通知される。
func (p *LocalProvider) CreateAccount(ctx context.Context, email, password string) (*Identity, error) {
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, model.NewAuthFailedError("メールアドレスの形式が正しくありません")
	}
	if len(password) < p.config.PasswordMinLength {
		return nil, model.NewAuthFailedError(
			fmt.Sprintf("パスワードは%d文字以上で入力してください", p.config.PasswordMinLength))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	cred := &model.Credential{
		UID:          uuid.New().String(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    time.Now(),
	}

	if err := p.creds.Create(ctx, cred); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, model.NewAuthFailedError("このメールアドレスは既に登録されています")
		}
		return nil, fmt.Errorf("failed to create credential: %w", err)
	}

	identity := &Identity{UID: cred.UID, Email: cred.Email}
	p.setCurrent(identity)

	return identity, nil
}

// SignIn はメールアドレスとパスワードで認証する。
// 成功すると認証したIDが現在のIDとなり、購読者に通知される。
func (p *LocalProvider) SignIn(ctx context.Context, email, password string) (*Identity, error) {
	cred, err := p.creds.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find credential: %w", err)
	}
	if cred == nil {
		return nil, model.NewAuthFailedError("メールアドレスまたはパスワードが正しくありません")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)); err != nil {
		return nil, model.NewAuthFailedError("メールアドレスまたはパスワードが正しくありません")
	}

	identity := &Identity{UID: cred.UID, Email: cred.Email, DisplayName: cred.DisplayName}
	p.setCurrent(identity)

	return identity, nil
}

// SignOut は現在のIDを破棄する。購読者にはnilが通知される。
func (p *LocalProvider) SignOut(_ context.Context) error {
	p.setCurrent(nil)
	return nil
}

// UpdateDisplayName は表示名を更新する。
// 現在のIDが対象ユーザーの場合は、変更後のIDが購読者に通知される。
func (p *LocalProvider) UpdateDisplayName(ctx context.Context, uid, name string) error {
	if err := p.creds.UpdateDisplayName(ctx, uid, name); err != nil {
		return fmt.Errorf("failed to update display name: %w", err)
	}

	p.mu.Lock()
	if p.current != nil && p.current.UID == uid {
		updated := *p.current
		updated.DisplayName = name
		p.current = &updated
	}
	current := p.current
	fns := p.snapshotSubsLocked()
	p.mu.Unlock()

	notify(fns, current)
	return nil
}

// Subscribe はID変更イベントの購読を登録し、購読解除関数を返す。
// 登録直後に現在のID（未認証の場合はnil）が1回同期的に通知される。
func (p *LocalProvider) Subscribe(fn func(*Identity)) func() {
	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn
	current := p.current
	p.mu.Unlock()

	// 初回通知（現在の状態を即座に届ける）
	fn(current)

	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}

// setCurrent は現在のIDを差し替え、全購読者に通知する。
func (p *LocalProvider) setCurrent(identity *Identity) {
	p.mu.Lock()
	p.current = identity
	fns := p.snapshotSubsLocked()
	p.mu.Unlock()

	notify(fns, identity)
}

// snapshotSubsLocked は購読者リストのコピーを返す。p.muを保持した状態で呼ぶこと。
// 通知はロックを解放してから行う（コールバックからの再入を許容するため）。
func (p *LocalProvider) snapshotSubsLocked() []func(*Identity) {
	fns := make([]func(*Identity), 0, len(p.subs))
	for _, fn := range p.subs {
		fns = append(fns, fn)
	}
	return fns
}

func notify(fns []func(*Identity), identity *Identity) {
	for _, fn := range fns {
		fn(identity)
	}
}

// compile-time interface check
var _ Provider = (*LocalProvider)(nil)
