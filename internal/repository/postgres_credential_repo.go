package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/chatman/internal/model"
)

// ErrDuplicateEmail は登録済みメールアドレスでの認証情報作成を表す。
var ErrDuplicateEmail = errors.New("email already registered")

// uniqueViolation はPostgreSQLの一意制約違反のSQLSTATE。
const uniqueViolation = "23505"

// PostgresCredentialRepo はPostgreSQLを使用した認証情報リポジトリ。
type PostgresCredentialRepo struct {
	db *sql.DB
}

// NewPostgresCredentialRepo はPostgresCredentialRepoを生成する。
func NewPostgresCredentialRepo(db *sql.DB) *PostgresCredentialRepo {
	return &PostgresCredentialRepo{db: db}
}

// FindByEmail はメールアドレスで認証情報を検索する。見つからない場合はnilを返す。
func (r *PostgresCredentialRepo) FindByEmail(ctx context.Context, email string) (*model.Credential, error) {
	cred := &model.Credential{}
	err := r.db.QueryRowContext(ctx,
		`SELECT uid, email, password_hash, display_name, created_at
		 FROM credentials
		 WHERE email = $1`,
		email,
	).Scan(&cred.UID, &cred.Email, &cred.PasswordHash, &cred.DisplayName, &cred.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find credential by email: %w", err)
	}

	return cred, nil
}

// Create は認証情報を作成する。メールアドレス重複時はErrDuplicateEmailを返す。
func (r *PostgresCredentialRepo) Create(ctx context.Context, cred *model.Credential) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO credentials (uid, email, password_hash, display_name, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		cred.UID, cred.Email, cred.PasswordHash, cred.DisplayName, cred.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to insert credential: %w", err)
	}
	return nil
}

// UpdateDisplayName は表示名を更新する。
func (r *PostgresCredentialRepo) UpdateDisplayName(ctx context.Context, uid, name string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE credentials SET display_name = $2 WHERE uid = $1`,
		uid, name,
	)
	if err != nil {
		return fmt.Errorf("failed to update display name: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("credential not found: %s", uid)
	}
	return nil
}

// compile-time interface check
var _ CredentialRepository = (*PostgresCredentialRepo)(nil)
