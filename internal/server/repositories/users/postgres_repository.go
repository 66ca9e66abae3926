package users

import (
	"context"

	"github.com/dmitrijs2005/zkvault/internal/dbx"
	"github.com/dmitrijs2005/zkvault/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {

	query :=
		`INSERT INTO users (id, email, auth_hash, salt, encrypted_nickname, nickname_iv)
         VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		user.ID, user.Email, user.AuthHash, user.Salt, user.EncryptedNickname, user.NicknameIV).Scan(&user.CreatedAt)

	if err != nil {
		return nil, dbx.MapError(err)
	}

	return user, nil
}

const selectUser = `SELECT id, email, auth_hash, salt, encrypted_nickname, nickname_iv, created_at FROM users`

func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getOne(ctx, selectUser+` WHERE email = $1`, email)
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.getOne(ctx, selectUser+` WHERE id = $1`, id)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg string) (*models.User, error) {
	user := &models.User{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID, &user.Email, &user.AuthHash, &user.Salt,
		&user.EncryptedNickname, &user.NicknameIV, &user.CreatedAt)

	if err != nil {
		return nil, dbx.MapError(err)
	}

	return user, nil
}
