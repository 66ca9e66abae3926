// Package models defines server-side data models persisted in the database.
package models

import "time"

// User is an identity record. AuthHash is the client-derived verifier, never
// the master password. The nickname pair is opaque ciphertext.
type User struct {
	ID                string    `db:"id"`
	Email             string    `db:"email"`
	AuthHash          string    `db:"auth_hash"`
	Salt              string    `db:"salt"`
	EncryptedNickname *string   `db:"encrypted_nickname"`
	NicknameIV        *string   `db:"nickname_iv"`
	CreatedAt         time.Time `db:"created_at"`
}
