package models

import "errors"

// Ошибки уровня хранилища; сервисы переводят их в прикладные ошибки.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)
