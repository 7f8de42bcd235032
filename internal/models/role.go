package models

import (
	"fmt"
	"strings"
)

// Role — фиксированная категория пользователя.
type Role string

// Известные роли.
const (
	RoleAdmin       Role = "admin"
	RoleDoctor      Role = "doctor"
	RoleRadiologist Role = "radiologist"
	RoleStudent     Role = "student"
	RolePatient     Role = "patient"
)

// Roles возвращает все известные роли в фиксированном порядке.
func Roles() []Role {
	return []Role{RoleAdmin, RoleDoctor, RoleRadiologist, RoleStudent, RolePatient}
}

// Valid сообщает, является ли роль известной.
func (r Role) Valid() bool {
	for _, known := range Roles() {
		if r == known {
			return true
		}
	}
	return false
}

func (r Role) String() string {
	return string(r)
}

// ParseRole приводит строку к известной роли.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("invalid role %q", s)
	}
	return r, nil
}

// Identity — аутентифицированный пользователь, от имени которого выполняется запрос.
type Identity struct {
	UserID string
	Role   Role
}
