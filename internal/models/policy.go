package models

import "time"

// RoleAccessPolicy — флаги доступа для одной роли.
type RoleAccessPolicy struct {
	Role               Role      `json:"role"`
	HasUnlimitedAccess bool      `json:"hasUnlimitedAccess"`
	RequiresPackage    bool      `json:"requiresPackage"`
	Description        string    `json:"description"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// PolicyUpdate — частичное обновление политики. Nil-поля не меняются.
// Role присутствует только для того, чтобы отклонить попытку её изменить.
type PolicyUpdate struct {
	Role               *string `json:"role,omitempty"`
	HasUnlimitedAccess *bool   `json:"hasUnlimitedAccess,omitempty"`
	RequiresPackage    *bool   `json:"requiresPackage,omitempty"`
	Description        *string `json:"description,omitempty"`
}
