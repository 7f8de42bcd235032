package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Package — тариф каталога: дневной лимит, срок действия и цена.
type Package struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	Description       string          `json:"description,omitempty"`
	DailyRequestLimit int             `json:"dailyRequestLimit"`
	DurationInDays    int             `json:"durationInDays"`
	Price             decimal.Decimal `json:"price"`
	IsUnlimited       bool            `json:"isUnlimited"`
	IsActive          bool            `json:"isActive"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// PackageInput используется для создания пакета из JSON-запроса.
type PackageInput struct {
	Name              string          `json:"name" validate:"required,max=100"`
	Description       string          `json:"description" validate:"max=1000"`
	DailyRequestLimit *int            `json:"dailyRequestLimit" validate:"required,min=0"`
	DurationInDays    int             `json:"durationInDays" validate:"required,min=1"`
	Price             decimal.Decimal `json:"price"`
	IsUnlimited       bool            `json:"isUnlimited"`
	IsActive          *bool           `json:"isActive"`
}

// PackageUpdate — частичное обновление пакета. Nil-поля не меняются.
type PackageUpdate struct {
	Name              *string          `json:"name" validate:"omitempty,min=1,max=100"`
	Description       *string          `json:"description" validate:"omitempty,max=1000"`
	DailyRequestLimit *int             `json:"dailyRequestLimit" validate:"omitempty,min=0"`
	DurationInDays    *int             `json:"durationInDays" validate:"omitempty,min=1"`
	Price             *decimal.Decimal `json:"price"`
	IsUnlimited       *bool            `json:"isUnlimited"`
	IsActive          *bool            `json:"isActive"`
}

// PackageStatusRequest переключает доступность пакета для покупки.
type PackageStatusRequest struct {
	IsActive *bool `json:"isActive" validate:"required"`
}

// Apply применяет изменения к пакету.
func (u PackageUpdate) Apply(p *Package) {
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.Description != nil {
		p.Description = *u.Description
	}
	if u.DailyRequestLimit != nil {
		p.DailyRequestLimit = *u.DailyRequestLimit
	}
	if u.DurationInDays != nil {
		p.DurationInDays = *u.DurationInDays
	}
	if u.Price != nil {
		p.Price = *u.Price
	}
	if u.IsUnlimited != nil {
		p.IsUnlimited = *u.IsUnlimited
	}
	if u.IsActive != nil {
		p.IsActive = *u.IsActive
	}
}
