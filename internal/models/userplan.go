package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus — состояние оплаты плана.
type PaymentStatus string

// Возможные состояния оплаты.
const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

// Valid сообщает, является ли статус допустимым.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentCompleted, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}

// DefaultPaymentMethod подставляется при самостоятельной покупке без указания способа оплаты.
const DefaultPaymentMethod = "credit_card"

// UserPlan — купленный пользователем пакет с окном действия.
// IsActive — административный флаг; действующим план считается только
// вместе с проверкой дат, см. EffectivelyActive.
type UserPlan struct {
	ID            string        `json:"id"`
	UserID        string        `json:"userId"`
	PackageID     string        `json:"packageId"`
	StartDate     time.Time     `json:"startDate"`
	EndDate       time.Time     `json:"endDate"`
	IsActive      bool          `json:"isActive"`
	PurchaseDate  time.Time     `json:"purchaseDate"`
	PaymentMethod string        `json:"paymentMethod,omitempty"`
	TransactionID string        `json:"transactionId,omitempty"`
	PaymentStatus PaymentStatus `json:"paymentStatus"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`

	// Package заполняется при чтении, если пакет ещё существует.
	Package *Package `json:"package,omitempty"`
}

// EffectivelyActive сообщает, действует ли план в момент now.
func (p *UserPlan) EffectivelyActive(now time.Time) bool {
	return p.IsActive && !now.Before(p.StartDate) && !now.After(p.EndDate)
}

// NewUserPlan — данные для создания плана администратором.
type NewUserPlan struct {
	UserID        string        `json:"userId" validate:"required"`
	PackageID     string        `json:"packageId" validate:"required"`
	StartDate     *time.Time    `json:"startDate"`
	EndDate       *time.Time    `json:"endDate"`
	PaymentMethod string        `json:"paymentMethod"`
	TransactionID string        `json:"transactionId"`
	PaymentStatus PaymentStatus `json:"paymentStatus" validate:"omitempty,oneof=pending completed failed refunded"`
}

// UserPlanUpdate — частичное обновление плана. Nil-поля не меняются.
type UserPlanUpdate struct {
	PackageID     *string        `json:"packageId" validate:"omitempty,min=1"`
	StartDate     *time.Time     `json:"startDate"`
	EndDate       *time.Time     `json:"endDate"`
	IsActive      *bool          `json:"isActive"`
	PaymentMethod *string        `json:"paymentMethod"`
	TransactionID *string        `json:"transactionId"`
	PaymentStatus *PaymentStatus `json:"paymentStatus" validate:"omitempty,oneof=pending completed failed refunded"`
}

// Apply применяет изменения к плану.
func (u UserPlanUpdate) Apply(p *UserPlan) {
	if u.PackageID != nil {
		p.PackageID = *u.PackageID
	}
	if u.StartDate != nil {
		p.StartDate = *u.StartDate
	}
	if u.EndDate != nil {
		p.EndDate = *u.EndDate
	}
	if u.IsActive != nil {
		p.IsActive = *u.IsActive
	}
	if u.PaymentMethod != nil {
		p.PaymentMethod = *u.PaymentMethod
	}
	if u.TransactionID != nil {
		p.TransactionID = *u.TransactionID
	}
	if u.PaymentStatus != nil {
		p.PaymentStatus = *u.PaymentStatus
	}
}

// PurchaseRequest — самостоятельная покупка пакета пользователем.
type PurchaseRequest struct {
	PackageID     string `json:"packageId" validate:"required"`
	PaymentMethod string `json:"paymentMethod"`
	TransactionID string `json:"transactionId"`
}

// PlanEvent — событие жизненного цикла плана, публикуемое в брокер.
type PlanEvent struct {
	Type       string          `json:"type"`
	PlanID     string          `json:"planId"`
	UserID     string          `json:"userId"`
	PackageID  string          `json:"packageId"`
	Price      decimal.Decimal `json:"price,omitempty"`
	StartDate  time.Time       `json:"startDate"`
	EndDate    time.Time       `json:"endDate"`
	OccurredAt time.Time       `json:"occurredAt"`
}
