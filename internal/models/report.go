package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateRange — включительный диапазон дат отчёта.
type DateRange struct {
	Start time.Time `json:"startDate"`
	End   time.Time `json:"endDate"`
}

// UserUsage — число запросов пользователя и набор вызванных эндпоинтов.
type UserUsage struct {
	UserID    string   `json:"userId"`
	Count     int      `json:"count"`
	Endpoints []string `json:"endpoints"`
}

// EndpointUsage — число вызовов эндпоинта и использованные методы.
type EndpointUsage struct {
	Endpoint string   `json:"endpoint"`
	Count    int      `json:"count"`
	Methods  []string `json:"methods"`
}

// EndpointUsageReport — использование по эндпоинтам за период.
type EndpointUsageReport struct {
	Count     int             `json:"count"`
	DateRange DateRange       `json:"dateRange"`
	Data      []EndpointUsage `json:"data"`
}

// DailyUsage — запросы за один день.
type DailyUsage struct {
	Date      string         `json:"date"` // 2006-01-02
	Count     int            `json:"count"`
	Endpoints map[string]int `json:"endpoints,omitempty"`
}

// UserUsageReport — дневное использование одного пользователя.
type UserUsageReport struct {
	UserID     string       `json:"userId"`
	DateRange  DateRange    `json:"dateRange"`
	TotalCount int          `json:"totalCount"`
	Daily      []DailyUsage `json:"daily"`
}

// AllUsageReport — сводка по дням и все записи за период.
type AllUsageReport struct {
	DateRange  DateRange    `json:"dateRange"`
	TotalCount int          `json:"totalCount"`
	Daily      []DailyUsage `json:"daily"`
	Logs       []RequestLog `json:"logs"`
}

// PurchaseRecord — покупка плана с данными пакета.
type PurchaseRecord struct {
	PlanID        string          `json:"planId"`
	UserID        string          `json:"userId"`
	PackageID     string          `json:"packageId"`
	PackageName   string          `json:"packageName,omitempty"`
	Price         decimal.Decimal `json:"price"`
	PurchaseDate  time.Time       `json:"purchaseDate"`
	StartDate     time.Time       `json:"startDate"`
	EndDate       time.Time       `json:"endDate"`
	IsActive      bool            `json:"isActive"`
	PaymentMethod string          `json:"paymentMethod,omitempty"`
	TransactionID string          `json:"transactionId,omitempty"`
	PaymentStatus PaymentStatus   `json:"paymentStatus"`
}

// PurchaseHistoryReport — история покупок за период.
type PurchaseHistoryReport struct {
	DateRange DateRange        `json:"dateRange"`
	Count     int              `json:"count"`
	Data      []PurchaseRecord `json:"data"`
}

// PlanStatusSummary — количество планов по состояниям.
type PlanStatusSummary struct {
	Active         int `json:"active"`
	ExpiredFlagged int `json:"expiredButFlaggedActive"`
	Inactive       int `json:"inactive"`
	Total          int `json:"total"`
}

// PlanStatusReport — сводка и планы, истекающие в ближайшие дни.
type PlanStatusReport struct {
	Summary      PlanStatusSummary `json:"summary"`
	ExpiringSoon []UserPlan        `json:"expiringSoon"`
}

// QuotaStatus — состояние дневной квоты пользователя.
type QuotaStatus struct {
	Unlimited       bool   `json:"unlimited"`
	RequiresPackage bool   `json:"requiresPackage"`
	HasActivePlan   bool   `json:"hasActivePlan"`
	PlanID          string `json:"planId,omitempty"`
	TodayCount      int    `json:"todayCount"`
	DailyLimit      int    `json:"dailyLimit"`
	Remaining       int    `json:"remaining"`
}
