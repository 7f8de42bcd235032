package models

import "time"

// RequestLog — неизменяемая запись об одном тарифицируемом запросе.
type RequestLog struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	Endpoint     string    `json:"endpoint"`
	Method       string    `json:"method"`
	StatusCode   int       `json:"statusCode"`
	ResponseTime int64     `json:"responseTime"` // мс
	UserAgent    string    `json:"userAgent,omitempty"`
	IP           string    `json:"ip,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}
