// Package clock предоставляет источник времени и границы календарного дня.
// Все «сегодня» в сервисе считаются в локальной зоне сервера.
package clock

import (
	"sync"
	"time"
)

// Clock — источник текущего времени.
type Clock interface {
	Now() time.Time
}

// Real возвращает настоящее время.
type Real struct{}

// Now возвращает текущее время.
func (Real) Now() time.Time {
	return time.Now()
}

// Fake управляется вручную, для тестов.
type Fake struct {
	mu      sync.RWMutex
	current time.Time
}

// NewFake создаёт часы, выставленные на t.
func NewFake(t time.Time) *Fake {
	return &Fake{current: t}
}

// Now возвращает текущее значение часов.
func (f *Fake) Now() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.current
}

// Set выставляет время.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = t
}

// Advance сдвигает время вперёд на d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = f.current.Add(d)
}

// StartOfDay возвращает полночь дня t в зоне t.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// EndOfDay возвращает последнюю миллисекунду дня t (23:59:59.999).
func EndOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), t.Location())
}

// DayBounds возвращает полуинтервал [начало дня, начало следующего дня).
func DayBounds(t time.Time) (start, next time.Time) {
	start = StartOfDay(t)
	return start, start.AddDate(0, 0, 1)
}
