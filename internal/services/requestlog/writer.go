package requestlog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/ent-insight/internal/lib/sl"
	"github.com/magabrotheeeer/ent-insight/internal/metrics"
	"github.com/magabrotheeeer/ent-insight/internal/models"
)

// Writer сохраняет записи журнала.
type Writer interface {
	Create(ctx context.Context, entry models.RequestLog) error
}

// WriterConfig — параметры асинхронной записи.
type WriterConfig struct {
	Workers   int
	QueueSize int
	Timeout   time.Duration
}

// AsyncWriter пишет записи журнала в фоне. Переполненная очередь отбрасывает запись,
// ошибки записи только логируются, повторов нет.
type AsyncWriter struct {
	store   Writer
	cfg     WriterConfig
	queue   chan models.RequestLog
	metrics *metrics.Collector
	log     *slog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewAsyncWriter создаёт писатель и запускает воркеры.
func NewAsyncWriter(store Writer, cfg WriterConfig, m *metrics.Collector, log *slog.Logger) *AsyncWriter {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	w := &AsyncWriter{
		store:   store,
		cfg:     cfg,
		queue:   make(chan models.RequestLog, cfg.QueueSize),
		metrics: m,
		log:     log,
	}
	for i := range cfg.Workers {
		w.wg.Add(1)
		go w.worker(i)
	}
	return w
}

// Enqueue ставит запись в очередь. Возвращает false, если запись отброшена.
func (w *AsyncWriter) Enqueue(entry models.RequestLog) bool {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		w.metrics.LogWrite("dropped")
		w.log.Warn("request log writer closed, entry dropped", slog.String("user_id", entry.UserID))
		return false
	}

	select {
	case w.queue <- entry:
		w.metrics.QueueDepth(len(w.queue))
		return true
	default:
		w.metrics.LogWrite("dropped")
		w.log.Warn("request log queue full, entry dropped",
			slog.String("user_id", entry.UserID), slog.String("endpoint", entry.Endpoint))
		return false
	}
}

func (w *AsyncWriter) worker(id int) {
	defer w.wg.Done()
	for entry := range w.queue {
		w.metrics.QueueDepth(len(w.queue))
		w.write(id, entry)
	}
}

func (w *AsyncWriter) write(id int, entry models.RequestLog) {
	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.Timeout)
	defer cancel()

	if err := w.store.Create(ctx, entry); err != nil {
		w.metrics.LogWrite("failed")
		w.log.Error("failed to write request log",
			slog.Int("worker", id),
			slog.String("user_id", entry.UserID),
			slog.String("endpoint", entry.Endpoint),
			sl.Err(err))
		return
	}
	w.metrics.LogWrite("written")
}

// Close перестаёт принимать записи и дожидается записи очереди или отмены ctx.
func (w *AsyncWriter) Close(ctx context.Context) error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
