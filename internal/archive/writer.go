package archive

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rnrnstar2/ArbitrageAssistant/internal/protocol"
)

// Config holds batch writer settings.
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
}

// DefaultConfig returns production batch settings.
func DefaultConfig() Config {
	return Config{
		BatchSize:     500,
		FlushInterval: time.Second,
	}
}

// Metrics counts writer activity.
type Metrics struct {
	Inserts   int64
	Conflicts int64
	Flushes   int64
	Errors    int64
	Malformed int64
}

// MessageSource yields buffered inbound messages without blocking.
type MessageSource interface {
	Receive() (msg string, ok bool)
}

// EventWriter consumes messages from a source and writes them to the
// hedge_events table.
type EventWriter struct {
	cfg    Config
	logger *slog.Logger

	source MessageSource
	db     *pgxpool.Pool

	batch       []eventRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics Metrics
}

type eventRow struct {
	EventID    uuid.UUID
	ReceivedAt int64
	EventType  string
	Account    string
	Payload    []byte
}

// NewEventWriter creates a writer draining source into db.
func NewEventWriter(cfg Config, source MessageSource, db *pgxpool.Pool, logger *slog.Logger) *EventWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventWriter{
		cfg:    cfg,
		source: source,
		db:     db,
		logger: logger,
		batch:  make([]eventRow, 0, cfg.BatchSize),
	}
}

// Start begins consuming messages and writing to the database.
func (w *EventWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(1)
	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("event writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop gracefully shuts down the writer and flushes the final batch.
func (w *EventWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping event writer")

	if w.cancel != nil {
		w.cancel()
	}
	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("event writer stopped")
	case <-ctx.Done():
		w.logger.Warn("event writer stop timed out")
	}

	w.flush(ctx)
	return nil
}

// Stats returns current metrics.
func (w *EventWriter) Stats() Metrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// consumeLoop reads from the source and accumulates batches.
func (w *EventWriter) consumeLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
			msg, ok := w.source.Receive()
			if !ok {
				// Buffer empty, wait a bit before trying again
				select {
				case <-w.ctx.Done():
					return
				case <-time.After(10 * time.Millisecond):
					continue
				}
			}

			w.handleMessage(msg)
		}
	}
}

// flushLoop periodically flushes the batch.
func (w *EventWriter) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush(w.ctx)
		}
	}
}

// handleMessage transforms and adds a message to the batch.
func (w *EventWriter) handleMessage(msg string) {
	row, err := w.transform(msg, time.Now())
	if err != nil {
		w.batchMu.Lock()
		w.metrics.Malformed++
		w.batchMu.Unlock()
		w.logger.Warn("skipping malformed event", "error", err)
		return
	}

	w.batchMu.Lock()
	w.batch = append(w.batch, row)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush(w.ctx)
	}
}

// transform parses a raw message into an eventRow.
func (w *EventWriter) transform(msg string, receivedAt time.Time) (eventRow, error) {
	env, err := protocol.Parse([]byte(msg))
	if err != nil {
		return eventRow{}, err
	}
	return eventRow{
		EventID:    uuid.New(),
		ReceivedAt: receivedAt.UnixMicro(),
		EventType:  env.Type,
		Account:    env.Account,
		Payload:    []byte(msg),
	}, nil
}

// flush writes the current batch to the database.
func (w *EventWriter) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]eventRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.batchInsert(ctx, batch)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed events",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *EventWriter) batchInsert(ctx context.Context, rows []eventRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO hedge_events (event_id, received_at, event_type, account, payload)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (event_id) DO NOTHING
		`, r.EventID, r.ReceivedAt, r.EventType, r.Account, r.Payload)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
