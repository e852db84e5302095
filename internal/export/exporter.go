// Package export persists classification outcomes for the external
// reporting process.
package export

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"FlowPilot/internal/config"
	"FlowPilot/internal/model"

	log "github.com/sirupsen/logrus"
)

// Exporter buffers flow records and flushes them to its writers on an
// interval. Record never blocks the packet-in path: when the buffer is full
// the record is dropped and counted.
type Exporter struct {
	writers       []model.RecordWriter
	flushInterval time.Duration

	ch      chan *model.FlowRecord
	done    chan struct{}
	wg      sync.WaitGroup
	dropped atomic.Uint64
}

// NewExporter creates an exporter over the given writers.
func NewExporter(cfg config.ExportConfig, writers []model.RecordWriter) (*Exporter, error) {
	interval, err := time.ParseDuration(cfg.FlushInterval)
	if err != nil {
		return nil, fmt.Errorf("invalid export flush_interval: %w", err)
	}
	if interval <= 0 {
		return nil, fmt.Errorf("export flush_interval must be positive")
	}
	return &Exporter{
		writers:       writers,
		flushInterval: interval,
		ch:            make(chan *model.FlowRecord, 4096),
		done:          make(chan struct{}),
	}, nil
}

// Record implements controller.Recorder. Sessions call it in parallel, so
// the drop counter is atomic.
func (e *Exporter) Record(r *model.FlowRecord) {
	select {
	case e.ch <- r:
	default:
		if n := e.dropped.Add(1); n%1000 == 1 {
			log.WithField("dropped", n).Warn("Export buffer full, dropping records")
		}
	}
}

// Dropped returns how many records were discarded because the buffer was
// full.
func (e *Exporter) Dropped() uint64 {
	return e.dropped.Load()
}

// Start launches the flush loop.
func (e *Exporter) Start() {
	e.wg.Add(1)
	go e.run()
	log.WithField("interval", e.flushInterval).Info("Exporter started")
}

func (e *Exporter) run() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.flushInterval)
	defer ticker.Stop()

	var batch []*model.FlowRecord
	for {
		select {
		case r := <-e.ch:
			batch = append(batch, r)
		case <-ticker.C:
			batch = e.flush(batch)
		case <-e.done:
			// Drain whatever remains before the final flush.
			for {
				select {
				case r := <-e.ch:
					batch = append(batch, r)
				default:
					e.flush(batch)
					return
				}
			}
		}
	}
}

func (e *Exporter) flush(batch []*model.FlowRecord) []*model.FlowRecord {
	if len(batch) == 0 {
		return batch
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, w := range e.writers {
		if err := w.Write(ctx, batch); err != nil {
			log.WithError(err).Errorf("Failed to write %d records", len(batch))
		}
	}
	return batch[:0]
}

// Stop flushes remaining records and closes the writers.
func (e *Exporter) Stop() {
	close(e.done)
	e.wg.Wait()
	for _, w := range e.writers {
		if err := w.Close(); err != nil {
			log.WithError(err).Warn("Writer close failed")
		}
	}
	log.Info("Exporter stopped")
}
