package dedup

import (
	"sync"
	"time"

	"github.com/tinywideclouds/go-push-ingestion-service/pkg/push"
)

// RecordLog keeps the delivery records of the trailing retention window.
// Records are appended once and never mutated.
type RecordLog struct {
	mu         sync.Mutex
	retention  time.Duration
	maxRecords int
	records    *timeQueue[push.DeliveryRecord]
	now        func() time.Time
}

// NewRecordLog creates a log that keeps records for cfg.Retention.
// maxRecords caps memory under bursts; zero means no cap.
func NewRecordLog(cfg Config, maxRecords int) *RecordLog {
	cfg = cfg.withDefaults()
	return &RecordLog{
		retention:  cfg.Retention,
		maxRecords: maxRecords,
		records:    newTimeQueue[push.DeliveryRecord](cfg.CompactThreshold),
		now:        time.Now,
	}
}

// Append adds rec to the log.
func (l *RecordLog) Append(rec push.DeliveryRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.records.popExpired(now.Add(-l.retention), nil)
	l.records.push(now, rec)
	for l.maxRecords > 0 && l.records.len() > l.maxRecords {
		l.records.popFront()
	}
}

// Recent returns the retained records, oldest first.
func (l *RecordLog) Recent() []push.DeliveryRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.records.popExpired(l.now().Add(-l.retention), nil)
	return l.records.values()
}
