// Package audit keeps a persistent history of the client's lease events.
// Every bind, renewal, rebind, refusal, expiry, release and decline is
// recorded with its context in a BoltDB bucket next to the stored lease,
// so an operator can answer which address the host held at a given time.
package audit

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/athena-dhcpd/athena-dhclient/internal/events"
	bolt "go.etcd.io/bbolt"
)

var bucketHistory = []byte("lease_history")

// DefaultMaxRecords bounds the history when no limit is configured.
const DefaultMaxRecords = 1000

// Record is a single history entry.
type Record struct {
	ID          uint64 `json:"id"`
	Timestamp   string `json:"timestamp"`
	Event       string `json:"event"`
	Interface   string `json:"interface"`
	State       string `json:"state,omitempty"`
	IP          string `json:"ip,omitempty"`
	MAC         string `json:"mac,omitempty"`
	Subnet      string `json:"subnet,omitempty"`
	Router      string `json:"router,omitempty"`
	ServerID    string `json:"server_id,omitempty"`
	LeaseStart  int64  `json:"lease_start,omitempty"`
	LeaseExpiry int64  `json:"lease_expiry,omitempty"`
	OldIP       string `json:"old_ip,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// QueryParams holds filter parameters for querying the history.
type QueryParams struct {
	IP    string    // filter by IP address
	At    time.Time // point-in-time query: did we hold IP at this time?
	From  time.Time // range start (inclusive)
	To    time.Time // range end (inclusive)
	Event string    // filter by event type
	Limit int       // max results (0 = no limit, default 1000)
}

// Log records lease events from the bus into BoltDB.
type Log struct {
	db         *bolt.DB
	bus        *events.Bus
	logger     *slog.Logger
	maxRecords int
	ch         chan events.Event
	done       chan struct{}
	stopped    chan struct{}
	started    atomic.Bool
}

// NewLog creates a history log in db and subscribes it to bus. bus may be
// nil for read-only use. maxRecords <= 0 uses DefaultMaxRecords.
func NewLog(db *bolt.DB, bus *events.Bus, maxRecords int, logger *slog.Logger) (*Log, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketHistory); err != nil {
			return fmt.Errorf("creating history bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if maxRecords <= 0 {
		maxRecords = DefaultMaxRecords
	}

	l := &Log{
		db:         db,
		bus:        bus,
		logger:     logger,
		maxRecords: maxRecords,
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}
	if bus != nil {
		l.ch = bus.Subscribe(256)
	}
	return l, nil
}

// Start records events until Stop. Call in a goroutine.
func (l *Log) Start() {
	if l.ch == nil || !l.started.CompareAndSwap(false, true) {
		return
	}
	defer close(l.stopped)
	l.logger.Info("lease history started", "max_records", l.maxRecords)

	for {
		select {
		case evt, ok := <-l.ch:
			if !ok {
				return
			}
			l.handleEvent(evt)
		case <-l.done:
			l.drain()
			return
		}
	}
}

func (l *Log) drain() {
	for {
		select {
		case evt, ok := <-l.ch:
			if !ok {
				return
			}
			l.handleEvent(evt)
		default:
			return
		}
	}
}

// Stop records anything already queued and unsubscribes. Stop the bus
// first so its buffer is flushed into the log.
func (l *Log) Stop() {
	if l.ch == nil {
		return
	}
	close(l.done)
	if l.started.CompareAndSwap(false, true) {
		l.drain()
	} else {
		<-l.stopped
	}
	l.bus.Unsubscribe(l.ch)
	l.logger.Info("lease history stopped")
}

// handleEvent converts a bus event into a history record and persists it.
func (l *Log) handleEvent(evt events.Event) {
	rec, ok := recordFor(evt)
	if !ok {
		return
	}
	if err := l.append(rec); err != nil {
		l.logger.Error("failed to write lease history record",
			"event", rec.Event, "ip", rec.IP, "error", err)
	}
}

func recordFor(evt events.Event) (Record, bool) {
	rec := Record{
		Timestamp: evt.Timestamp.UTC().Format(time.RFC3339Nano),
		Event:     string(evt.Type),
		Interface: evt.Interface,
		State:     evt.State,
		Reason:    evt.Reason,
	}

	switch evt.Type {
	case events.EventLeaseBound, events.EventLeaseRenew, events.EventLeaseRebind,
		events.EventLeaseNak, events.EventLeaseExpire, events.EventLeaseRelease:
		if ld := evt.Lease; ld != nil {
			rec.IP = ipStr(ld.IP)
			rec.MAC = macStr(ld.MAC)
			rec.Subnet = ld.Subnet
			rec.Router = ipStr(ld.Router)
			rec.ServerID = ipStr(ld.ServerID)
			rec.LeaseStart = ld.Start
			rec.LeaseExpiry = ld.Expiry
			rec.OldIP = ipStr(ld.OldIP)
		}
	case events.EventConflictDecline:
		if cd := evt.Conflict; cd != nil {
			rec.IP = ipStr(cd.IP)
			rec.ServerID = ipStr(cd.ServerID)
		}
	default:
		return Record{}, false
	}
	return rec, true
}

// append persists a record with an auto-increment ID and drops the oldest
// records beyond maxRecords.
func (l *Log) append(rec Record) error {
	return l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketHistory)

		id, err := b.NextSequence()
		if err != nil {
			return fmt.Errorf("generating history ID: %w", err)
		}
		rec.ID = id

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshalling history record: %w", err)
		}
		if err := b.Put(uint64Key(id), data); err != nil {
			return fmt.Errorf("storing history record: %w", err)
		}

		c := b.Cursor()
		n := 0
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			n++
		}
		var stale [][]byte
		for k, _ := c.First(); k != nil && n > l.maxRecords; k, _ = c.Next() {
			stale = append(stale, append([]byte(nil), k...))
			n--
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return fmt.Errorf("pruning history: %w", err)
			}
		}
		return nil
	})
}

// Query searches the history, newest first.
func (l *Log) Query(params QueryParams) ([]Record, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = 1000
	}

	var results []Record
	err := l.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketHistory).Cursor()
		for k, v := c.Last(); k != nil && len(results) < limit; k, v = c.Prev() {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				continue
			}
			if matchesQuery(rec, params) {
				results = append(results, rec)
			}
		}
		return nil
	})
	return results, err
}

// Count returns the number of history records.
func (l *Log) Count() int {
	var count int
	l.db.View(func(tx *bolt.Tx) error {
		count = tx.Bucket(bucketHistory).Stats().KeyN
		return nil
	})
	return count
}

// matchesQuery returns true if a record matches all non-zero query fields.
func matchesQuery(rec Record, params QueryParams) bool {
	if params.IP != "" && rec.IP != params.IP {
		return false
	}
	if params.Event != "" && rec.Event != params.Event {
		return false
	}

	recTime, err := time.Parse(time.RFC3339Nano, rec.Timestamp)
	if err != nil {
		return false
	}

	// Point-in-time query: the lease must cover At.
	if !params.At.IsZero() {
		if rec.LeaseStart == 0 || rec.LeaseStart > params.At.Unix() {
			return false
		}
		if rec.LeaseExpiry != 0 && rec.LeaseExpiry < params.At.Unix() {
			return false
		}
		return !recTime.After(params.At)
	}

	if !params.From.IsZero() && recTime.Before(params.From) {
		return false
	}
	if !params.To.IsZero() && recTime.After(params.To) {
		return false
	}
	return true
}

// --- helpers ---

func uint64Key(id uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, id)
	return key
}

func ipStr(ip net.IP) string {
	if ip == nil {
		return ""
	}
	return ip.String()
}

func macStr(mac net.HardwareAddr) string {
	if mac == nil {
		return ""
	}
	return mac.String()
}
