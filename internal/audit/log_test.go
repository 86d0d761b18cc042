package audit

import (
	"bytes"
	"encoding/csv"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/athena-dhcpd/athena-dhclient/internal/events"
	bolt "go.etcd.io/bbolt"
)

func testDB(t *testing.T) *bolt.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestHistoryAppendAndQuery(t *testing.T) {
	al, err := NewLog(testDB(t), nil, 0, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	now := time.Now().UTC()
	records := []Record{
		{Timestamp: now.Add(-2 * time.Hour).Format(time.RFC3339Nano), Event: "lease.bound", IP: "10.0.0.100", LeaseStart: now.Add(-2 * time.Hour).Unix(), LeaseExpiry: now.Add(22 * time.Hour).Unix()},
		{Timestamp: now.Add(-1 * time.Hour).Format(time.RFC3339Nano), Event: "lease.renew", IP: "10.0.0.100", LeaseStart: now.Add(-1 * time.Hour).Unix(), LeaseExpiry: now.Add(23 * time.Hour).Unix()},
		{Timestamp: now.Add(-30 * time.Minute).Format(time.RFC3339Nano), Event: "lease.bound", IP: "10.0.0.101", LeaseStart: now.Add(-30 * time.Minute).Unix(), LeaseExpiry: now.Add(23*time.Hour + 30*time.Minute).Unix()},
		{Timestamp: now.Format(time.RFC3339Nano), Event: "lease.release", IP: "10.0.0.101"},
	}
	for _, r := range records {
		if err := al.append(r); err != nil {
			t.Fatal(err)
		}
	}

	if al.Count() != 4 {
		t.Errorf("expected 4 records, got %d", al.Count())
	}

	tests := []struct {
		name   string
		params QueryParams
		want   int
	}{
		{"all", QueryParams{}, 4},
		{"by ip", QueryParams{IP: "10.0.0.100"}, 2},
		{"by event", QueryParams{Event: "lease.bound"}, 2},
		{"by range", QueryParams{From: now.Add(-90 * time.Minute), To: now.Add(-15 * time.Minute)}, 2},
		{"limit", QueryParams{Limit: 1}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := al.Query(tt.params)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d records, want %d", len(got), tt.want)
			}
		})
	}
}

func TestHistoryPointInTimeQuery(t *testing.T) {
	al, err := NewLog(testDB(t), nil, 0, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	// Bound 10.0.0.50 at 14:00 with a lease ending at 15:00.
	t1 := time.Date(2025, 2, 15, 14, 0, 0, 0, time.UTC)
	t2 := time.Date(2025, 2, 15, 15, 0, 0, 0, time.UTC)
	al.append(Record{
		Timestamp:   t1.Format(time.RFC3339Nano),
		Event:       "lease.bound",
		IP:          "10.0.0.50",
		MAC:         "aa:bb:cc:dd:ee:ff",
		LeaseStart:  t1.Unix(),
		LeaseExpiry: t2.Unix(),
	})

	results, err := al.Query(QueryParams{IP: "10.0.0.50", At: time.Date(2025, 2, 15, 14, 30, 0, 0, time.UTC)})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("point-in-time query: expected 1, got %d", len(results))
	}

	results, err = al.Query(QueryParams{IP: "10.0.0.50", At: time.Date(2025, 2, 15, 15, 30, 0, 0, time.UTC)})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("after-expiry query: expected 0, got %d", len(results))
	}
}

func TestHistoryPrunesOldest(t *testing.T) {
	al, err := NewLog(testDB(t), nil, 5, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 12; i++ {
		if err := al.append(Record{
			Timestamp: time.Now().Add(time.Duration(i) * time.Second).Format(time.RFC3339Nano),
			Event:     "lease.renew",
			IP:        "10.0.0.1",
		}); err != nil {
			t.Fatal(err)
		}
	}

	if al.Count() != 5 {
		t.Errorf("Count() = %d, want 5", al.Count())
	}
	results, err := al.Query(QueryParams{})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 5 || results[0].ID != 12 || results[4].ID != 8 {
		t.Errorf("kept IDs %d..%d, want 12..8 newest first", results[0].ID, results[len(results)-1].ID)
	}
}

func TestHistoryEventBusIntegration(t *testing.T) {
	db := testDB(t)
	bus := events.NewBus(100, testLogger())

	al, err := NewLog(db, bus, 0, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	go bus.Start()
	go al.Start()

	start := time.Now()
	bus.Publish(events.Event{
		Type:      events.EventLeaseBound,
		Timestamp: start,
		Interface: "eth0",
		State:     "BOUND",
		Lease: &events.LeaseData{
			IP:       net.ParseIP("192.168.1.10"),
			MAC:      net.HardwareAddr{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0x01},
			Subnet:   "192.168.1.0/24",
			ServerID: net.ParseIP("192.168.1.1"),
			Start:    start.Unix(),
			Expiry:   start.Add(24 * time.Hour).Unix(),
		},
	})
	bus.Publish(events.Event{
		Type:      events.EventConflictDecline,
		Timestamp: start,
		Interface: "eth0",
		Conflict:  &events.ConflictData{IP: net.ParseIP("192.168.1.11"), ServerID: net.ParseIP("192.168.1.1")},
		Reason:    "address in use",
	})
	bus.Publish(events.Event{
		Type:      events.EventAcquisitionFailing,
		Timestamp: start,
		Failure:   &events.FailureData{Cycles: 3, Threshold: 3},
	})

	// Stopping the bus then the log flushes everything queued.
	bus.Stop()
	al.Stop()

	if al.Count() != 2 {
		t.Fatalf("Count() = %d, want 2 (acquisition.failing is not recorded)", al.Count())
	}
	results, err := al.Query(QueryParams{IP: "192.168.1.10"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 record for the bound address, got %d", len(results))
	}
	r := results[0]
	if r.MAC != "aa:bb:cc:dd:ee:01" || r.ServerID != "192.168.1.1" || r.Interface != "eth0" || r.State != "BOUND" {
		t.Errorf("record = %+v", r)
	}

	declined, err := al.Query(QueryParams{Event: string(events.EventConflictDecline)})
	if err != nil {
		t.Fatal(err)
	}
	if len(declined) != 1 || declined[0].IP != "192.168.1.11" || declined[0].Reason != "address in use" {
		t.Errorf("decline records = %+v", declined)
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	err := WriteCSV(&buf, []Record{
		{ID: 1, Timestamp: "2026-01-01T00:00:00Z", Event: "lease.bound", Interface: "eth0", IP: "10.0.0.5", LeaseStart: 1767225600},
	})
	if err != nil {
		t.Fatal(err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want header plus 1", len(rows))
	}
	if len(rows[1]) != len(CSVHeaders) {
		t.Fatalf("row has %d columns, header %d", len(rows[1]), len(CSVHeaders))
	}
	if rows[1][5] != "10.0.0.5" || rows[1][10] != "1767225600" || rows[1][11] != "" {
		t.Errorf("row = %v", rows[1])
	}
}
