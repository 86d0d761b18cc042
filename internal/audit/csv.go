package audit

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// CSVHeaders returns the CSV column headers for history records.
var CSVHeaders = []string{
	"id", "timestamp", "event", "interface", "state", "ip", "mac", "subnet",
	"router", "server_id", "lease_start", "lease_expiry", "old_ip", "reason",
}

// WriteCSV writes history records as CSV to the given writer.
func WriteCSV(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(CSVHeaders); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}
	for _, r := range records {
		row := []string{
			strconv.FormatUint(r.ID, 10),
			r.Timestamp,
			r.Event,
			r.Interface,
			r.State,
			r.IP,
			r.MAC,
			r.Subnet,
			r.Router,
			r.ServerID,
			formatInt64(r.LeaseStart),
			formatInt64(r.LeaseExpiry),
			r.OldIP,
			r.Reason,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing CSV row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatInt64(v int64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatInt(v, 10)
}
