// Package trace records worker dispatch events to parquet files so a run
// can be inspected after the fact.
package trace

import (
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"

	"github.com/brensch/threadai/aiplayer"
)

// Row is one handled command.
//
// Times are unix nanoseconds; durations are nanoseconds. Error is empty when
// the handler succeeded.
type Row struct {
	RunID          string `parquet:"run_id,dict"`
	Session        string `parquet:"session,dict"`
	Player         int32  `parquet:"player"`
	Seq            int64  `parquet:"seq"`
	Kind           string `parquet:"kind,dict"`
	SentAtNanos    int64  `parquet:"sent_at_ns"`
	StartedAtNanos int64  `parquet:"started_at_ns"`
	QueueWaitNanos int64  `parquet:"queue_wait_ns"`
	DurationNanos  int64  `parquet:"duration_ns"`
	Error          string `parquet:"error"`
}

func RowFromEvent(runID string, e aiplayer.DispatchEvent) Row {
	r := Row{
		RunID:          runID,
		Session:        e.Session.String(),
		Player:         int32(e.Player),
		Seq:            int64(e.Seq),
		Kind:           e.Kind.String(),
		SentAtNanos:    e.SentAt.UnixNano(),
		StartedAtNanos: e.StartedAt.UnixNano(),
		QueueWaitNanos: int64(e.QueueWait()),
		DurationNanos:  int64(e.Duration),
	}
	if e.Err != nil {
		r.Error = e.Err.Error()
	}
	return r
}

// ReadFile loads every row of a trace file.
func ReadFile(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("open parquet %s: %w", path, err)
	}

	reader := parquet.NewGenericReader[Row](pf)
	defer reader.Close()

	rows := make([]Row, reader.NumRows())
	n, err := reader.Read(rows)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return rows[:n], nil
}
