// Package freezer suspends every thread in a process, capturing enough
// scheduling state (suspend count, priority, priority boost, group
// affinity) to restore it exactly later — or to persist it to disk and
// restore it in a different debugger session entirely.
package freezer

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
)

// ThreadState is one thread's captured scheduling state, matching the CSV
// columns the original plugin wrote: tid, prevSuspendCount, priority,
// boostDisabled, group, mask, weSuspended.
type ThreadState struct {
	TID              uint32
	PrevSuspendCount uint32
	Priority         int32
	BoostDisabled    bool
	Group            uint16
	Mask             uint64
	WeSuspended      bool
}

var csvHeader = []string{"tid", "prevSuspendCount", "priority", "boostDisabled", "group", "mask", "weSuspended"}

// ExportCSV writes states to w in the column order the original plugin
// used, so a capture from one debugging session can be replayed by another
// tool reading the same format.
func ExportCSV(w io.Writer, states []ThreadState) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, st := range states {
		row := []string{
			strconv.FormatUint(uint64(st.TID), 10),
			strconv.FormatUint(uint64(st.PrevSuspendCount), 10),
			strconv.FormatInt(int64(st.Priority), 10),
			boolDigit(st.BoostDisabled),
			strconv.FormatUint(uint64(st.Group), 10),
			strconv.FormatUint(st.Mask, 10),
			boolDigit(st.WeSuspended),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ImportCSV reads a thread-state capture previously written by ExportCSV.
func ImportCSV(r io.Reader) ([]ThreadState, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(csvHeader)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("freezer: empty capture")
	}
	records = records[1:] // skip header

	states := make([]ThreadState, 0, len(records))
	for _, rec := range records {
		tid, err := strconv.ParseUint(rec[0], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("freezer: bad tid %q: %w", rec[0], err)
		}
		prevSuspend, _ := strconv.ParseUint(rec[1], 10, 32)
		priority, _ := strconv.ParseInt(rec[2], 10, 32)
		group, _ := strconv.ParseUint(rec[4], 10, 16)
		mask, _ := strconv.ParseUint(rec[5], 10, 64)

		states = append(states, ThreadState{
			TID:              uint32(tid),
			PrevSuspendCount: uint32(prevSuspend),
			Priority:         int32(priority),
			BoostDisabled:    rec[3] == "1",
			Group:            uint16(group),
			Mask:             mask,
			WeSuspended:      rec[6] == "1",
		})
	}
	return states, nil
}

// ExportFile is a convenience wrapper around ExportCSV for a path on disk.
func ExportFile(path string, states []ThreadState) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return ExportCSV(f, states)
}

// ImportFile is a convenience wrapper around ImportCSV for a path on disk.
func ImportFile(path string) ([]ThreadState, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ImportCSV(f)
}

func boolDigit(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
