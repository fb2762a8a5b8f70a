package statetable

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/c360/mtscore/errors"
)

// WriteCSV writes the valid history, oldest first, as CSV with columns
// ticks, time and one column per requested element (all elements when none
// are named).
func (t *Table) WriteCSV(w io.Writer, elements ...string) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	cols := make([]element, 0, len(t.elements))
	if len(elements) == 0 {
		cols = append(cols, t.elements...)
	} else {
		for _, name := range elements {
			e, ok := t.byName[name]
			if !ok {
				return errors.WrapInvalid(
					fmt.Errorf("%w: element %s", errors.ErrNotFound, name),
					"StateTable", "WriteCSV", "column lookup")
			}
			cols = append(cols, e)
		}
	}

	cw := csv.NewWriter(w)
	header := []string{"ticks", "time"}
	for _, e := range cols {
		header = append(header, e.elementName())
	}
	if err := cw.Write(header); err != nil {
		return errors.Wrap(err, "StateTable", "WriteCSV", "header")
	}

	count := t.history
	if t.ticks < uint64(count) {
		count = int(t.ticks)
	}
	for n := count - 1; n >= 0; n-- {
		idx, ok := t.delayedLocked(n)
		if !ok {
			continue
		}
		row := []string{
			strconv.FormatUint(idx.Ticks, 10),
			t.stamps[idx.Slot].UTC().Format(time.RFC3339Nano),
		}
		for _, e := range cols {
			row = append(row, e.format(idx.Slot))
		}
		if err := cw.Write(row); err != nil {
			return errors.Wrap(err, "StateTable", "WriteCSV", "row")
		}
	}

	cw.Flush()
	return errors.Wrap(cw.Error(), "StateTable", "WriteCSV", "flush")
}
