package mssqlstats

import (
	"strconv"
	"strings"
)

var tableIOColumns = []string{
	"lob_logical",
	"lob_physical",
	"lob_read_ahead",
	"logical",
	"physical",
	"read_ahead",
	"scans",
	"table",
}

func (s TableStats) cells() []string {
	return []string{
		strconv.FormatInt(s.LobLogical, 10),
		strconv.FormatInt(s.LobPhysical, 10),
		strconv.FormatInt(s.LobReadAhead, 10),
		strconv.FormatInt(s.Logical, 10),
		strconv.FormatInt(s.Physical, 10),
		strconv.FormatInt(s.ReadAhead, 10),
		strconv.FormatInt(s.Scans, 10),
	}
}

// FormatTableIO renders one line per table, columns left-aligned to the
// widest value (header included) and separated by a single space. The
// trailing table column is never padded and there is no final newline.
func FormatTableIO(t *TableIO) string {
	rows := [][]string{tableIOColumns}
	for _, name := range t.names {
		rows = append(rows, append(t.stats[name].cells(), name))
	}

	last := len(tableIOColumns) - 1
	widths := make([]int, last)
	for _, row := range rows {
		for i := 0; i < last; i++ {
			widths[i] = max(widths[i], len(row[i]))
		}
	}

	lines := make([]string, 0, len(rows))
	var b strings.Builder
	for _, row := range rows {
		b.Reset()
		for i := 0; i < last; i++ {
			b.WriteString(row[i])
			b.WriteString(strings.Repeat(" ", widths[i]-len(row[i])+1))
		}
		b.WriteString(row[last])
		lines = append(lines, b.String())
	}
	return strings.Join(lines, "\n")
}
