// Package mssqlstats turns the informational messages SQL Server emits under
// SET STATISTICS TIME ON and SET STATISTICS IO ON into cumulative timing and
// per-table I/O counters.
package mssqlstats

import (
	"bytes"
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

type Timings struct {
	ParseCPUMs     int64   `json:"parse_cpu_ms"`
	ParseElapsedMs int64   `json:"parse_elapsed_ms"`
	ExecCPUMs      int64   `json:"exec_cpu_ms"`
	ExecElapsedMs  int64   `json:"exec_elapsed_ms"`
	ExecCPURatio   float64 `json:"exec_cpu_ratio"`
}

type TableStats struct {
	Scans        int64 `json:"scans"`
	Logical      int64 `json:"logical"`
	Physical     int64 `json:"physical"`
	ReadAhead    int64 `json:"read_ahead"`
	LobLogical   int64 `json:"lob_logical"`
	LobPhysical  int64 `json:"lob_physical"`
	LobReadAhead int64 `json:"lob_read_ahead"`
}

func (s *TableStats) add(o TableStats) {
	s.Scans += o.Scans
	s.Logical += o.Logical
	s.Physical += o.Physical
	s.ReadAhead += o.ReadAhead
	s.LobLogical += o.LobLogical
	s.LobPhysical += o.LobPhysical
	s.LobReadAhead += o.LobReadAhead
}

// TableIO maps normalized table names to their counters, remembering the
// order in which tables were first seen.
type TableIO struct {
	names []string
	stats map[string]*TableStats
}

func NewTableIO() *TableIO {
	return &TableIO{stats: make(map[string]*TableStats)}
}

func (t *TableIO) Add(table string, s TableStats) {
	cur, ok := t.stats[table]
	if !ok {
		cur = &TableStats{}
		t.stats[table] = cur
		t.names = append(t.names, table)
	}
	cur.add(s)
}

// Tables returns table names in first-seen order.
func (t *TableIO) Tables() []string {
	return append([]string(nil), t.names...)
}

func (t *TableIO) Get(table string) (TableStats, bool) {
	s, ok := t.stats[table]
	if !ok {
		return TableStats{}, false
	}
	return *s, true
}

func (t *TableIO) Len() int { return len(t.names) }

// MarshalJSON writes an object keyed by table name in first-seen order.
func (t *TableIO) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range t.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(t.stats[name])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// statisticsPattern matches either a timing message or a table I/O message.
// Azure SQL and SQL Server 2019+ interleave page server counters into the I/O
// message; they are tolerated and ignored.
var statisticsPattern = regexp.MustCompile(`(?s)` +
	`SQL\sServer\s(?P<timing_type>parse\sand\scompile\stime|Execution\sTime)` +
	`.*?CPU\stime\s=\s(?P<cpu_ms>\d+)\sms` +
	`.*?elapsed\stime\s=\s(?P<elapsed_ms>\d+)\sms` +
	`|` +
	`Table\s'(?P<table>[^']+)'.\s+` +
	`Scan\scount\s(?P<scans>\d+),\s+` +
	`logical\sreads\s(?P<logical>\d+),\s+` +
	`physical\sreads\s(?P<physical>\d+),\s+` +
	`(?:page\sserver\sreads\s\d+,\s+)?` +
	`read-ahead\sreads\s(?P<read_ahead>\d+),\s+` +
	`(?:page\sserver\sread-ahead\sreads\s\d+,\s+)?` +
	`lob\slogical\sreads\s(?P<lob_logical>\d+),\s+` +
	`lob\sphysical\sreads\s(?P<lob_physical>\d+),\s+` +
	`(?:lob\spage\sserver\sreads\s\d+,\s+)?` +
	`lob\sread-ahead\sreads\s(?P<lob_read_ahead>\d+)`)

var (
	groupTimingType   = statisticsPattern.SubexpIndex("timing_type")
	groupCPUMs        = statisticsPattern.SubexpIndex("cpu_ms")
	groupElapsedMs    = statisticsPattern.SubexpIndex("elapsed_ms")
	groupTable        = statisticsPattern.SubexpIndex("table")
	groupScans        = statisticsPattern.SubexpIndex("scans")
	groupLogical      = statisticsPattern.SubexpIndex("logical")
	groupPhysical     = statisticsPattern.SubexpIndex("physical")
	groupReadAhead    = statisticsPattern.SubexpIndex("read_ahead")
	groupLobLogical   = statisticsPattern.SubexpIndex("lob_logical")
	groupLobPhysical  = statisticsPattern.SubexpIndex("lob_physical")
	groupLobReadAhead = statisticsPattern.SubexpIndex("lob_read_ahead")
)

// tempTableSuffix starts the padding SQL Server appends to temp table names.
const tempTableSuffix = "_____"

// Parse accumulates timing and table I/O counters across messages. Messages
// that match neither shape are skipped, and an empty list yields zero stats.
func Parse(messages [][]byte) (Timings, *TableIO) {
	var timings Timings
	tableIO := NewTableIO()

	for _, message := range messages {
		m := statisticsPattern.FindSubmatch(message)
		if m == nil {
			continue
		}
		switch {
		case m[groupTimingType] != nil:
			cpu, elapsed := atoi(m[groupCPUMs]), atoi(m[groupElapsedMs])
			switch string(m[groupTimingType]) {
			case "parse and compile time":
				timings.ParseCPUMs += cpu
				timings.ParseElapsedMs += elapsed
			case "Execution Time":
				timings.ExecCPUMs += cpu
				timings.ExecElapsedMs += elapsed
			}
		case m[groupTable] != nil:
			tableIO.Add(NormalizeTableName(strings.ToValidUTF8(string(m[groupTable]), "")), TableStats{
				Scans:        atoi(m[groupScans]),
				Logical:      atoi(m[groupLogical]),
				Physical:     atoi(m[groupPhysical]),
				ReadAhead:    atoi(m[groupReadAhead]),
				LobLogical:   atoi(m[groupLobLogical]),
				LobPhysical:  atoi(m[groupLobPhysical]),
				LobReadAhead: atoi(m[groupLobReadAhead]),
			})
		}
	}

	if timings.ExecElapsedMs != 0 {
		ratio := float64(timings.ExecCPUMs) / float64(timings.ExecElapsedMs)
		timings.ExecCPURatio = math.Round(ratio*100) / 100
	}
	return timings, tableIO
}

// NormalizeTableName restores the name a user gave a temp table. SQL Server
// makes "#tmp" globally unique by padding it with underscores and appending
// an instance suffix.
func NormalizeTableName(table string) string {
	if !strings.HasPrefix(table, "#") {
		return table
	}
	if idx := strings.Index(table, tempTableSuffix); idx >= 0 {
		return table[:idx]
	}
	return table
}

func atoi(b []byte) int64 {
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		// only reachable on overflow of a \d+ group
		return math.MaxInt64
	}
	return n
}
