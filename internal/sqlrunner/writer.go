package sqlrunner

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
)

const compressionLevel = 6

// compressed reports whether path carries a double suffix ending in .gz,
// e.g. result.csv.gz.
func compressed(path string) bool {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	if ext != ".gz" {
		return false
	}
	return filepath.Ext(base[:len(base)-len(ext)]) != ""
}

func touch(path string) error {
	if err := mkdirParent(path); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return &SinkIOError{Op: "create", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &SinkIOError{Op: "close", Path: path, Err: err}
	}
	return nil
}

func mkdirParent(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &SinkIOError{Op: "mkdir", Path: dir, Err: err}
	}
	return nil
}

// csvSink writes records to a file or to stdout. Files end lines with \n,
// stdout with \r\n.
type csvSink struct {
	path   string
	buf    *bufio.Writer
	csv    *csv.Writer
	crlf   bool
	closes []func() error
}

func openSink(sink Sink) (*csvSink, error) {
	if sink.Path == "" {
		out := sink.Stdout
		if out == nil {
			out = os.Stdout
		}
		return newCSVSink("-", out, true), nil
	}

	if err := mkdirParent(sink.Path); err != nil {
		return nil, err
	}
	f, err := os.Create(sink.Path)
	if err != nil {
		return nil, &SinkIOError{Op: "create", Path: sink.Path, Err: err}
	}

	var out io.Writer = f
	var closes []func() error
	if compressed(sink.Path) {
		zw, err := gzip.NewWriterLevel(f, compressionLevel)
		if err != nil {
			_ = f.Close()
			return nil, &SinkIOError{Op: "compress", Path: sink.Path, Err: err}
		}
		out = zw
		closes = append(closes, zw.Close)
	}
	closes = append(closes, f.Close)

	s := newCSVSink(sink.Path, out, false)
	s.closes = closes
	return s, nil
}

func newCSVSink(path string, out io.Writer, crlf bool) *csvSink {
	buf := bufio.NewWriter(out)
	w := csv.NewWriter(buf)
	w.UseCRLF = crlf
	return &csvSink{path: path, buf: buf, csv: w, crlf: crlf}
}

func (s *csvSink) Write(record []string) error {
	// encoding/csv renders a lone empty field as a blank line, which reads
	// back as no record at all.
	if len(record) == 1 && record[0] == "" {
		s.csv.Flush()
		eol := "\n"
		if s.crlf {
			eol = "\r\n"
		}
		if _, err := s.buf.WriteString(`""` + eol); err != nil {
			return &SinkIOError{Op: "write", Path: s.path, Err: err}
		}
		return nil
	}
	if err := s.csv.Write(record); err != nil {
		return &SinkIOError{Op: "write", Path: s.path, Err: err}
	}
	return nil
}

// Close flushes whatever was written so far, including after a failed
// stream, and releases the file.
func (s *csvSink) Close() error {
	s.csv.Flush()
	errs := []error{s.csv.Error(), s.buf.Flush()}
	for _, c := range s.closes {
		errs = append(errs, c())
	}
	if err := errors.Join(errs...); err != nil {
		return &SinkIOError{Op: "close", Path: s.path, Err: err}
	}
	return nil
}

func record(row Row) []string {
	out := make([]string, len(row.Values))
	for i, v := range row.Values {
		out[i] = renderValue(v)
	}
	return out
}

// writeRows pulls every row from cur into sink. The first row is fetched
// before the sink is opened; when there is none, a file sink is created
// empty and stdout gets nothing.
func writeRows(ctx context.Context, cur Cursor, sink Sink, onFirst func()) (int, error) {
	first, err := cur.Next(ctx)
	if errors.Is(err, io.EOF) {
		if sink.Path == "" {
			return 0, nil
		}
		return 0, touch(sink.Path)
	}
	if err != nil {
		if sink.Path != "" {
			if terr := touch(sink.Path); terr != nil {
				return 0, errors.Join(err, terr)
			}
		}
		return 0, err
	}
	if onFirst != nil {
		onFirst()
	}

	out, err := openSink(sink)
	if err != nil {
		return 0, err
	}
	n, err := copyRows(ctx, cur, out, first)
	if cerr := out.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return n, err
}

func copyRows(ctx context.Context, cur Cursor, out *csvSink, first Row) (int, error) {
	if err := out.Write(first.Columns); err != nil {
		return 0, err
	}
	n := 0
	for row := first; ; {
		if err := out.Write(record(row)); err != nil {
			return n, err
		}
		n++

		next, err := cur.Next(ctx)
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		row = next
	}
}

// copyFile copies src byte for byte to sink. It reports skipped when src
// and sink are the same file.
func copyFile(src string, sink Sink) (skipped bool, n int64, err error) {
	in, err := os.Open(src)
	if err != nil {
		return false, 0, &SinkIOError{Op: "open", Path: src, Err: err}
	}
	defer in.Close()

	if sink.Path == "" {
		out := sink.Stdout
		if out == nil {
			out = os.Stdout
		}
		n, err := io.Copy(out, in)
		if err != nil {
			return false, n, &SinkIOError{Op: "copy", Path: src, Err: err}
		}
		return false, n, nil
	}

	if sameFile(in, sink.Path) {
		return true, 0, nil
	}
	if err := mkdirParent(sink.Path); err != nil {
		return false, 0, err
	}
	out, err := os.Create(sink.Path)
	if err != nil {
		return false, 0, &SinkIOError{Op: "create", Path: sink.Path, Err: err}
	}
	n, err = io.Copy(out, in)
	if cerr := out.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return false, n, &SinkIOError{Op: "copy", Path: sink.Path, Err: err}
	}
	return false, n, nil
}

func sameFile(in *os.File, path string) bool {
	a, err := in.Stat()
	if err != nil {
		return false
	}
	b, err := os.Stat(path)
	if err != nil {
		return false
	}
	return os.SameFile(a, b)
}
