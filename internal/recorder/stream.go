package recorder

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// Supported stream formats.
const (
	FormatMsgpack = "msgpack"
	FormatJSONL   = "jsonl"
)

// FilePath composes the capture path for a session: the file name embeds
// the session ID and the format picks the extension.
func FilePath(dir, sessionID, format string) string {
	return filepath.Join(dir, "session-"+sessionID+"."+format)
}

// Writer is a sink for stream records.
type Writer interface {
	Write(Record) error
	Close() error
}

type fileWriter struct {
	f      *os.File
	buf    *bufio.Writer
	encode func(Record) error
}

// NewFileWriter opens path for writing and returns a Writer encoding
// records in the given format.
func NewFileWriter(format, path string) (Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open capture file: %w", err)
	}
	buf := bufio.NewWriter(f)

	w := &fileWriter{f: f, buf: buf}
	switch format {
	case FormatMsgpack:
		enc := msgpack.NewEncoder(buf)
		w.encode = enc.Encode
	case FormatJSONL:
		enc := json.NewEncoder(buf)
		w.encode = func(rec Record) error { return enc.Encode(rec) }
	default:
		f.Close()
		return nil, fmt.Errorf("unsupported recorder format %q", format)
	}
	return w, nil
}

func (w *fileWriter) Write(rec Record) error {
	return w.encode(rec)
}

func (w *fileWriter) Close() error {
	flushErr := w.buf.Flush()
	closeErr := w.f.Close()
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

// ReadFile loads a capture back into memory, detecting the format from
// the file extension.
func ReadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capture file: %w", err)
	}
	defer f.Close()

	switch strings.TrimPrefix(filepath.Ext(path), ".") {
	case FormatMsgpack:
		return readMsgpack(f)
	case FormatJSONL:
		return readJSONL(f)
	default:
		return nil, fmt.Errorf("unrecognised capture extension on %q", path)
	}
}

func readMsgpack(r io.Reader) ([]Record, error) {
	dec := msgpack.NewDecoder(r)
	var out []Record
	for {
		var rec Record
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decode msgpack record %d: %w", len(out), err)
		}
		out = append(out, rec)
	}
}

func readJSONL(r io.Reader) ([]Record, error) {
	scanner := bufio.NewScanner(r)
	var out []Record
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, fmt.Errorf("decode jsonl record %d: %w", len(out), err)
		}
		out = append(out, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read capture: %w", err)
	}
	return out, nil
}
