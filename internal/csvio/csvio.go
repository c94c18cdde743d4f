// Package csvio is the CSV Reader (C2): it autodetects a file's encoding
// and delimiter, then streams its header and data rows without ever
// materializing the whole file in memory.
//
// Quoting/escaping beyond trim is deliberately not interpreted. Two
// independent passes over a file (ReadHeader, then Stream) are expected;
// callers that want a single pass should buffer the first few rows
// themselves while streaming.
package csvio

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/ignite/csv-migrator/internal/domain"
)

const (
	sniffBytes  = 4096
	sampleLines = 10
)

// multiCharCandidates are tried before any single-character delimiter.
var multiCharCandidates = []string{"||", ";;"}

// singleCharCandidates are tried in priority order for tie-breaking.
var singleCharCandidates = []string{";", ",", "\t", "|", ":", " "}

// RowFunc receives one well-formed data row; lineNo is 1-based with the
// header counted as line 1.
type RowFunc func(fields []string, lineNo int)

// ErrFunc receives one malformed line (column-count mismatch).
type ErrFunc func(msg string, lineNo int)

// Reader streams CSV files with autodetected encoding and delimiter. It
// holds no state between calls and is safe for concurrent use.
type Reader struct{}

// New creates a CSV reader.
func New() *Reader { return &Reader{} }

// ReadHeader returns the column names from a file's header row.
func (r *Reader) ReadHeader(path string) ([]string, error) {
	s, err := r.sniff(path)
	if err != nil {
		return nil, err
	}
	defer s.closer.Close()
	return s.header, nil
}

// Stream reads path end to end, calling onRow for every well-formed data
// row and onErr for every line whose column count doesn't match the
// header. Cancellation is polled before each line; a cancelled context
// aborts the scan and returns ctx.Err().
func (r *Reader) Stream(ctx context.Context, path string, onRow RowFunc, onErr ErrFunc) error {
	s, err := r.sniff(path)
	if err != nil {
		return err
	}
	defer s.closer.Close()

	headerCount := len(s.header)

	for _, nl := range s.buffered {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		emitLine(nl.text, s.delim, headerCount, nl.n, onRow, onErr)
	}

	lineNo := s.lastBufferedLine
	for s.scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		lineNo++
		text := s.scanner.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		emitLine(text, s.delim, headerCount, lineNo, onRow, onErr)
	}
	if err := s.scanner.Err(); err != nil {
		return domain.NewStructuralError(fmt.Errorf("read %s: %w", path, err))
	}
	return nil
}

type numberedLine struct {
	n    int
	text string
}

type sniffed struct {
	header           []string
	delim            string
	buffered         []numberedLine
	lastBufferedLine int
	scanner          *bufio.Scanner
	closer           io.Closer
}

// sniff opens path, detects its encoding, locates the header line, samples
// up to sampleLines data lines to detect the delimiter, and splits the
// header using the detected delimiter. The returned scanner is positioned
// immediately after the sampled lines so Stream can resume from there.
func (r *Reader) sniff(path string) (*sniffed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, domain.NewStructuralError(fmt.Errorf("open %s: %w", path, err))
	}

	peek := make([]byte, sniffBytes)
	n, _ := io.ReadFull(f, peek)
	peek = peek[:n]
	enc, bomLen := detectEncoding(peek)

	if _, err := f.Seek(int64(bomLen), io.SeekStart); err != nil {
		f.Close()
		return nil, domain.NewStructuralError(fmt.Errorf("seek %s: %w", path, err))
	}

	decoded, err := decodeReader(f, enc)
	if err != nil {
		f.Close()
		return nil, domain.NewStructuralError(err)
	}

	scanner := bufio.NewScanner(decoded)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	lineNo := 0
	var headerRaw string
	for scanner.Scan() {
		lineNo++
		text := scanner.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		headerRaw = text
		break
	}
	if headerRaw == "" {
		f.Close()
		if err := scanner.Err(); err != nil {
			return nil, domain.NewStructuralError(fmt.Errorf("read header of %s: %w", path, err))
		}
		return nil, domain.NewStructuralError(fmt.Errorf("%s: empty or missing header", path))
	}

	var samples []numberedLine
	lastLine := lineNo
	for len(samples) < sampleLines && scanner.Scan() {
		lineNo++
		text := scanner.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		samples = append(samples, numberedLine{n: lineNo, text: text})
		lastLine = lineNo
	}

	sniffSamples := samples
	if len(sniffSamples) == 0 {
		// Zero-row files (header only) have no data line to sniff a
		// delimiter from; fall back to the header line itself so a
		// 0-row CSV still migrates successfully.
		sniffSamples = []numberedLine{{n: 0, text: headerRaw}}
	}

	delim, err := detectDelimiter(sniffSamples)
	if err != nil && len(samples) > 0 {
		// No candidate splits every sampled data line into 2+ fields; fall
		// back to the header line so lines that don't match it are
		// reported one by one by Stream instead of failing the file.
		delim, err = detectDelimiter([]numberedLine{{n: 0, text: headerRaw}})
	}
	if err != nil {
		f.Close()
		return nil, domain.NewStructuralError(fmt.Errorf("%s: %w", path, err))
	}

	header := splitTrim(headerRaw, delim)
	if len(header) == 0 {
		f.Close()
		return nil, domain.NewStructuralError(fmt.Errorf("%s: empty header", path))
	}

	return &sniffed{
		header:           header,
		delim:            delim,
		buffered:         samples,
		lastBufferedLine: lastLine,
		scanner:          scanner,
		closer:           f,
	}, nil
}

func emitLine(line, delim string, headerCount, lineNo int, onRow RowFunc, onErr ErrFunc) {
	fields := splitTrim(line, delim)
	if len(fields) != headerCount {
		if onErr != nil {
			onErr(fmt.Sprintf("expected %d columns, got %d", headerCount, len(fields)), lineNo)
		}
		return
	}
	if onRow != nil {
		onRow(fields, lineNo)
	}
}

func splitTrim(line, delim string) []string {
	parts := strings.Split(line, delim)
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = strings.TrimSpace(p)
	}
	return out
}

// detectDelimiter tries multi-char candidates first, then
// single-char candidates scored by column-count consistency.
func detectDelimiter(samples []numberedLine) (string, error) {
	lines := make([]string, len(samples))
	for i, s := range samples {
		lines[i] = s.text
	}

	for _, cand := range multiCharCandidates {
		counts := make([]int, len(lines))
		ok := true
		for i, line := range lines {
			counts[i] = len(strings.Split(line, cand))
		}
		if counts[0] <= 1 {
			ok = false
		}
		for _, c := range counts {
			if c != counts[0] {
				ok = false
				break
			}
		}
		if ok {
			return cand, nil
		}
	}

	type scored struct {
		delim string
		score float64
	}
	var candidates []scored
	for _, cand := range singleCharCandidates {
		counts := make([]int, 0, len(lines))
		qualifies := true
		for _, line := range lines {
			n := len(splitTrim(line, cand))
			if n < 2 {
				qualifies = false
				break
			}
			counts = append(counts, n)
		}
		if !qualifies {
			continue
		}
		candidates = append(candidates, scored{delim: cand, score: consistencyScore(counts)})
	}
	if len(candidates) == 0 {
		return "", errors.New("no delimiter candidate yields a consistent column count")
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return priorityIndex(candidates[i].delim) < priorityIndex(candidates[j].delim)
	})
	return candidates[0].delim, nil
}

func priorityIndex(d string) int {
	for i, c := range singleCharCandidates {
		if c == d {
			return i
		}
	}
	return len(singleCharCandidates)
}

func consistencyScore(counts []int) float64 {
	mean := 0.0
	for _, c := range counts {
		mean += float64(c)
	}
	mean /= float64(len(counts))

	variance := 0.0
	for _, c := range counts {
		d := float64(c) - mean
		variance += d * d
	}
	variance /= float64(len(counts))

	return 1 / (1 + variance)
}

// detectEncoding applies a BOM-then-roundtrip-then-fallback rule.
func detectEncoding(buf []byte) (name string, bomLen int) {
	switch {
	case len(buf) >= 3 && buf[0] == 0xEF && buf[1] == 0xBB && buf[2] == 0xBF:
		return "utf-8", 3
	case len(buf) >= 2 && buf[0] == 0xFF && buf[1] == 0xFE:
		return "utf16le", 2
	case len(buf) >= 2 && buf[0] == 0xFE && buf[1] == 0xFF:
		return "utf16be", 2
	case roundTripsUTF8(buf):
		return "utf-8", 0
	default:
		return "windows-1252", 0
	}
}

func roundTripsUTF8(buf []byte) bool {
	if !utf8.Valid(buf) {
		return false
	}
	return !strings.ContainsRune(string(buf), utf8.RuneError)
}

func decodeReader(f *os.File, enc string) (io.Reader, error) {
	switch enc {
	case "utf-8":
		return f, nil
	case "utf16le":
		return transform.NewReader(f, unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()), nil
	case "utf16be":
		return transform.NewReader(f, unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder()), nil
	case "windows-1252":
		return transform.NewReader(f, charmap.Windows1252.NewDecoder()), nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", enc)
	}
}
