package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

const maxLineBytes = 1024 * 1024

// Matcher selects the lines to keep. A nil Matcher keeps every line.
type Matcher func(line string) bool

// MatchJob keeps lines logged for jobID by either handler. Console lines carry
// the id in their "[Image · Job 42]" subject; JSON lines carry a job_id field.
func MatchJob(jobID string) Matcher {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil
	}
	subject := "Job " + jobID
	field := `"job_id":"` + jobID + `"`
	return func(line string) bool {
		if strings.Contains(line, field) {
			return true
		}
		idx := strings.Index(line, subject)
		if idx < 0 {
			return false
		}
		rest := line[idx+len(subject):]
		return rest == "" || rest[0] == ']' || rest[0] == ' '
	}
}

// Page is a batch of lines plus the offset to resume reading from.
type Page struct {
	Lines  []string
	Offset int64
}

// Last returns up to limit trailing lines that match. A missing file is an
// empty page.
func Last(path string, limit int, match Matcher) (Page, error) {
	file, err := openLog(path)
	if err != nil || file == nil {
		return Page{}, err
	}
	defer file.Close()

	if limit <= 0 {
		offset, err := file.Seek(0, io.SeekEnd)
		if err != nil {
			return Page{}, fmt.Errorf("seek log file: %w", err)
		}
		return Page{Offset: offset}, nil
	}

	ring := make([]string, limit)
	count, next := 0, 0
	scanner := newScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if match != nil && !match(line) {
			continue
		}
		ring[next] = line
		next = (next + 1) % limit
		if count < limit {
			count++
		}
	}
	if err := scanner.Err(); err != nil {
		return Page{}, fmt.Errorf("read log file: %w", err)
	}
	offset, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		return Page{}, fmt.Errorf("seek log file: %w", err)
	}

	lines := make([]string, count)
	if count == limit {
		for i := range count {
			lines[i] = ring[(next+i)%limit]
		}
	} else {
		copy(lines, ring[:count])
	}
	return Page{Lines: lines, Offset: offset}, nil
}

// ReadFrom returns matching lines written after offset. An offset past the end
// of the file (after rotation or truncation) restarts from the beginning.
func ReadFrom(path string, offset int64, match Matcher) (Page, error) {
	file, err := openLog(path)
	if err != nil || file == nil {
		return Page{}, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return Page{}, fmt.Errorf("stat log file: %w", err)
	}
	if offset < 0 || offset > info.Size() {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return Page{}, fmt.Errorf("seek log file: %w", err)
	}

	var lines []string
	scanner := newScanner(file)
	for scanner.Scan() {
		if line := scanner.Text(); match == nil || match(line) {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return Page{}, fmt.Errorf("read log file: %w", err)
	}
	next, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		return Page{}, fmt.Errorf("determine log offset: %w", err)
	}
	return Page{Lines: lines, Offset: next}, nil
}

// Follow emits matching lines appended after offset until ctx is done,
// checking the file every interval.
func Follow(ctx context.Context, path string, offset int64, interval time.Duration, match Matcher, emit func(string)) error {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		page, err := ReadFrom(path, offset, match)
		if err != nil {
			return err
		}
		for _, line := range page.Lines {
			emit(line)
		}
		offset = page.Offset

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func openLog(path string) (*os.File, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		file.Close()
		return nil, fmt.Errorf("log path %q is a directory", path)
	}
	return file, nil
}

func newScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return scanner
}
