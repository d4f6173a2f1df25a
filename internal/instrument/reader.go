package instrument

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/couchcryptid/lidar-ingest/internal/domain"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

const maxLineBytes = 4 << 20

// readLines reads a whole text file, decoding it from enc when set. Without
// enc, lines that are not valid UTF-8 are decoded as Windows-1252. Line
// endings and a leading UTF-8 byte order mark are stripped.
func readLines(path string, enc encoding.Encoding) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return scanLines(f, enc, 0)
}

// peekLines reads at most n lines from the start of a file.
func peekLines(path string, enc encoding.Encoding, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return scanLines(f, enc, n)
}

func scanLines(r io.Reader, enc encoding.Encoding, limit int) ([]string, error) {
	if enc != nil {
		r = transform.NewReader(r, enc.NewDecoder())
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var lines []string
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if len(lines) == 0 {
			line = strings.TrimPrefix(line, "\ufeff")
		}
		if enc == nil && !utf8.ValidString(line) {
			if decoded, err := charmap.Windows1252.NewDecoder().String(line); err == nil {
				line = decoded
			}
		}
		lines = append(lines, line)
		if limit > 0 && len(lines) == limit {
			break
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read lines: %w", err)
	}
	return lines, nil
}

// splitRecords splits every non-blank line on sep.
func splitRecords(lines []string, sep string) []domain.RawRecord {
	records := make([]domain.RawRecord, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		records = append(records, splitFields(line, sep))
	}
	return records
}

func splitFields(line, sep string) domain.RawRecord {
	fields := strings.Split(line, sep)
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return fields
}
