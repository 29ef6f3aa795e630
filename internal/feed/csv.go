package feed

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"fastquant/internal/domain"
)

// CSVConfig controls CSV parsing.
type CSVConfig struct {
	// Delimiter separating fields. Defaults to ','.
	Delimiter string
	// HasHeader skips the first row when true.
	HasHeader bool
	// Strict makes malformed rows an error instead of a logged skip.
	Strict bool
}

// DefaultCSVConfig returns the conventional settings: comma-delimited with a
// header row, lenient parsing.
func DefaultCSVConfig() CSVConfig {
	return CSVConfig{Delimiter: ",", HasHeader: true}
}

// Compile-time interface check.
var _ BarSource = (*CSVSource)(nil)

// CSVSource streams bars from a CSV file with columns
// timestamp,open,high,low,close,volume[,symbol]. Timestamps accept ISO8601
// or Unix epoch seconds/milliseconds.
type CSVSource struct {
	Path string
	Cfg  CSVConfig
	log  *slog.Logger
}

// NewCSVSource creates a CSVSource for the file at path.
func NewCSVSource(path string, cfg CSVConfig) *CSVSource {
	if cfg.Delimiter == "" {
		cfg.Delimiter = ","
	}
	return &CSVSource{Path: path, Cfg: cfg, log: slog.Default().With("source", "csv")}
}

// Load reads the whole file into memory.
func (s *CSVSource) Load(ctx context.Context) ([]domain.Bar, error) {
	var bars []domain.Bar
	err := s.Stream(ctx, func(b domain.Bar) bool {
		bars = append(bars, b)
		return true
	})
	if err != nil {
		return nil, err
	}
	return bars, nil
}

// Stream implements BarSource. In lenient mode malformed rows are skipped
// with a warning; in strict mode the first malformed row aborts the stream.
func (s *CSVSource) Stream(ctx context.Context, fn func(domain.Bar) bool) error {
	f, err := os.Open(s.Path)
	if err != nil {
		return fmt.Errorf("opening csv file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	if s.Cfg.HasHeader {
		if !scanner.Scan() {
			return scanner.Err() // empty file
		}
		lineNo++
	}

	for scanner.Scan() {
		lineNo++
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		bar, err := s.parseLine(line)
		if err != nil {
			if s.Cfg.Strict {
				return fmt.Errorf("line %d: %w", lineNo, err)
			}
			s.log.Warn("skipping malformed row", "line", lineNo, "err", err)
			continue
		}

		if !fn(bar) {
			return nil
		}
	}
	return scanner.Err()
}

func (s *CSVSource) parseLine(line string) (domain.Bar, error) {
	fields := strings.Split(line, s.Cfg.Delimiter)
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	if len(fields) < 6 {
		return domain.Bar{}, fmt.Errorf("expected at least 6 fields, got %d", len(fields))
	}

	ts, ok := ParseTimestamp(fields[0])
	if !ok {
		return domain.Bar{}, fmt.Errorf("invalid timestamp %q", fields[0])
	}

	nums := make([]float64, 5)
	for i := 0; i < 5; i++ {
		v, err := strconv.ParseFloat(fields[i+1], 64)
		if err != nil {
			return domain.Bar{}, fmt.Errorf("field %d: %w", i+1, err)
		}
		nums[i] = v
	}

	bar := domain.Bar{
		Timestamp: ts,
		Open:      nums[0],
		High:      nums[1],
		Low:       nums[2],
		Close:     nums[3],
		Volume:    nums[4],
	}
	if len(fields) >= 7 {
		bar.Symbol = fields[6]
	}
	return bar, nil
}
