package data

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	xlog "github.com/chris010970/dynamicworld/pkg/log"
)

// ReferencePoint is a ground-truth label at a WGS84 location.
type ReferencePoint struct {
	Lon, Lat float64
	Label    int
}

// StreamReferencePoints streams lon,lat,label rows from a CSV file through out. A first row
// that does not parse as numbers is treated as a header. Malformed rows are skipped.
// out is closed when the file is exhausted or ctx is cancelled.
func StreamReferencePoints(ctx context.Context, path string, out chan<- ReferencePoint) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open reference points: %w", err)
	}

	reader := csv.NewReader(bufio.NewReader(file))
	reader.ReuseRecord = true
	reader.FieldsPerRecord = -1
	logger := xlog.FromContext(ctx, "reference").With().Str(xlog.FieldPath, path).Logger()

	go func() {
		defer file.Close()
		defer close(out)
		for row := 1; ; row++ {
			rec, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				logger.Warn().Err(err).Int(xlog.FieldRow, row).Msg("skipping unreadable record")
				continue
			}
			p, err := parsePoint(rec)
			if err != nil {
				if row > 1 {
					logger.Warn().Err(err).Int(xlog.FieldRow, row).Msg("skipping malformed record")
				}
				continue
			}
			select {
			case out <- p:
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

func parsePoint(rec []string) (ReferencePoint, error) {
	if len(rec) < 3 {
		return ReferencePoint{}, fmt.Errorf("want 3 columns, got %d", len(rec))
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(rec[0]), 64)
	if err != nil {
		return ReferencePoint{}, fmt.Errorf("lon: %w", err)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
	if err != nil {
		return ReferencePoint{}, fmt.Errorf("lat: %w", err)
	}
	label, err := strconv.Atoi(strings.TrimSpace(rec[2]))
	if err != nil {
		return ReferencePoint{}, fmt.Errorf("label: %w", err)
	}
	if label < 0 {
		return ReferencePoint{}, fmt.Errorf("negative label %d", label)
	}
	return ReferencePoint{Lon: lon, Lat: lat, Label: label}, nil
}

// ReadReferencePoints collects every point from path.
func ReadReferencePoints(ctx context.Context, path string) ([]ReferencePoint, error) {
	ch := make(chan ReferencePoint, 64)
	if err := StreamReferencePoints(ctx, path, ch); err != nil {
		return nil, err
	}
	var points []ReferencePoint
	for p := range ch {
		points = append(points, p)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return points, nil
}
