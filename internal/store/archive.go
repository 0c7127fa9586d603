package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"

	"tradedesk/internal/domain"
)

// ExitRecord is the Parquet schema for archived exited trades.
type ExitRecord struct {
	Symbol     string  `parquet:"symbol"`
	EntryTime  int64   `parquet:"entry_time,timestamp(millisecond)"`
	EntryPrice float64 `parquet:"entry_price"`
	ExitTime   int64   `parquet:"exit_time,timestamp(millisecond)"`
	ExitPrice  float64 `parquet:"exit_price"`
	FinalPnL   float64 `parquet:"final_pnl"`
	HighestQty int64   `parquet:"highest_qty"`
}

// ArchiveStore mirrors exited trades into yearly Parquet files for offline
// analysis. Layout: <dataDir>/exits/<YYYY>.parquet. The archive is an
// additional sink next to the historical_trades table, not a replacement.
type ArchiveStore struct {
	DataDir string

	mu sync.Mutex // serializes read-merge-write per process
}

// NewArchiveStore creates a new ArchiveStore rooted at the given directory.
func NewArchiveStore(dataDir string) *ArchiveStore {
	return &ArchiveStore{DataDir: dataDir}
}

// Append adds one exited trade to the archive file for its exit year,
// merging with any existing records.
func (a *ArchiveStore) Append(rec domain.HistoricalTrade) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	path := a.exitPath(rec.ExitTime)

	existing, _ := readParquetFile[ExitRecord](path)
	merged := append(existing, ExitRecord{
		Symbol:     rec.Symbol,
		EntryTime:  rec.EntryTime.UnixMilli(),
		EntryPrice: rec.EntryPrice,
		ExitTime:   rec.ExitTime.UnixMilli(),
		ExitPrice:  rec.ExitPrice,
		FinalPnL:   rec.FinalPnL,
		HighestQty: int64(rec.HighestQty),
	})
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].ExitTime < merged[j].ExitTime
	})

	if err := writeParquetFile(path, merged); err != nil {
		return fmt.Errorf("archiving exit for %s: %w", rec.Symbol, err)
	}
	return nil
}

// ReadYear returns all archived exits for a year, ordered by exit time.
func (a *ArchiveStore) ReadYear(year int) ([]domain.HistoricalTrade, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	path := filepath.Join(a.DataDir, "exits", fmt.Sprintf("%d.parquet", year))
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	records, err := readParquetFile[ExitRecord](path)
	if err != nil {
		return nil, err
	}

	recs := make([]domain.HistoricalTrade, 0, len(records))
	for _, r := range records {
		recs = append(recs, domain.HistoricalTrade{
			Symbol:     r.Symbol,
			EntryTime:  time.UnixMilli(r.EntryTime).UTC(),
			EntryPrice: r.EntryPrice,
			ExitTime:   time.UnixMilli(r.ExitTime).UTC(),
			ExitPrice:  r.ExitPrice,
			FinalPnL:   r.FinalPnL,
			HighestQty: int(r.HighestQty),
		})
	}
	return recs, nil
}

// exitPath returns the archive file path for an exit timestamp.
// Layout: <dataDir>/exits/<YYYY>.parquet
func (a *ArchiveStore) exitPath(t time.Time) string {
	return filepath.Join(a.DataDir, "exits", fmt.Sprintf("%d.parquet", t.Year()))
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
