package trace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"
)

const schemaVersion = "dispatch_row_v1"

var ErrNoDestination = errors.New("trace: file needs a dir and a name")

// WriteFile writes rows as the parquet file dir/name and returns its path.
// The file is assembled under dir/tmp and only renamed into dir when
// complete; on failure the partial file is removed. No rows, no file.
func WriteFile(dir, name string, rows []Row) (string, error) {
	if len(rows) == 0 {
		return "", nil
	}
	if dir == "" || name == "" {
		return "", ErrNoDestination
	}
	tmpDir := filepath.Join(dir, "tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return "", fmt.Errorf("create tmp dir: %w", err)
	}
	f, err := os.CreateTemp(tmpDir, name+".*")
	if err != nil {
		return "", fmt.Errorf("open tmp parquet: %w", err)
	}
	tmpPath := f.Name()

	if err := encode(f, rows); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("close parquet file: %w", err)
	}

	outPath := filepath.Join(dir, name)
	if err := os.Rename(tmpPath, outPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("rename parquet: %w", err)
	}
	return outPath, nil
}

func encode(f *os.File, rows []Row) error {
	w := parquet.NewGenericWriter[Row](
		f,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
		parquet.SkipPageBounds("error"),
	)
	w.SetKeyValueMetadata("schema", schemaVersion)
	if _, err := w.Write(rows); err != nil {
		_ = w.Close()
		return fmt.Errorf("write rows: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return f.Sync()
}
