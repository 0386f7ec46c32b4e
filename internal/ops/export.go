package ops

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/sadopc/wsclean/internal/cleaner"
)

// Report is the JSON document written by ExportReport:
//
//	{"progname":"wsclean","progver":"1.0","timestamp":1234567890,
//	 "elapsed_seconds":0.42,"result":{"root":"/ws","targets":[...],...}}
type Report struct {
	Progname       string          `json:"progname"`
	Progver        string          `json:"progver"`
	Timestamp      int64           `json:"timestamp"`
	ElapsedSeconds float64         `json:"elapsed_seconds"`
	Result         *cleaner.Result `json:"result"`
}

// ExportReport writes the run result as JSON to path ("-" for stdout).
// For file targets, writes to a temp file first and atomically renames on
// success, so a partial file is never left behind on error.
func ExportReport(res *cleaner.Result, path string, version string) (retErr error) {
	if res == nil {
		return errors.New("no result to export")
	}
	if path == "-" {
		return exportToWriter(res, os.Stdout, version)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".wsclean-report-*.tmp")
	if err != nil {
		return fmt.Errorf("cannot create report file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if retErr != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if err := exportToWriter(res, tmp, version); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		// On Windows, Rename cannot replace an existing destination.
		if runtime.GOOS != "windows" {
			return err
		}
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			return fmt.Errorf("cannot replace report file %s: %w", path, err)
		}
		if err := os.Rename(tmpPath, path); err != nil {
			return err
		}
	}
	return nil
}

func exportToWriter(res *cleaner.Result, out io.Writer, version string) error {
	if version == "" {
		version = "dev"
	}
	report := Report{
		Progname:       "wsclean",
		Progver:        version,
		Timestamp:      time.Now().Unix(),
		ElapsedSeconds: res.Elapsed.Seconds(),
		Result:         res,
	}

	bw := bufio.NewWriterSize(out, 64*1024)
	enc := json.NewEncoder(bw)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}
	return bw.Flush()
}
