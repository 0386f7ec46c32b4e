package ops

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

// ReadReport loads a report previously written by ExportReport.
func ReadReport(path string) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open report %s: %w", path, err)
	}
	defer f.Close()

	var report Report
	if err := json.NewDecoder(bufio.NewReader(f)).Decode(&report); err != nil {
		return nil, fmt.Errorf("invalid report %s: %w", path, err)
	}
	if report.Progname != "wsclean" {
		return nil, fmt.Errorf("invalid report %s: unexpected producer %q", path, report.Progname)
	}
	if report.Result == nil {
		return nil, fmt.Errorf("invalid report %s: missing result", path)
	}
	return &report, nil
}
