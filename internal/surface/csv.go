package surface

import (
	"fmt"
	"os"

	"github.com/gocarina/gocsv"
)

// CurvePoint is one Strike,IV row of the exported smile artifacts.
type CurvePoint struct {
	Strike float64 `csv:"Strike"`
	IV     float64 `csv:"IV"`
}

func writeCurve(path string, strikes, ivs []float64) error {
	rows := make([]CurvePoint, len(strikes))
	for i := range strikes {
		rows[i] = CurvePoint{Strike: strikes[i], IV: ivs[i]}
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer file.Close()
	if err := gocsv.MarshalFile(&rows, file); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// WriteCSV exports the raw training mid-IV points and the fine-grid blended
// curve as two Strike,IV CSV files for offline charting.
func (f *Fit) WriteCSV(rawPath, interpolatedPath string) error {
	if err := writeCurve(rawPath, f.Strikes, f.MidIVs); err != nil {
		return err
	}
	return writeCurve(interpolatedPath, f.GridStrikes, f.GridIVs)
}
