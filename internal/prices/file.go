package prices

import (
	"fmt"
	"os"

	json "github.com/goccy/go-json"

	"upbitquant/internal/model"
)

// LoadFile reads a price series from a JSON file containing an array of
// prices (numbers or numeric strings). The series is validated before being
// returned.
func LoadFile(path string) (model.PriceSeries, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading price file: %w", err)
	}

	var series model.PriceSeries
	if err := json.Unmarshal(data, &series); err != nil {
		return nil, fmt.Errorf("parsing price file %s: %w", path, err)
	}

	if err := series.Validate(); err != nil {
		return nil, fmt.Errorf("price file %s: %w", path, err)
	}

	return series, nil
}

// SaveFile writes a price series to a JSON file, so a collected live series
// can be reused for offline training runs.
func SaveFile(path string, series model.PriceSeries) error {
	if err := series.Validate(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(series, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding price series: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing price file: %w", err)
	}
	return nil
}
