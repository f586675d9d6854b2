package jobs

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wonny/signal-backtest/internal/backtest"
	"github.com/wonny/signal-backtest/internal/scheduler"
)

// DefaultPresetSchedule runs presets every weekday evening
const DefaultPresetSchedule = "0 18 * * 1-5"

// Preset is a named back-test request kept in the presets file
type Preset struct {
	Name         string `yaml:"name"`
	StartDate    string `yaml:"start_date"`
	EndDate      string `yaml:"end_date"`
	Value1       string `yaml:"value_1"`
	Value2       string `yaml:"value_2"`
	Operator     string `yaml:"operator"`
	PurchaseType string `yaml:"purchase_type"`
}

// Request converts the preset to an engine request
func (p Preset) Request() backtest.Request {
	return backtest.Request{
		StartDate:          p.StartDate,
		EndDate:            p.EndDate,
		Indicator1:         p.Value1,
		Indicator2:         p.Value2,
		Operator:           p.Operator,
		PurchaseConvention: p.PurchaseType,
	}
}

// PresetFile is the YAML document read from PRESETS_FILE
//
//	schedule: "0 18 * * 1-5"
//	presets:
//	  - name: rising-close
//	    start_date: "2024-01-02"
//	    end_date: "2024-06-28"
//	    value_1: C1
//	    value_2: C2
//	    operator: ">"
type PresetFile struct {
	Schedule string   `yaml:"schedule"`
	Presets  []Preset `yaml:"presets"`
}

// LoadPresets reads and validates a presets file
func LoadPresets(path string) (*PresetFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read presets: %w", err)
	}
	return ParsePresets(data)
}

// ParsePresets decodes a presets document. Every preset must carry a
// unique name and pass request validation.
func ParsePresets(data []byte) (*PresetFile, error) {
	var file PresetFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse presets: %w", err)
	}

	if strings.TrimSpace(file.Schedule) == "" {
		file.Schedule = DefaultPresetSchedule
	}
	if err := scheduler.ValidateSchedule(file.Schedule); err != nil {
		return nil, err
	}
	if len(file.Presets) == 0 {
		return nil, errors.New("presets file defines no presets")
	}

	seen := make(map[string]bool, len(file.Presets))
	for i, p := range file.Presets {
		if p.Name == "" {
			return nil, fmt.Errorf("preset #%d has no name", i+1)
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("duplicate preset %q", p.Name)
		}
		seen[p.Name] = true

		if _, err := p.Request().Validate(); err != nil {
			return nil, fmt.Errorf("preset %q: %w", p.Name, err)
		}
	}

	return &file, nil
}
