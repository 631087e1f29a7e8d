package config

import (
	"fmt"
	"myndis-engine/src/models"

	"github.com/BurntSushi/toml"
)

type thresholdFile struct {
	Threshold []models.ThresholdPair `toml:"threshold"`
}

// LoadThresholdFile reads an ordered threshold seed:
//
//	[[threshold]]
//	name = "budget_warning_75"
//	value = 0.75
func LoadThresholdFile(path string) ([]models.ThresholdPair, error) {
	var f thresholdFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("decoding threshold file %s: %w", path, err)
	}
	if len(f.Threshold) == 0 {
		return nil, fmt.Errorf("threshold file %s has no [[threshold]] entries", path)
	}
	return f.Threshold, nil
}
