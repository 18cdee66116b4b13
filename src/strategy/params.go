package strategy

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"autotrader/src/model"

	"gopkg.in/yaml.v3"
)

type MomentumParams struct {
	MomentumPeriod        int `json:"momentum_period" yaml:"momentum_period"`
	TrendConfirmationDays int `json:"trend_confirmation_days" yaml:"trend_confirmation_days"`
}

type DisparityParams struct {
	MAPeriod      int     `json:"ma_period" yaml:"ma_period"`
	BuyThreshold  float64 `json:"buy_threshold" yaml:"buy_threshold"`
	SellThreshold float64 `json:"sell_threshold" yaml:"sell_threshold"`
}

type BollingerParams struct {
	MAPeriod         int     `json:"ma_period" yaml:"ma_period"`
	StdMultiplier    float64 `json:"std_multiplier" yaml:"std_multiplier"`
	ConfirmationDays int     `json:"confirmation_days" yaml:"confirmation_days"`
}

type RSIParams struct {
	RSIPeriod           int     `json:"rsi_period" yaml:"rsi_period"`
	OversoldThreshold   float64 `json:"oversold_threshold" yaml:"oversold_threshold"`
	OverboughtThreshold float64 `json:"overbought_threshold" yaml:"overbought_threshold"`
	VolumePeriod        int     `json:"volume_period" yaml:"volume_period"`
	VolumeThreshold     float64 `json:"volume_threshold" yaml:"volume_threshold"`
	UseVolumeFilter     bool    `json:"use_volume_filter" yaml:"use_volume_filter"`
}

type IchimokuParams struct {
	ConversionPeriod int `json:"conversion_period" yaml:"conversion_period"`
	BasePeriod       int `json:"base_period" yaml:"base_period"`
	SpanBPeriod      int `json:"span_b_period" yaml:"span_b_period"`
	Displacement     int `json:"displacement" yaml:"displacement"`
}

type ChaikinParams struct {
	ShortPeriod   int     `json:"short_period" yaml:"short_period"`
	LongPeriod    int     `json:"long_period" yaml:"long_period"`
	BuyThreshold  float64 `json:"buy_threshold" yaml:"buy_threshold"`
	SellThreshold float64 `json:"sell_threshold" yaml:"sell_threshold"`
}

// DefaultParameters returns the built-in parameters for a strategy type.
func DefaultParameters(strategyType string) (interface{}, error) {
	switch strings.ToUpper(strategyType) {
	case model.StrategyMomentum:
		return &MomentumParams{MomentumPeriod: 24, TrendConfirmationDays: 3}, nil
	case model.StrategyDisparity:
		return &DisparityParams{MAPeriod: 20, BuyThreshold: 95, SellThreshold: 105}, nil
	case model.StrategyBollinger:
		return &BollingerParams{MAPeriod: 20, StdMultiplier: 2.0, ConfirmationDays: 3}, nil
	case model.StrategyRSI:
		return &RSIParams{
			RSIPeriod:           14,
			OversoldThreshold:   30,
			OverboughtThreshold: 70,
			VolumePeriod:        20,
			VolumeThreshold:     1.5,
			UseVolumeFilter:     true,
		}, nil
	case model.StrategyIchimoku:
		return &IchimokuParams{ConversionPeriod: 9, BasePeriod: 26, SpanBPeriod: 52, Displacement: 26}, nil
	case model.StrategyChaikin:
		return &ChaikinParams{ShortPeriod: 3, LongPeriod: 10}, nil
	}
	return nil, fmt.Errorf("unknown strategy type %q", strategyType)
}

// decodeParameters overlays raw JSON onto the defaults of strategyType.
// Keys missing from raw keep their default.
func decodeParameters(strategyType string, raw []byte) (interface{}, error) {
	params, err := DefaultParameters(strategyType)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return params, nil
	}
	if err := json.Unmarshal(raw, params); err != nil {
		return nil, fmt.Errorf("decode %s parameters: %w", strategyType, err)
	}
	return params, nil
}

// Preset is a strategy row to be seeded.
type Preset struct {
	Name        string                 `yaml:"name"`
	Type        string                 `yaml:"type"`
	Description string                 `yaml:"description"`
	Enabled     bool                   `yaml:"enabled"`
	Parameters  map[string]interface{} `yaml:"parameters"`
}

// ParametersJSON merges the preset parameters over the type defaults and
// encodes the result.
func (p Preset) ParametersJSON() ([]byte, error) {
	defaults, err := DefaultParameters(p.Type)
	if err != nil {
		return nil, err
	}
	if len(p.Parameters) > 0 {
		overlay, err := json.Marshal(p.Parameters)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(overlay, defaults); err != nil {
			return nil, err
		}
	}
	return json.Marshal(defaults)
}

// DefaultPresets returns one disabled preset per built-in strategy type.
func DefaultPresets() []Preset {
	return []Preset{
		{Name: "Momentum", Type: model.StrategyMomentum, Description: "Momentum zero-line crossover"},
		{Name: "Disparity", Type: model.StrategyDisparity, Description: "Price to moving-average disparity"},
		{Name: "Bollinger", Type: model.StrategyBollinger, Description: "Bollinger band touch"},
		{Name: "RSI", Type: model.StrategyRSI, Description: "RSI leaving oversold/overbought with volume filter"},
		{Name: "Ichimoku", Type: model.StrategyIchimoku, Description: "Conversion/base cross outside the cloud"},
		{Name: "Chaikin", Type: model.StrategyChaikin, Description: "Chaikin oscillator threshold cross"},
	}
}

type presetFile struct {
	Strategies []Preset `yaml:"strategies"`
}

// LoadPresets reads strategy presets from a YAML file of the form
//
//	strategies:
//	  - name: RSI fast
//	    type: RSI
//	    enabled: true
//	    parameters:
//	      rsi_period: 7
func LoadPresets(path string) ([]Preset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read presets %s: %w", path, err)
	}
	return ParsePresets(raw)
}

// ParsePresets validates and returns the presets in raw YAML.
func ParsePresets(raw []byte) ([]Preset, error) {
	var file presetFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse presets: %w", err)
	}
	for i, p := range file.Strategies {
		if strings.TrimSpace(p.Name) == "" {
			return nil, fmt.Errorf("preset %d has no name", i)
		}
		file.Strategies[i].Type = strings.ToUpper(p.Type)
		if _, err := DefaultParameters(p.Type); err != nil {
			return nil, fmt.Errorf("preset %q: %w", p.Name, err)
		}
	}
	return file.Strategies, nil
}
