package migrations

import (
	"fmt"

	"autotrader/src/model"
	"autotrader/src/strategy"

	logger "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func seedAutoTradeSettings(tx *gorm.DB) error {
	var count int64
	if err := tx.Model(&model.AutoTradeSettings{}).Count(&count).Error; err != nil {
		return fmt.Errorf("count settings: %w", err)
	}
	if count > 0 {
		return nil
	}

	settings := model.AutoTradeSettings{
		IsEnabled:       false,
		MaxInvestAmount: model.DefaultMaxInvestAmount,
		StopLossRate:    model.DefaultStopLossRate,
		TakeProfitRate:  model.DefaultTakeProfitRate,
	}
	return tx.Create(&settings).Error
}

// seedTradingStrategies inserts one disabled strategy per built-in type,
// with parameters from the presets file when one is given.
func seedTradingStrategies(presetsFile string) func(*gorm.DB) error {
	return func(tx *gorm.DB) error {
		presets := strategy.DefaultPresets()
		if presetsFile != "" {
			loaded, err := strategy.LoadPresets(presetsFile)
			if err != nil {
				return err
			}
			presets = loaded
		}

		for _, p := range presets {
			params, err := p.ParametersJSON()
			if err != nil {
				return fmt.Errorf("encode %s parameters: %w", p.Name, err)
			}

			var existing int64
			if err := tx.Model(&model.TradingStrategy{}).Where("name = ?", p.Name).Count(&existing).Error; err != nil {
				return err
			}
			if existing > 0 {
				continue
			}

			row := model.TradingStrategy{
				Name:         p.Name,
				StrategyType: p.Type,
				Description:  p.Description,
				Parameters:   datatypes.JSON(params),
				IsEnabled:    p.Enabled,
			}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("seed strategy %s: %w", p.Name, err)
			}
			logger.WithFields(map[string]interface{}{
				"strategy": p.Name,
				"type":     p.Type,
			}).Info("Seeded trading strategy")
		}
		return nil
	}
}
