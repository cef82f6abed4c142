// Package agents — ladder.go загружает лестницу уровней из YAML-файла.
// Файл применяется при старте через SeedLevels: уровни сопоставляются по имени.
package agents

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// LadderFile — содержимое файла уровней.
type LadderFile struct {
	Levels []LevelConfig `yaml:"levels" validate:"required,min=1,dive"`
}

// LevelConfig — описание одного уровня в файле.
type LevelConfig struct {
	Name              string `yaml:"name" validate:"required,max=64"`
	SortOrder         int    `yaml:"sort_order" validate:"gte=1"`
	RequiredReferrals int    `yaml:"required_referrals" validate:"gte=0"`
	RequiredSales     int64  `yaml:"required_sales" validate:"gte=0"`
	CommissionRate    int    `yaml:"commission_rate" validate:"gte=0,lte=10000"`
	BonusEnabled      bool   `yaml:"bonus_enabled"`
	BonusRate         int    `yaml:"bonus_rate" validate:"gte=0,lte=10000"`
	Disabled          bool   `yaml:"disabled"`
}

// LoadLadder читает и проверяет файл уровней.
func LoadLadder(path string) ([]*Level, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла уровней: %w", err)
	}
	return ParseLadder(data)
}

// ParseLadder разбирает YAML лестницы уровней.
// Имена и порядковые номера уровней должны быть уникальны.
func ParseLadder(data []byte) ([]*Level, error) {
	var file LadderFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("ошибка разбора файла уровней: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(file); err != nil {
		return nil, fmt.Errorf("некорректный файл уровней: %w", err)
	}

	names := make(map[string]struct{}, len(file.Levels))
	orders := make(map[int]struct{}, len(file.Levels))
	levels := make([]*Level, 0, len(file.Levels))
	for _, lc := range file.Levels {
		if _, dup := names[lc.Name]; dup {
			return nil, fmt.Errorf("уровень %q описан дважды", lc.Name)
		}
		if _, dup := orders[lc.SortOrder]; dup {
			return nil, fmt.Errorf("sort_order %d повторяется", lc.SortOrder)
		}
		names[lc.Name] = struct{}{}
		orders[lc.SortOrder] = struct{}{}

		levels = append(levels, &Level{
			Name:              lc.Name,
			SortOrder:         lc.SortOrder,
			RequiredReferrals: lc.RequiredReferrals,
			RequiredSales:     lc.RequiredSales,
			CommissionRate:    lc.CommissionRate,
			BonusEnabled:      lc.BonusEnabled,
			BonusRate:         lc.BonusRate,
			Enabled:           !lc.Disabled,
		})
	}
	return levels, nil
}
