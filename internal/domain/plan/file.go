package plan

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/slymnaltan/frame-app/retention/internal/domain/model"
)

// tierFile: ступень в YAML-файле тарифов.
type tierFile struct {
	Days  int    `yaml:"days"`
	Price string `yaml:"price"`
	Label string `yaml:"label"`
}

// catalogFile: формат YAML-файла тарифов (FA_PLANS_FILE):
//
//	rental:
//	  free:  {days: 1, price: "0", label: "1 Gün (Ücretsiz)"}
//	  week:  {days: 7, price: "49.99", label: "1 Hafta"}
//	storage:
//	  free:  {days: 3, price: "0", label: "3 Gün (Ücretsiz)"}
type catalogFile struct {
	Rental  map[string]tierFile `yaml:"rental"`
	Storage map[string]tierFile `yaml:"storage"`
}

// LoadFile читает каталог из YAML-файла. Вызывается один раз при старте.
func LoadFile(path string, logger *slog.Logger) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла тарифов %s: %w", path, err)
	}
	c, err := Parse(data, logger)
	if err != nil {
		return nil, fmt.Errorf("файл тарифов %s: %w", path, err)
	}

	logger.Info("Каталог тарифов загружен из файла",
		slog.String("path", path),
		slog.Int("rental_tiers", len(c.rental)),
		slog.Int("storage_tiers", len(c.storage)),
	)
	return c, nil
}

// Parse разбирает YAML-описание каталога. Неизвестные поля запрещены.
func Parse(data []byte, logger *slog.Logger) (*Catalog, error) {
	var f catalogFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("ошибка разбора YAML: %w", err)
	}

	rental, err := toTiers("rental", f.Rental)
	if err != nil {
		return nil, err
	}
	storage, err := toTiers("storage", f.Storage)
	if err != nil {
		return nil, err
	}
	return newCatalog(rental, storage, logger)
}

func toTiers(kind string, m map[string]tierFile) ([]model.Tier, error) {
	tiers := make([]model.Tier, 0, len(m))
	for id, t := range m {
		price, err := model.ParseMoney(t.Price)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", kind, id, err)
		}
		label := t.Label
		if label == "" {
			label = id
		}
		tiers = append(tiers, model.Tier{ID: id, Days: t.Days, Price: price, Label: label})
	}
	return tiers, nil
}
