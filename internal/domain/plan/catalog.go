// Пакет plan: каталог тарифных планов (PlanCatalog).
//
// План складывается из ступени аренды (окно загрузки) и ступени
// хранения (дополнительный срок после окончания аренды). Идентификатор
// плана: "{rentalTier}_{storageTier}", например "week_month".
// Неизвестные ступени заменяются бесплатной ступенью "free" с записью
// в лог и метрику, ошибкой это не считается.
//
// Каталог не изменяется после создания.
package plan

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/slymnaltan/frame-app/retention/internal/domain/model"
)

// FreeTier: идентификатор бесплатной ступени, обязательной в обоих наборах.
const FreeTier = "free"

// planSeparator разделяет ступени в идентификаторе плана.
const planSeparator = "_"

// planFallbackTotal: количество замен неизвестных ступеней на бесплатную.
var planFallbackTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "frame_plan_fallback_total",
	Help: "Количество замен неизвестной ступени плана на бесплатную",
}, []string{"kind"})

// Catalog: неизменяемая таблица ступеней аренды и хранения.
type Catalog struct {
	rental  map[string]model.Tier
	storage map[string]model.Tier
	logger  *slog.Logger
}

// Default возвращает каталог со встроенной таблицей тарифов.
func Default(logger *slog.Logger) *Catalog {
	c, err := newCatalog(defaultRental, defaultStorage, logger)
	if err != nil {
		// Встроенная таблица проверяется тестами
		panic(fmt.Sprintf("встроенный каталог планов некорректен: %v", err))
	}
	return c
}

// newCatalog проверяет таблицы и создаёт каталог с копиями ступеней.
func newCatalog(rental, storage []model.Tier, logger *slog.Logger) (*Catalog, error) {
	r, err := indexTiers("rental", rental)
	if err != nil {
		return nil, err
	}
	s, err := indexTiers("storage", storage)
	if err != nil {
		return nil, err
	}

	return &Catalog{
		rental:  r,
		storage: s,
		logger:  logger.With(slog.String("component", "plan_catalog")),
	}, nil
}

func indexTiers(kind string, tiers []model.Tier) (map[string]model.Tier, error) {
	out := make(map[string]model.Tier, len(tiers))
	for _, t := range tiers {
		if t.ID == "" {
			return nil, fmt.Errorf("%s: пустой идентификатор ступени", kind)
		}
		if strings.Contains(t.ID, planSeparator) {
			return nil, fmt.Errorf("%s: идентификатор %q не должен содержать %q", kind, t.ID, planSeparator)
		}
		if t.Days < 0 {
			return nil, fmt.Errorf("%s.%s: отрицательное количество дней %d", kind, t.ID, t.Days)
		}
		if t.Price < 0 {
			return nil, fmt.Errorf("%s.%s: отрицательная цена", kind, t.ID)
		}
		if _, dup := out[t.ID]; dup {
			return nil, fmt.Errorf("%s: дублирующаяся ступень %q", kind, t.ID)
		}
		out[t.ID] = t
	}

	free, ok := out[FreeTier]
	if !ok {
		return nil, fmt.Errorf("%s: отсутствует обязательная ступень %q", kind, FreeTier)
	}
	if free.Price != 0 {
		return nil, fmt.Errorf("%s.%s: цена бесплатной ступени должна быть 0", kind, FreeTier)
	}
	return out, nil
}

// Resolve возвращает план по идентификатору.
// "week_month" → аренда week + хранение month; "week" → week для обоих окон;
// пустой или неизвестный идентификатор → бесплатный план (с предупреждением).
func (c *Catalog) Resolve(planID string) model.Plan {
	planID = strings.TrimSpace(planID)
	if planID == "" {
		c.fallback("plan", planID)
		return c.DefaultPlan()
	}

	rentalID, storageID, ok := strings.Cut(planID, planSeparator)
	if !ok {
		storageID = rentalID
	}
	return c.Quote(rentalID, storageID)
}

// Quote собирает план из ступени аренды и ступени хранения.
// Неизвестная ступень заменяется на бесплатную отдельно для каждого окна.
func (c *Catalog) Quote(rentalTier, storageTier string) model.Plan {
	rental, ok := c.rental[rentalTier]
	if !ok {
		c.fallback("rental", rentalTier)
		rental = c.rental[FreeTier]
	}
	storage, ok := c.storage[storageTier]
	if !ok {
		c.fallback("storage", storageTier)
		storage = c.storage[FreeTier]
	}

	return model.Plan{
		ID:          rental.ID + planSeparator + storage.ID,
		RentalDays:  rental.Days,
		StorageDays: storage.Days,
		Price:       rental.Price + storage.Price,
		Label:       rental.Label + " + " + storage.Label,
		RentalTier:  rental.ID,
		StorageTier: storage.ID,
	}
}

// DefaultPlan возвращает бесплатный план free_free.
func (c *Catalog) DefaultPlan() model.Plan {
	return c.Quote(FreeTier, FreeTier)
}

// TotalPrice возвращает стоимость плана.
func (c *Catalog) TotalPrice(planID string) model.Money {
	return c.Resolve(planID).Price
}

// IsFree возвращает true, если план бесплатный.
func (c *Catalog) IsFree(planID string) bool {
	return c.Resolve(planID).IsFree()
}

// RentalTiers возвращает ступени аренды, отсортированные по длительности.
func (c *Catalog) RentalTiers() []model.Tier {
	return sortedTiers(c.rental)
}

// StorageTiers возвращает ступени хранения, отсортированные по длительности.
func (c *Catalog) StorageTiers() []model.Tier {
	return sortedTiers(c.storage)
}

func (c *Catalog) fallback(kind, requested string) {
	planFallbackTotal.WithLabelValues(kind).Inc()
	c.logger.Warn("Неизвестная ступень плана, используется бесплатная",
		slog.String("kind", kind),
		slog.String("requested", requested),
	)
}

func sortedTiers(m map[string]model.Tier) []model.Tier {
	out := make([]model.Tier, 0, len(m))
	for _, t := range m {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Days != out[j].Days {
			return out[i].Days < out[j].Days
		}
		return out[i].ID < out[j].ID
	})
	return out
}
