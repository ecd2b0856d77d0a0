// Package eventhandler содержит обработчики доменных событий.
// Эти обработчики реализуют event-driven архитектуру и связывают
// различные части системы через асинхронные события.
package eventhandler

import (
	"context"
	"log/slog"
	"time"

	"github.com/dojang-hub/dojang-exam-hub/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON BELT PROMOTED HANDLER
// Обрабатывает событие применения каскада пояса.
//
// Повышение пояса обнуляет кешированные результаты проверки допуска:
// стаж на поясе начинается заново, и старый снимок вводит в заблуждение.
// ═══════════════════════════════════════════════════════════════════════════

// EligibilityInvalidator сбрасывает кешированные снимки допуска ученика.
type EligibilityInvalidator interface {
	InvalidateStudent(ctx context.Context, studentID shared.StudentID) error
}

// OnBeltPromotedHandler обрабатывает событие повышения пояса.
type OnBeltPromotedHandler struct {
	cache  EligibilityInvalidator
	logger *slog.Logger

	// timeout ограничивает работу с кешем из обработчика.
	timeout time.Duration
}

// NewOnBeltPromotedHandler создаёт новый обработчик.
func NewOnBeltPromotedHandler(cache EligibilityInvalidator, logger *slog.Logger) *OnBeltPromotedHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &OnBeltPromotedHandler{
		cache:   cache,
		logger:  logger.With("handler", "on_belt_promoted"),
		timeout: 5 * time.Second,
	}
}

// Handle обрабатывает событие повышения пояса.
// Реализует интерфейс shared.EventHandler.
func (h *OnBeltPromotedHandler) Handle(event shared.Event) error {
	promoted, ok := event.(shared.BeltPromotedEvent)
	if !ok {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	studentID := shared.StudentID(promoted.StudentID)
	if h.cache != nil {
		if err := h.cache.InvalidateStudent(ctx, studentID); err != nil {
			// Кеш не является источником истины: логируем и продолжаем.
			h.logger.Warn("failed to invalidate eligibility cache",
				"student_id", promoted.StudentID,
				"error", err)
		}
	}

	h.logger.Info("belt promoted",
		"student_id", promoted.StudentID,
		"graduation_id", promoted.GraduationID,
		"previous_belt", promoted.PreviousBelt,
		"new_belt", promoted.NewBelt)

	return nil
}

// Subscribe регистрирует обработчик в шине событий.
func (h *OnBeltPromotedHandler) Subscribe(bus shared.EventSubscriber) error {
	return bus.Subscribe(shared.EventBeltPromoted, h.Handle)
}
