package eventhandler

import (
	"log/slog"

	"github.com/dojang-hub/dojang-exam-hub/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON GRADUATION CANCELLED HANDLER
// Аудит отмен: отмена после применённого каскада оставляет пояс ученику,
// и такие случаи должны быть заметны в логах.
// ═══════════════════════════════════════════════════════════════════════════

// OnGraduationCancelledHandler логирует отмены аттестаций.
type OnGraduationCancelledHandler struct {
	logger *slog.Logger
}

// NewOnGraduationCancelledHandler создаёт новый обработчик.
func NewOnGraduationCancelledHandler(logger *slog.Logger) *OnGraduationCancelledHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OnGraduationCancelledHandler{
		logger: logger.With("handler", "on_graduation_cancelled"),
	}
}

// Handle обрабатывает событие отмены аттестации.
func (h *OnGraduationCancelledHandler) Handle(event shared.Event) error {
	cancelled, ok := event.(shared.GraduationCancelledEvent)
	if !ok {
		return nil
	}

	if cancelled.CascadeKept {
		h.logger.Warn("graduation cancelled after belt cascade",
			"graduation_id", cancelled.GraduationID,
			"student_id", cancelled.StudentID,
			"reason", cancelled.Reason)
		return nil
	}

	h.logger.Info("graduation cancelled",
		"graduation_id", cancelled.GraduationID,
		"student_id", cancelled.StudentID,
		"reason", cancelled.Reason)

	return nil
}

// Subscribe регистрирует обработчик в шине событий.
func (h *OnGraduationCancelledHandler) Subscribe(bus shared.EventSubscriber) error {
	return bus.Subscribe(shared.EventGraduationCancelled, h.Handle)
}
