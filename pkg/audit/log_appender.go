package audit

import (
	"context"

	"github.com/rs/zerolog"
)

// LogAppender пишет записи в журнал сервиса.
// Неуспешные операции пишутся с уровнем warn.
type LogAppender struct {
	logger zerolog.Logger
	level  Level
}

// NewLogAppender - создать appender поверх logger
func NewLogAppender(logger zerolog.Logger, level Level) *LogAppender {
	return &LogAppender{logger: logger, level: level}
}

// Append - записать entry в журнал
func (la *LogAppender) Append(ctx context.Context, entry *Entry) error {
	filtered := entry.FilterByLevel(la.level)

	ev := la.logger.Info()
	if filtered.Status != StatusSuccess {
		ev = la.logger.Warn()
	}
	ev = ev.
		Str("audit_id", filtered.ID.String()).
		Str("operation", string(filtered.Operation)).
		Str("status", string(filtered.Status)).
		Str("process_id", filtered.ProcessID.String()).
		Int64("rows", filtered.RowsAffected).
		Dur("duration", filtered.Duration)
	if filtered.Operation == OpStep {
		ev = ev.Int("step", filtered.Step).Str("kind", filtered.Kind).Str("table", filtered.Table)
	}
	if filtered.ErrorMessage != "" {
		ev = ev.Str("error", filtered.ErrorMessage)
	}
	if len(filtered.Metadata) > 0 {
		ev = ev.Interface("metadata", filtered.Metadata)
	}
	if filtered.Data != nil {
		ev = ev.Interface("data", filtered.Data)
	}
	ev.Msg("audit")
	return nil
}

// Close - ничего не делает
func (la *LogAppender) Close() error {
	return nil
}
