package audit

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/ruslano69/tdtp-steps/pkg/executor"
)

// Config - настройки журнала аудита
type Config struct {
	File       string `yaml:"file"`        // пусто = без файла
	MaxSizeMB  int64  `yaml:"max_size_mb"` // 0 = 100
	MaxBackups int    `yaml:"max_backups"` // 0 = 5
	Level      string `yaml:"level"`       // minimal | standard | full
	Log        bool   `yaml:"log"`         // дублировать записи в журнал сервиса
}

// Enabled сообщает, настроен ли хотя бы один получатель
func (c Config) Enabled() bool {
	return c.File != "" || c.Log
}

// New собирает appenders по конфигурации
func New(cfg Config, logger zerolog.Logger) (*MultiAppender, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	multi := NewMultiAppender()
	if cfg.File != "" {
		fa, err := NewFileAppender(FileAppenderConfig{
			FilePath:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			Level:      level,
			FormatJSON: true,
		})
		if err != nil {
			return nil, err
		}
		multi.Add(fa)
	}
	if cfg.Log {
		multi.Add(NewLogAppender(logger, level))
	}
	return multi, nil
}

// Reporter записывает итог выполнения процесса в журнал аудита:
// одна запись на процесс и по одной на каждый выполнявшийся шаг.
type Reporter struct {
	appender Appender
	node     string
}

// NewReporter - создать Reporter. Узел берется из имени хоста.
func NewReporter(appender Appender) *Reporter {
	node, _ := os.Hostname()
	return &Reporter{appender: appender, node: node}
}

// Publish реализует executor.Reporter
func (r *Reporter) Publish(ctx context.Context, report *executor.Report) error {
	var errs []error
	for _, entry := range r.Entries(report) {
		if err := r.appender.Append(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("audit process %s: %w", report.ProcessID, err)
	}
	return nil
}

// Entries строит записи аудита по итогу. Запись процесса идет первой.
func (r *Reporter) Entries(report *executor.Report) []*Entry {
	entries := make([]*Entry, 0, len(report.Steps)+1)

	var rows int64
	var statements, completed int
	for _, s := range report.Steps {
		rows += s.RowsAffected
		statements += s.Statements
		if s.Error == "" {
			completed++
		}
	}

	status := StatusSuccess
	if report.Status != executor.StatusSuccess {
		status = StatusFailure
		if completed > 0 {
			status = StatusPartial
		}
	}

	proc := NewEntry(OpProcess, status).
		WithNode(r.node).
		WithProcess(report.ProcessID, report.ProcessName).
		WithStatements(statements).
		WithRowsAffected(rows).
		WithDuration(report.FinishedAt.Sub(report.StartedAt)).
		WithError(report.Error).
		WithMetadata("steps", len(report.Steps)).
		WithMetadata("completed", completed).
		WithData(report)
	proc.Timestamp = report.FinishedAt
	entries = append(entries, proc)

	for i := range report.Steps {
		s := &report.Steps[i]
		step := NewEntry(OpStep, StatusSuccess).
			WithNode(r.node).
			WithProcess(report.ProcessID, report.ProcessName).
			WithStep(s.Sequence, string(s.Kind)).
			WithTable(s.Table).
			WithStatements(s.Statements).
			WithRowsAffected(s.RowsAffected).
			WithDuration(s.Duration).
			WithError(s.Error).
			WithData(s)
		step.Timestamp = report.FinishedAt
		entries = append(entries, step)
	}
	return entries
}
