package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ruslano69/tdtp-steps/pkg/adapters"
	"github.com/ruslano69/tdtp-steps/pkg/process"
	"github.com/ruslano69/tdtp-steps/pkg/retry"
	"github.com/ruslano69/tdtp-steps/pkg/steps"
)

// Статусы выполнения
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// StepResult - результат выполнения одного шага
type StepResult struct {
	Sequence     int           `json:"sequence"`
	Kind         steps.Kind    `json:"kind"`
	Table        string        `json:"table"`
	Statements   int           `json:"statements"`
	RowsAffected int64         `json:"rows_affected"`
	Duration     time.Duration `json:"duration"`
	Error        string        `json:"error,omitempty"`
}

// Report - итог выполнения процесса
type Report struct {
	ProcessID   uuid.UUID    `json:"process_id"`
	ProcessName string       `json:"process_name"`
	Status      string       `json:"status"`
	StartedAt   time.Time    `json:"started_at"`
	FinishedAt  time.Time    `json:"finished_at"`
	Steps       []StepResult `json:"steps"`
	Error       string       `json:"error,omitempty"`
}

// Reporter получает итог выполнения процесса (успешного или нет)
type Reporter interface {
	Publish(ctx context.Context, report *Report) error
}

// Invalidator сбрасывает кеш колонок таблиц после DDL
type Invalidator interface {
	Invalidate(ctx context.Context, tableIDs ...string) error
}

// StatementValidator проверяет команду плана до выполнения
type StatementValidator interface {
	Validate(sql string) error
}

// Option настраивает Executor
type Option func(*Executor)

// WithRetry задает политику повторов транзакции шага
func WithRetry(r *retry.Retryer) Option {
	return func(e *Executor) { e.retryer = r }
}

// WithReporter добавляет получателя итогов выполнения процесса.
// Получатели вызываются в порядке добавления.
func WithReporter(r Reporter) Option {
	return func(e *Executor) {
		if r != nil {
			e.reporters = append(e.reporters, r)
		}
	}
}

// WithValidator задает проверку команд плана (см. security.SQLValidator)
func WithValidator(v StatementValidator) Option {
	return func(e *Executor) { e.validator = v }
}

// WithInvalidator задает кеш каталога, который сбрасывается после DDL
func WithInvalidator(i Invalidator) Option {
	return func(e *Executor) { e.invalidator = i }
}

// Executor выполняет шаги процесса на адаптере СУБД
type Executor struct {
	adapter     adapters.Adapter
	retryer     *retry.Retryer
	reporters   []Reporter
	invalidator Invalidator
	validator   StatementValidator
}

// New создает исполнитель. Без WithRetry каждая транзакция выполняется один раз.
func New(adapter adapters.Adapter, opts ...Option) *Executor {
	e := &Executor{adapter: adapter}
	for _, opt := range opts {
		opt(e)
	}
	if e.retryer == nil {
		e.retryer, _ = retry.NewRetryer(retry.DefaultConfig())
	}
	return e
}

// Plan строит план шага для СУБД исполнителя и проверяет его команды
func (e *Executor) Plan(desc *steps.Descriptor) (*Plan, error) {
	plan, err := BuildPlan(desc, e.adapter)
	if err != nil {
		return nil, err
	}
	if e.validator != nil {
		for i, st := range plan.Statements {
			if err := e.validator.Validate(st.SQL); err != nil {
				return nil, fmt.Errorf("step %d: statement %d rejected: %w", plan.Sequence, i+1, err)
			}
		}
	}
	return plan, nil
}

// ExecuteStep выполняет все команды шага в одной транзакции.
// Результат возвращается и при ошибке, в том числе когда шаг не удалось спланировать.
func (e *Executor) ExecuteStep(ctx context.Context, desc *steps.Descriptor) (*StepResult, error) {
	start := time.Now()

	plan, err := e.Plan(desc)
	if err != nil {
		if desc == nil {
			return nil, fmt.Errorf("failed to plan step: %w", err)
		}
		err = fmt.Errorf("failed to plan step: %w", err)
		log.Error().Err(err).
			Int("sequence", desc.Sequence).
			Str("kind", string(desc.Kind)).
			Msg("step rejected")
		return &StepResult{
			Sequence: desc.Sequence,
			Kind:     desc.Kind,
			Duration: time.Since(start),
			Error:    err.Error(),
		}, err
	}

	result := &StepResult{
		Sequence:   plan.Sequence,
		Kind:       plan.Kind,
		Table:      plan.Table,
		Statements: len(plan.Statements),
	}

	err = e.retryer.Do(ctx, func(ctx context.Context) error {
		rows, err := e.runPlan(ctx, plan)
		result.RowsAffected = rows
		return err
	})
	result.Duration = time.Since(start)

	if err != nil {
		result.Error = err.Error()
		log.Error().Err(err).
			Int("sequence", plan.Sequence).
			Str("kind", string(plan.Kind)).
			Str("table", plan.Table).
			Msg("step failed")
		return result, fmt.Errorf("step %d (%s): %w", plan.Sequence, plan.Kind, err)
	}

	if plan.HasDDL() && e.invalidator != nil && plan.TableID != "" {
		if err := e.invalidator.Invalidate(ctx, plan.TableID); err != nil {
			log.Warn().Err(err).Str("table_id", plan.TableID).Msg("catalog cache invalidation failed")
		}
	}

	log.Info().
		Int("sequence", plan.Sequence).
		Str("kind", string(plan.Kind)).
		Str("table", plan.Table).
		Int64("rows", result.RowsAffected).
		Dur("duration", result.Duration).
		Msg("step executed")
	return result, nil
}

// runPlan выполняет план в транзакции; при ошибке транзакция откатывается
func (e *Executor) runPlan(ctx context.Context, plan *Plan) (int64, error) {
	tx, err := e.adapter.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}

	var total int64
	for _, st := range plan.Statements {
		n, err := tx.Exec(ctx, st.SQL)
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Warn().Err(rbErr).Msg("rollback failed")
			}
			return 0, err
		}
		total += n
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	return total, nil
}

// Run выполняет шаги процесса по порядку и останавливается на первой ошибке.
// Итог передается Reporter независимо от результата.
func (e *Executor) Run(ctx context.Context, p *process.Process) (*Report, error) {
	report := &Report{
		ProcessID:   p.ID,
		ProcessName: p.Name,
		StartedAt:   time.Now().UTC(),
		Steps:       []StepResult{},
	}

	runErr := p.Validate()
	if runErr == nil {
		for _, desc := range p.Steps {
			var res *StepResult
			res, runErr = e.ExecuteStep(ctx, desc)
			if res != nil {
				report.Steps = append(report.Steps, *res)
			}
			if runErr != nil {
				break
			}
		}
	}

	report.FinishedAt = time.Now().UTC()
	report.Status = StatusSuccess
	if runErr != nil {
		report.Status = StatusFailed
		report.Error = runErr.Error()
	}

	// итог публикуется и при отмене контекста выполнения
	pubCtx := context.WithoutCancel(ctx)
	for _, r := range e.reporters {
		if err := r.Publish(pubCtx, report); err != nil {
			log.Warn().Err(err).Str("process_id", p.ID.String()).Msg("failed to publish report")
		}
	}

	if runErr != nil {
		return report, fmt.Errorf("process %s: %w", p.ID, runErr)
	}
	return report, nil
}

