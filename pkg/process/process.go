// Package process хранит упорядоченный список дескрипторов шагов процесса.
package process

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ruslano69/tdtp-steps/pkg/steps"
)

// ErrStepNotFound - шага с таким номером нет в процессе
var ErrStepNotFound = errors.New("step not found")

// Process - процесс: именованная последовательность шагов.
// Sequence шагов всегда 1..N без пропусков.
type Process struct {
	ID        uuid.UUID           `json:"id"`
	Name      string              `json:"name"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
	Steps     []*steps.Descriptor `json:"steps"`
}

// New создает пустой процесс с новым ID
func New(name string) *Process {
	now := time.Now().UTC()
	return &Process{
		ID:        uuid.New(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
		Steps:     []*steps.Descriptor{},
	}
}

// Add собирает шаг и добавляет его в конец процесса.
// Ошибка построителя возвращается без изменения процесса.
func (p *Process) Add(step steps.Step, opts steps.BuildOptions) (*steps.Descriptor, error) {
	opts.Sequence = len(p.Steps) + 1
	desc, err := step.Build(opts)
	if err != nil {
		return nil, err
	}
	p.Steps = append(p.Steps, desc)
	p.touch()
	return desc, nil
}

// Replace пересобирает шаг с номером sequence (режим редактирования)
func (p *Process) Replace(sequence int, step steps.Step, opts steps.BuildOptions) (*steps.Descriptor, error) {
	i, err := p.index(sequence)
	if err != nil {
		return nil, err
	}
	opts.Sequence = sequence
	desc, err := step.Build(opts)
	if err != nil {
		return nil, err
	}
	p.Steps[i] = desc
	p.touch()
	return desc, nil
}

// Remove удаляет шаг и перенумеровывает оставшиеся
func (p *Process) Remove(sequence int) error {
	i, err := p.index(sequence)
	if err != nil {
		return err
	}
	p.Steps = append(p.Steps[:i], p.Steps[i+1:]...)
	p.renumber()
	p.touch()
	return nil
}

// Move переставляет шаг from на позицию to
func (p *Process) Move(from, to int) error {
	i, err := p.index(from)
	if err != nil {
		return err
	}
	j, err := p.index(to)
	if err != nil {
		return err
	}
	desc := p.Steps[i]
	p.Steps = append(p.Steps[:i], p.Steps[i+1:]...)
	p.Steps = append(p.Steps[:j], append([]*steps.Descriptor{desc}, p.Steps[j:]...)...)
	p.renumber()
	p.touch()
	return nil
}

// Step возвращает шаг по номеру
func (p *Process) Step(sequence int) (*steps.Descriptor, error) {
	i, err := p.index(sequence)
	if err != nil {
		return nil, err
	}
	return p.Steps[i], nil
}

// Validate проверяет нумерацию шагов
func (p *Process) Validate() error {
	if p.ID == uuid.Nil {
		return fmt.Errorf("process id is empty")
	}
	for i, desc := range p.Steps {
		if desc == nil {
			return fmt.Errorf("step %d is nil", i+1)
		}
		if desc.Sequence != i+1 {
			return fmt.Errorf("step %d has sequence %d", i+1, desc.Sequence)
		}
	}
	return nil
}

func (p *Process) index(sequence int) (int, error) {
	if sequence < 1 || sequence > len(p.Steps) {
		return 0, fmt.Errorf("%w: %d", ErrStepNotFound, sequence)
	}
	return sequence - 1, nil
}

func (p *Process) renumber() {
	for i, desc := range p.Steps {
		desc.Sequence = i + 1
	}
}

func (p *Process) touch() {
	p.UpdatedAt = time.Now().UTC()
}

// Encode сериализует процесс в JSON
func (p *Process) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode process: %w", err)
	}
	return data, nil
}

// Decode читает процесс из JSON. Шаги упорядочиваются по sequence.
func Decode(data []byte) (*Process, error) {
	var p Process
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode process: %w", err)
	}
	sort.SliceStable(p.Steps, func(i, j int) bool {
		return p.Steps[i].Sequence < p.Steps[j].Sequence
	})
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid process: %w", err)
	}
	return &p, nil
}

// Load читает процесс из файла
func Load(path string) (*Process, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read process file: %w", err)
	}
	return Decode(data)
}

// Save записывает процесс в файл
func (p *Process) Save(path string) error {
	data, err := p.Encode()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write process file: %w", err)
	}
	return nil
}
