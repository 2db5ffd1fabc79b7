package resilience

import (
	"fmt"
	"sync"
	"time"
)

// State - состояние Circuit Breaker
type State int

const (
	// StateClosed - нормальная работа, запросы проходят
	StateClosed State = iota
	// StateHalfOpen - проверка восстановления
	StateHalfOpen
	// StateOpen - запросы отклоняются
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// Stats - снимок состояния Circuit Breaker
type Stats struct {
	State             State         `json:"state"`
	Counts            Counts        `json:"counts"`
	RunningCalls      uint32        `json:"running_calls"`
	LastStateChange   time.Time     `json:"last_state_change"`
	TimeUntilHalfOpen time.Duration `json:"time_until_half_open"`
}

// stateManager хранит состояние; все методы берут mu
type stateManager struct {
	mu              sync.Mutex
	config          Config
	state           State
	generation      uint64 // результат вызова из прошлого поколения игнорируется
	counts          Counts
	expiry          time.Time
	runningCalls    uint32
	lastStateChange time.Time
	now             func() time.Time
}

func newStateManager(config Config) *stateManager {
	return &stateManager{
		config:          config,
		state:           StateClosed,
		lastStateChange: time.Now(),
		now:             time.Now,
	}
}

// transition меняет состояние; вызывается под mu
func (sm *stateManager) transition(to State) {
	if sm.state == to {
		return
	}
	from := sm.state
	sm.state = to
	sm.generation++
	sm.counts = Counts{}
	sm.lastStateChange = sm.now()
	if to == StateOpen {
		sm.expiry = sm.now().Add(sm.config.Timeout)
	}
	if sm.config.OnStateChange != nil {
		go sm.config.OnStateChange(sm.config.Name, from, to)
	}
}

// current продвигает Open в Half-Open по истечении таймаута; вызывается под mu
func (sm *stateManager) current() State {
	if sm.state == StateOpen && sm.now().After(sm.expiry) {
		sm.transition(StateHalfOpen)
	}
	return sm.state
}

func (sm *stateManager) beforeRequest() (uint64, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.current() == StateOpen {
		return sm.generation, ErrCircuitOpen
	}
	if sm.config.MaxConcurrentCalls > 0 && sm.runningCalls >= sm.config.MaxConcurrentCalls {
		return sm.generation, ErrTooManyCalls
	}
	sm.runningCalls++
	return sm.generation, nil
}

func (sm *stateManager) afterRequest(generation uint64, success bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.runningCalls > 0 {
		sm.runningCalls--
	}
	if generation != sm.generation {
		return
	}

	sm.counts.Requests++
	if success {
		sm.counts.TotalSuccesses++
		sm.counts.ConsecutiveSuccesses++
		sm.counts.ConsecutiveFailures = 0
		if sm.state == StateHalfOpen && sm.counts.ConsecutiveSuccesses >= sm.config.SuccessThreshold {
			sm.transition(StateClosed)
		}
		return
	}

	sm.counts.TotalFailures++
	sm.counts.ConsecutiveFailures++
	sm.counts.ConsecutiveSuccesses = 0
	switch sm.state {
	case StateClosed:
		if sm.counts.ConsecutiveFailures >= sm.config.MaxFailures {
			sm.transition(StateOpen)
		}
	case StateHalfOpen:
		sm.transition(StateOpen)
	}
}

func (sm *stateManager) stats() Stats {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	st := Stats{
		State:           sm.current(),
		Counts:          sm.counts,
		RunningCalls:    sm.runningCalls,
		LastStateChange: sm.lastStateChange,
	}
	if st.State == StateOpen {
		if remaining := sm.expiry.Sub(sm.now()); remaining > 0 {
			st.TimeUntilHalfOpen = remaining
		}
	}
	return st
}

func (sm *stateManager) reset() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.transition(StateClosed)
	sm.counts = Counts{}
	sm.expiry = time.Time{}
}
