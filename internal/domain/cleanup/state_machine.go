// Пакет cleanup: конечный автомат очистки одного мероприятия.
//
// Жизненный цикл кандидата в рамках одного запуска RetentionReaper:
//
//	pending → deleting → marking → done
//	             ↓          ↓
//	           failed     failed
//
// marking достижим только из deleting, то есть отметка isFilesDeleted
// никогда не выполняется до подтверждённого удаления файлов.
package cleanup

import (
	"fmt"
	"sync"
	"time"
)

// State: состояние обработки мероприятия.
type State string

const (
	// StatePending: кандидат найден, обработка не начата
	StatePending State = "pending"
	// StateDeleting: выполняется удаление префикса в хранилище
	StateDeleting State = "deleting"
	// StateMarking: удаление подтверждено, сохраняется отметка
	StateMarking State = "marking"
	// StateDone: файлы удалены и отметка сохранена
	StateDone State = "done"
	// StateFailed: удаление или отметка не удались, повтор в следующем запуске
	StateFailed State = "failed"
)

// Phase: фаза запуска очистки целиком.
type Phase string

const (
	PhaseScanning     Phase = "scanning"
	PhaseNoCandidates Phase = "no_candidates"
	PhaseProcessing   Phase = "processing"
	PhaseDone         Phase = "done"
	PhaseFailed       Phase = "failed"
)

// validTransitions: матрица допустимых переходов.
var validTransitions = map[State]map[State]bool{
	StatePending:  {StateDeleting: true},
	StateDeleting: {StateMarking: true, StateFailed: true},
	StateMarking:  {StateDone: true, StateFailed: true},
	StateDone:     {},
	StateFailed:   {},
}

// TransitionRecord: запись о переходе.
type TransitionRecord struct {
	From      State     `json:"from"`
	To        State     `json:"to"`
	Timestamp time.Time `json:"timestamp"`
}

// TransitionError: ошибка недопустимого перехода.
type TransitionError struct {
	EventID string
	From    State
	To      State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("мероприятие %s: переход %s → %s недопустим", e.EventID, e.From, e.To)
}

// StateMachine: автомат обработки одного мероприятия.
type StateMachine struct {
	mu      sync.Mutex
	eventID string
	current State
	history []TransitionRecord
	lastErr error
}

// NewStateMachine создаёт автомат в состоянии pending.
func NewStateMachine(eventID string) *StateMachine {
	return &StateMachine{
		eventID: eventID,
		current: StatePending,
	}
}

// Current возвращает текущее состояние.
func (sm *StateMachine) Current() State {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.current
}

// TransitionTo выполняет переход в target.
func (sm *StateMachine) TransitionTo(target State) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !validTransitions[sm.current][target] {
		return &TransitionError{EventID: sm.eventID, From: sm.current, To: target}
	}

	sm.history = append(sm.history, TransitionRecord{
		From:      sm.current,
		To:        target,
		Timestamp: time.Now().UTC(),
	})
	sm.current = target
	return nil
}

// Fail переводит автомат в failed и запоминает причину.
func (sm *StateMachine) Fail(cause error) error {
	if err := sm.TransitionTo(StateFailed); err != nil {
		return err
	}
	sm.mu.Lock()
	sm.lastErr = cause
	sm.mu.Unlock()
	return nil
}

// Err возвращает причину перехода в failed.
func (sm *StateMachine) Err() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.lastErr
}

// History возвращает копию истории переходов.
func (sm *StateMachine) History() []TransitionRecord {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	result := make([]TransitionRecord, len(sm.history))
	copy(result, sm.history)
	return result
}
