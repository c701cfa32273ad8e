package cleanup

import (
	"errors"
	"testing"
)

func TestStateMachine_HappyPath(t *testing.T) {
	sm := NewStateMachine("ev-1")

	for _, s := range []State{StateDeleting, StateMarking, StateDone} {
		if err := sm.TransitionTo(s); err != nil {
			t.Fatalf("переход в %s: %v", s, err)
		}
	}
	if sm.Current() != StateDone {
		t.Errorf("состояние: хотели done, получили %s", sm.Current())
	}
	if err := sm.TransitionTo(StateFailed); err == nil {
		t.Error("из done переходов нет")
	}
	if got := len(sm.History()); got != 3 {
		t.Errorf("история: хотели 3 записи, получили %d", got)
	}
}

// Отметка без подтверждённого удаления запрещена.
func TestStateMachine_MarkingRequiresDeleting(t *testing.T) {
	sm := NewStateMachine("ev-1")

	err := sm.TransitionTo(StateMarking)
	var te *TransitionError
	if !errors.As(err, &te) {
		t.Fatalf("ожидалась TransitionError, получено %v", err)
	}
	if te.From != StatePending || te.To != StateMarking {
		t.Errorf("некорректные поля ошибки: %+v", te)
	}
	if sm.Current() != StatePending {
		t.Errorf("состояние не должно меняться: %s", sm.Current())
	}
}

func TestStateMachine_Fail(t *testing.T) {
	sm := NewStateMachine("ev-2")
	cause := errors.New("хранилище недоступно")

	if err := sm.TransitionTo(StateDeleting); err != nil {
		t.Fatal(err)
	}
	if err := sm.Fail(cause); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if !errors.Is(sm.Err(), cause) {
		t.Errorf("Err: хотели %v, получили %v", cause, sm.Err())
	}

	// Из failed переходов нет
	if err := sm.TransitionTo(StateMarking); err == nil {
		t.Error("переход из failed должен быть запрещён")
	}
	// Из pending сразу в failed тоже нельзя
	if err := NewStateMachine("ev-3").Fail(cause); err == nil {
		t.Error("pending → failed должен быть запрещён")
	}
}

func TestStateMachine_AllTransitions(t *testing.T) {
	states := []State{StatePending, StateDeleting, StateMarking, StateDone, StateFailed}
	allowed := map[[2]State]bool{
		{StatePending, StateDeleting}: true,
		{StateDeleting, StateMarking}: true,
		{StateDeleting, StateFailed}:  true,
		{StateMarking, StateDone}:     true,
		{StateMarking, StateFailed}:   true,
	}

	for _, from := range states {
		for _, to := range states {
			got := validTransitions[from][to]
			if got != allowed[[2]State{from, to}] {
				t.Errorf("%s → %s: хотели %v, получили %v", from, to, allowed[[2]State{from, to}], got)
			}
		}
	}
}
