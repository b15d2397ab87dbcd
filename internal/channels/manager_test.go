package channels

import (
	"context"
	"errors"
	"testing"

	"github.com/nextlevelbuilder/hookrelay/internal/dispatch"
)

type stubChannel struct {
	*BaseChannel
	startErr error
	stopErr  error
}

func (s *stubChannel) Start(context.Context) error {
	if s.startErr != nil {
		return s.startErr
	}
	s.SetRunning(true)
	return nil
}

func (s *stubChannel) Stop(context.Context) error {
	s.SetRunning(false)
	return s.stopErr
}

func (s *stubChannel) Send(context.Context, string, string, []string) (dispatch.MessageRef, error) {
	return dispatch.MessageRef{}, nil
}

func (s *stubChannel) Delete(context.Context, dispatch.MessageRef) error { return nil }

func TestManager_Lifecycle(t *testing.T) {
	m := NewManager()
	a := &stubChannel{BaseChannel: NewBaseChannel("a")}
	m.RegisterChannel("a", a)

	if err := m.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll: %v", err)
	}
	if st := m.GetStatus(); !st["a"] {
		t.Errorf("status = %v, want a running", st)
	}
	if ch, ok := m.GetChannel("a"); !ok || ch.Name() != "a" {
		t.Errorf("GetChannel = %v, %v", ch, ok)
	}
	if err := m.StopAll(context.Background()); err != nil {
		t.Fatalf("StopAll: %v", err)
	}
	if a.IsRunning() {
		t.Error("channel still running after StopAll")
	}
}

func TestManager_StartFailure(t *testing.T) {
	m := NewManager()
	m.RegisterChannel("bad", &stubChannel{BaseChannel: NewBaseChannel("bad"), startErr: errors.New("invalid token")})
	if err := m.StartAll(context.Background()); err == nil {
		t.Fatal("expected start error")
	}
}

func TestManager_StopCollectsErrors(t *testing.T) {
	m := NewManager()
	m.RegisterChannel("a", &stubChannel{BaseChannel: NewBaseChannel("a"), stopErr: errors.New("x")})
	m.RegisterChannel("b", &stubChannel{BaseChannel: NewBaseChannel("b"), stopErr: errors.New("y")})
	err := m.StopAll(context.Background())
	if err == nil {
		t.Fatal("expected joined error")
	}
}
