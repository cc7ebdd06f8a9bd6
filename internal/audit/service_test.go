package audit

import (
	"context"
	"errors"
	"testing"

	"call-inbox/internal/claims"
	"call-inbox/internal/mappings"
)

func TestService_AppendRequiresKnownType(t *testing.T) {
	svc := NewService(NewMemoryRepo())

	if err := svc.Append(context.Background(), Event{}); err == nil {
		t.Fatalf("expected error")
	}
	if err := svc.Append(context.Background(), Event{Type: "bogus"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestService_TransitionCapturesContext(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	ctx := WithClientIP(context.Background(), "1.2.3.4")
	ctx = WithActor(ctx, "101")
	if err := svc.LogTransition(ctx, "38651395476", claims.StatusMissed, claims.StatusClaimed, "101"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	evs := repo.Events()
	if len(evs) != 1 {
		t.Fatalf("expected 1 event")
	}
	e := evs[0]
	if e.IPAddress != "1.2.3.4" || e.ActorExtension != "101" {
		t.Fatalf("expected ip and actor captured, got %+v", e)
	}
	if e.Type != EventTypeTransition || e.Phone != "38651395476" || e.ID == "" || e.CreatedAt.IsZero() {
		t.Fatalf("unexpected event %+v", e)
	}
	if e.Message != "missed -> claimed by 101" {
		t.Fatalf("unexpected message %q", e.Message)
	}
}

func TestMemoryRepo_HistoryPerPhone(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	_ = svc.LogTransition(ctx, "38651395476", claims.StatusMissed, claims.StatusClaimed, "101")
	_ = svc.LogTransition(ctx, "38640111222", claims.StatusMissed, claims.StatusClaimed, "102")
	_ = svc.LogTransition(ctx, "38651395476", claims.StatusClaimed, claims.StatusHandled, "101")

	h := repo.History("38651395476")
	if len(h) != 2 {
		t.Fatalf("expected 2 events for number, got %d", len(h))
	}
	if h[0].Message != "missed -> claimed by 101" || h[1].Message != "claimed -> handled by 101" {
		t.Fatalf("unexpected history order: %q, %q", h[0].Message, h[1].Message)
	}
	if got := repo.History("38600000000"); len(got) != 0 {
		t.Fatalf("expected empty history, got %d", len(got))
	}
	if n := len(repo.Events()); n != 3 {
		t.Fatalf("expected 3 events total, got %d", n)
	}
}

func TestService_MappingActionsMatchEventTypes(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	for _, action := range []string{mappings.ActionUpsert, mappings.ActionUpdate, mappings.ActionDelete} {
		if err := svc.LogMapping(context.Background(), action, "38651395476", "101"); err != nil {
			t.Fatalf("%s: %v", action, err)
		}
	}
	if n := len(repo.Events()); n != 3 {
		t.Fatalf("expected 3 events, got %d", n)
	}
}

func TestService_LoginFailure(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	if err := svc.LogLogin(context.Background(), "", "session", errors.New("bad password")); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if e := repo.Events()[0]; e.Type != EventTypeLoginFailed || e.Message != "bad password" {
		t.Fatalf("unexpected event %+v", e)
	}
}
