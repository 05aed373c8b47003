package services

import (
	"context"
	"testing"

	"github.com/ksb-community/apiserver/types"
)

// recentOnlyRepo serves only ListRecentByAuthor; the other methods are
// not reached by the repeat guard.
type recentOnlyRepo struct {
	MessageRepository
	recent []types.Message
}

func (r *recentOnlyRepo) ListRecentByAuthor(_ context.Context, _, limit int) ([]types.Message, error) {
	if len(r.recent) > limit {
		return r.recent[:limit], nil
	}
	return r.recent, nil
}

func TestIsRepeatNeedsFullWindow(t *testing.T) {
	repo := &recentOnlyRepo{recent: []types.Message{
		{Content: "selam"},
		{Content: "selam"},
	}}
	svc := NewMessageService(repo)

	repeat, err := svc.IsRepeat(context.Background(), 1, "selam")
	if err != nil {
		t.Fatalf("is repeat: %v", err)
	}
	if repeat {
		t.Fatalf("two identical messages must not trip the guard")
	}
}

func TestIsRepeatBlocksFourthIdentical(t *testing.T) {
	repo := &recentOnlyRepo{recent: []types.Message{
		{Content: "selam"},
		{Content: "selam"},
		{Content: "selam"},
	}}
	svc := NewMessageService(repo)

	repeat, err := svc.IsRepeat(context.Background(), 1, "selam")
	if err != nil {
		t.Fatalf("is repeat: %v", err)
	}
	if !repeat {
		t.Fatalf("three identical messages must trip the guard")
	}
}

func TestIsRepeatResetsOnDifferentContent(t *testing.T) {
	repo := &recentOnlyRepo{recent: []types.Message{
		{Content: "farkli"},
		{Content: "selam"},
		{Content: "selam"},
	}}
	svc := NewMessageService(repo)

	repeat, err := svc.IsRepeat(context.Background(), 1, "selam")
	if err != nil {
		t.Fatalf("is repeat: %v", err)
	}
	if repeat {
		t.Fatalf("a different message inside the window must reset the guard")
	}
}
