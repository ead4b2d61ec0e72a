package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"contest-settlement/internal/app"
	"contest-settlement/internal/domain"
)

func TestContestStoreProjectsView(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	store := NewContestStore(newClient(mr), 10*time.Minute)
	contest := app.NewContest("contest-1", domain.ContestParams{Name: "Friday trivia", Donation: 250})
	if err := store.Create(contest); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, ok := store.Get("contest-1"); !ok {
		t.Fatalf("expected live contest")
	}

	store.Sync(contest)
	if !mr.Exists("contest:contest-1") {
		t.Fatalf("expected redis key to be set")
	}
	if ttl := mr.TTL("contest:contest-1"); ttl != 10*time.Minute {
		t.Fatalf("expected ttl 10m, got %v", ttl)
	}

	view, err := store.View(context.Background(), "contest-1")
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if view.Pool != 250 || view.Status != domain.StatusOpen || view.Params.Name != "Friday trivia" {
		t.Fatalf("unexpected view: %+v", view)
	}

	if _, err := store.View(context.Background(), "contest-2"); !errors.Is(err, domain.ErrContestNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestContestServiceReadsOtherInstanceProjection(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	owner := NewContestStore(newClient(mr), 10*time.Minute)
	contest := app.NewContest("contest-1", domain.ContestParams{Name: "Friday trivia", Donation: 250})
	if err := owner.Create(contest); err != nil {
		t.Fatalf("create: %v", err)
	}
	owner.Sync(contest)

	// a second instance has no local copy of the contest
	service := app.NewContestService(app.Deps{Contests: NewContestStore(newClient(mr), 10*time.Minute)})
	view, err := service.Contest(context.Background(), "contest-1")
	if err != nil {
		t.Fatalf("contest: %v", err)
	}
	if view.ID != "contest-1" || view.Pool != 250 {
		t.Fatalf("unexpected view: %+v", view)
	}
	if _, err := service.Contest(context.Background(), "contest-2"); !errors.Is(err, domain.ErrContestNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
