package repository

import (
	"context"
	"testing"
	"time"

	"github.com/hitoshi/vodman/internal/model"
)

// シード済みジョブが初回は全件発火対象になることを検証
func TestSQLiteBackgroundJobRepo_ListDue_SeededJobs(t *testing.T) {
	db := newTestDB(t)
	repo := NewSQLiteBackgroundJobRepo(db)
	ctx := context.Background()

	due, err := repo.ListDue(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("ListDue() error = %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("len(due) = %d, want 2", len(due))
	}

	names := map[string]bool{}
	for _, job := range due {
		names[job.Name] = true
	}
	if !names[model.BackgroundJobQueueClean] {
		t.Error("QUEUE-CLEAN should be due on first run")
	}
	if !names[model.BackgroundJobChannelRefresh] {
		t.Error("CHANNEL-REFRESH should be due on first run")
	}
}

// Touch後は間隔を経過するまで発火しないことを検証
func TestSQLiteBackgroundJobRepo_Touch_SuppressesRefire(t *testing.T) {
	db := newTestDB(t)
	repo := NewSQLiteBackgroundJobRepo(db)
	ctx := context.Background()

	now := time.Now().UTC()
	due, err := repo.ListDue(ctx, now)
	if err != nil {
		t.Fatalf("ListDue() error = %v", err)
	}
	for _, job := range due {
		if err := repo.Touch(ctx, job.ID, now); err != nil {
			t.Fatalf("Touch() error = %v", err)
		}
	}

	due, err = repo.ListDue(ctx, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("ListDue() error = %v", err)
	}
	if len(due) != 0 {
		t.Errorf("len(due) = %d, want 0", len(due))
	}

	// QUEUE-CLEANの間隔(4時間)を経過すれば再び発火する
	due, err = repo.ListDue(ctx, now.Add(5*time.Hour))
	if err != nil {
		t.Fatalf("ListDue() error = %v", err)
	}
	if len(due) != 1 || due[0].Name != model.BackgroundJobQueueClean {
		t.Fatalf("due = %v, want only QUEUE-CLEAN", due)
	}
}

// 読み取ったジョブの間隔がシード値と一致することを検証
func TestSQLiteBackgroundJobRepo_SeededIntervals(t *testing.T) {
	db := newTestDB(t)
	repo := NewSQLiteBackgroundJobRepo(db)

	due, err := repo.ListDue(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("ListDue() error = %v", err)
	}

	intervals := map[string]time.Duration{}
	for _, job := range due {
		intervals[job.Name] = job.Interval
	}
	if intervals[model.BackgroundJobQueueClean] != 4*time.Hour {
		t.Errorf("QUEUE-CLEAN interval = %v, want 4h", intervals[model.BackgroundJobQueueClean])
	}
	if intervals[model.BackgroundJobChannelRefresh] != 8*time.Hour {
		t.Errorf("CHANNEL-REFRESH interval = %v, want 8h", intervals[model.BackgroundJobChannelRefresh])
	}
}
