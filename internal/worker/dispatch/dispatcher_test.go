package dispatch

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/vodman/internal/model"
	"github.com/hitoshi/vodman/internal/worker/task"
)

// mockStore はテスト用のTaskStore実装。状態遷移の呼び出しを記録する。
type mockStore struct {
	mu        sync.Mutex
	claimFunc func(ctx context.Context, limit int) ([]*model.Task, error)

	claimCalls  int
	claimLimits []int
	marks       map[int64]model.TaskState
	codes       map[int64]model.ErrCode
	retries     map[int64]model.ErrCode
}

func newMockStore(claimFunc func(ctx context.Context, limit int) ([]*model.Task, error)) *mockStore {
	return &mockStore{
		claimFunc: claimFunc,
		marks:     make(map[int64]model.TaskState),
		codes:     make(map[int64]model.ErrCode),
		retries:   make(map[int64]model.ErrCode),
	}
}

func (s *mockStore) ClaimWaiting(ctx context.Context, limit int) ([]*model.Task, error) {
	s.mu.Lock()
	s.claimCalls++
	s.claimLimits = append(s.claimLimits, limit)
	s.mu.Unlock()
	return s.claimFunc(ctx, limit)
}

func (s *mockStore) Mark(ctx context.Context, id int64, state model.TaskState, code model.ErrCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marks[id] = state
	s.codes[id] = code
	return nil
}

func (s *mockStore) Retry(ctx context.Context, id int64, code model.ErrCode, retryLimit int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retries[id] = code
	return nil
}

func (s *mockStore) markedState(id int64) (model.TaskState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.marks[id]
	return state, ok
}

func (s *mockStore) retriedCode(id int64) (model.ErrCode, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	code, ok := s.retries[id]
	return code, ok
}

// funcWorker は関数をそのままWorkerにする。
type funcWorker func(ctx context.Context, t *model.Task) model.ErrCode

func (f funcWorker) Run(ctx context.Context, t *model.Task) model.ErrCode {
	return f(ctx, t)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
}

// claimOnce は初回だけ指定タスクを返すclaim関数を作る。
func claimOnce(tasks ...*model.Task) func(ctx context.Context, limit int) ([]*model.Task, error) {
	var done bool
	var mu sync.Mutex
	return func(ctx context.Context, limit int) ([]*model.Task, error) {
		mu.Lock()
		defer mu.Unlock()
		if done {
			return nil, nil
		}
		done = true
		if len(tasks) > limit {
			return tasks[:limit], nil
		}
		return tasks, nil
	}
}

// waitUntil は条件が成立するまでRunOnceを繰り返す。
func waitUntil(t *testing.T, d *Dispatcher, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if err := d.RunOnce(context.Background()); err != nil {
			t.Fatalf("RunOnce() error = %v", err)
		}
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func wipTask(id int64, kind model.TaskKind) *model.Task {
	return &model.Task{ID: id, Kind: kind, Payload: "{}", State: model.TaskStateWip}
}

// 成功した結果がDONEへ反映されることを検証
func TestDispatcher_RunOnce_Success(t *testing.T) {
	store := newMockStore(claimOnce(wipTask(1, model.TaskKindVideoDownload)))
	workers := map[model.TaskKind]task.Worker{
		model.TaskKindVideoDownload: funcWorker(func(ctx context.Context, t *model.Task) model.ErrCode {
			return model.ErrCodeNone
		}),
	}
	d := NewDispatcher(store, workers, 3, 3, testLogger(), nil)

	waitUntil(t, d, func() bool {
		state, ok := store.markedState(1)
		return ok && state == model.TaskStateDone
	})
}

// 未定義の種別がワーカーを起動せずERR(-501)になることを検証
func TestDispatcher_RunOnce_UnknownKind(t *testing.T) {
	store := newMockStore(claimOnce(wipTask(1, model.TaskKind("BOGUS"))))
	d := NewDispatcher(store, map[model.TaskKind]task.Worker{}, 3, 3, testLogger(), nil)

	if err := d.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	state, ok := store.markedState(1)
	if !ok || state != model.TaskStateErr {
		t.Fatalf("marked state = %v, want ERR", state)
	}
	store.mu.Lock()
	code := store.codes[1]
	store.mu.Unlock()
	if code != model.ErrCodeUnknownKind {
		t.Errorf("code = %d, want %d", code, model.ErrCodeUnknownKind)
	}
}

// 再試行可能な失敗がRetry経由で反映されることを検証
func TestDispatcher_RunOnce_RetryableFailure(t *testing.T) {
	store := newMockStore(claimOnce(wipTask(1, model.TaskKindVideoDownload)))
	workers := map[model.TaskKind]task.Worker{
		model.TaskKindVideoDownload: funcWorker(func(ctx context.Context, t *model.Task) model.ErrCode {
			return model.ErrCodeDownloadFailed
		}),
	}
	d := NewDispatcher(store, workers, 3, 3, testLogger(), nil)

	waitUntil(t, d, func() bool {
		code, ok := store.retriedCode(1)
		return ok && code == model.ErrCodeDownloadFailed
	})

	// Markは呼ばれない（遷移はRetryが行う）
	if _, ok := store.markedState(1); ok {
		t.Error("Mark should not be called for retryable failures")
	}
}

// 再試行不能な失敗がERRへ直行することを検証
func TestDispatcher_RunOnce_NonRetryableFailure(t *testing.T) {
	store := newMockStore(claimOnce(wipTask(1, model.TaskKindChannelAdd)))
	workers := map[model.TaskKind]task.Worker{
		model.TaskKindChannelAdd: funcWorker(func(ctx context.Context, t *model.Task) model.ErrCode {
			return model.ErrCodeConflict
		}),
	}
	d := NewDispatcher(store, workers, 3, 3, testLogger(), nil)

	waitUntil(t, d, func() bool {
		state, ok := store.markedState(1)
		return ok && state == model.TaskStateErr
	})

	store.mu.Lock()
	code := store.codes[1]
	store.mu.Unlock()
	if code != model.ErrCodeConflict {
		t.Errorf("code = %d, want %d", code, model.ErrCodeConflict)
	}
	if _, retried := store.retriedCode(1); retried {
		t.Error("conflict should not be retried")
	}
}

// ワーカーのpanicが-599の失敗として反映されることを検証
func TestDispatcher_RunOnce_WorkerPanic(t *testing.T) {
	store := newMockStore(claimOnce(wipTask(1, model.TaskKindVideoDownload)))
	workers := map[model.TaskKind]task.Worker{
		model.TaskKindVideoDownload: funcWorker(func(ctx context.Context, t *model.Task) model.ErrCode {
			panic("boom")
		}),
	}
	d := NewDispatcher(store, workers, 3, 3, testLogger(), nil)

	waitUntil(t, d, func() bool {
		state, ok := store.markedState(1)
		return ok && state == model.TaskStateErr
	})

	store.mu.Lock()
	code := store.codes[1]
	store.mu.Unlock()
	if code != model.ErrCodeInternal {
		t.Errorf("code = %d, want %d", code, model.ErrCodeInternal)
	}
}

// 並列度1で2件目がブロックされ、1件目の完了後に実行されることを検証
func TestDispatcher_BudgetOneSerializes(t *testing.T) {
	queue := []*model.Task{
		wipTask(1, model.TaskKindVideoDownload),
		wipTask(2, model.TaskKindVideoDownload),
	}
	var mu sync.Mutex
	store := newMockStore(func(ctx context.Context, limit int) ([]*model.Task, error) {
		mu.Lock()
		defer mu.Unlock()
		n := limit
		if n > len(queue) {
			n = len(queue)
		}
		claimed := queue[:n]
		queue = queue[n:]
		return claimed, nil
	})

	release := make(chan struct{})
	workers := map[model.TaskKind]task.Worker{
		model.TaskKindVideoDownload: funcWorker(func(ctx context.Context, t *model.Task) model.ErrCode {
			if t.ID == 1 {
				<-release
			}
			return model.ErrCodeNone
		}),
	}
	d := NewDispatcher(store, workers, 1, 3, testLogger(), nil)

	// 1件目を取得してブロック中
	if err := d.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	// 予算が埋まっている間は取得自体が行われない
	if err := d.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	store.mu.Lock()
	claims := store.claimCalls
	store.mu.Unlock()
	if claims != 1 {
		t.Fatalf("claim calls = %d, want 1 (budget exhausted)", claims)
	}

	close(release)
	waitUntil(t, d, func() bool {
		state, ok := store.markedState(2)
		return ok && state == model.TaskStateDone
	})
}

// シャットダウンで新規取得を止め、実行中の報告を待ってから戻ることを検証
func TestDispatcher_Start_DrainsOnShutdown(t *testing.T) {
	store := newMockStore(claimOnce(wipTask(1, model.TaskKindVideoDownload)))

	release := make(chan struct{})
	workers := map[model.TaskKind]task.Worker{
		model.TaskKindVideoDownload: funcWorker(func(ctx context.Context, t *model.Task) model.ErrCode {
			<-release
			// ワーカーのコンテキストはシャットダウンでもキャンセルされない
			if ctx.Err() != nil {
				return model.ErrCodeInternal
			}
			return model.ErrCodeNone
		}),
	}
	d := NewDispatcher(store, workers, 3, 3, testLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		d.Start(ctx, 10*time.Millisecond)
		close(stopped)
	}()

	// タスクが取得されるのを待つ
	deadline := time.Now().Add(2 * time.Second)
	for {
		store.mu.Lock()
		claimed := store.claimCalls > 0
		store.mu.Unlock()
		if claimed {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("task was not claimed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	close(release)

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop")
	}

	state, ok := store.markedState(1)
	if !ok || state != model.TaskStateDone {
		t.Errorf("marked state = %v, want DONE", state)
	}
}
