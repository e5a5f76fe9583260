package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/vodman/internal/model"
)

// mockVideoStore はVideoStoreのテストダブル。
type mockVideoStore struct {
	listFunc          func(ctx context.Context, requestedOnly bool, limit int) ([]*model.Video, error)
	findFunc          func(ctx context.Context, id int64) (*model.Video, error)
	markRequestedFunc func(ctx context.Context, id int64) error
}

func (m *mockVideoStore) List(ctx context.Context, requestedOnly bool, limit int) ([]*model.Video, error) {
	if m.listFunc == nil {
		return nil, errors.New("listFuncが未設定です")
	}
	return m.listFunc(ctx, requestedOnly, limit)
}

func (m *mockVideoStore) FindByID(ctx context.Context, id int64) (*model.Video, error) {
	if m.findFunc == nil {
		return nil, errors.New("findFuncが未設定です")
	}
	return m.findFunc(ctx, id)
}

func (m *mockVideoStore) MarkRequested(ctx context.Context, id int64) error {
	if m.markRequestedFunc == nil {
		return errors.New("markRequestedFuncが未設定です")
	}
	return m.markRequestedFunc(ctx, id)
}

func TestVideoHandler_List_requestedフィルター(t *testing.T) {
	var gotRequestedOnly bool
	store := &mockVideoStore{
		listFunc: func(ctx context.Context, requestedOnly bool, limit int) ([]*model.Video, error) {
			gotRequestedOnly = requestedOnly
			return nil, nil
		},
	}
	h := NewVideoHandler(store, &mockQueue{}, newTestLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/videos?requested=true", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !gotRequestedOnly {
		t.Error("requested=trueがフィルターに反映されていない")
	}
}

func TestVideoHandler_Request_フラグとタスク投入(t *testing.T) {
	var marked int64
	store := &mockVideoStore{
		findFunc: func(ctx context.Context, id int64) (*model.Video, error) {
			return &model.Video{ID: id, URL: "https://youtube.com/watch?v=abc"}, nil
		},
		markRequestedFunc: func(ctx context.Context, id int64) error {
			marked = id
			return nil
		},
	}
	var gotKind model.TaskKind
	var gotPayload string
	queue := &mockQueue{
		enqueueFunc: func(ctx context.Context, kind model.TaskKind, payload string) (int64, error) {
			gotKind = kind
			gotPayload = payload
			return 42, nil
		},
	}
	h := NewVideoHandler(store, queue, newTestLogger())

	req := newChiRequest(http.MethodPost, "/api/videos/5/request", "id", "5")
	rec := httptest.NewRecorder()
	h.Request(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	if marked != 5 {
		t.Errorf("MarkRequested対象 = %d, want 5", marked)
	}
	if gotKind != model.TaskKindVideoDownload {
		t.Errorf("kind = %v, want VIDEO-DOWNLOAD", gotKind)
	}

	var p model.DownloadPayload
	if err := json.Unmarshal([]byte(gotPayload), &p); err != nil {
		t.Fatalf("ペイロードのデコードに失敗: %v", err)
	}
	if p.URL != "https://youtube.com/watch?v=abc" {
		t.Errorf("payload url = %q", p.URL)
	}

	var resp map[string]int64
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("レスポンスのデコードに失敗: %v", err)
	}
	if resp["task_id"] != 42 {
		t.Errorf("task_id = %d, want 42", resp["task_id"])
	}
}

func TestVideoHandler_Request_存在しない動画は404(t *testing.T) {
	store := &mockVideoStore{
		findFunc: func(ctx context.Context, id int64) (*model.Video, error) {
			return nil, nil
		},
	}
	h := NewVideoHandler(store, &mockQueue{}, newTestLogger())

	req := newChiRequest(http.MethodPost, "/api/videos/999/request", "id", "999")
	rec := httptest.NewRecorder()
	h.Request(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestVideoHandler_Request_ダウンロード済みは409(t *testing.T) {
	store := &mockVideoStore{
		findFunc: func(ctx context.Context, id int64) (*model.Video, error) {
			return &model.Video{ID: id, IsDownloaded: true}, nil
		},
	}
	h := NewVideoHandler(store, &mockQueue{}, newTestLogger())

	req := newChiRequest(http.MethodPost, "/api/videos/5/request", "id", "5")
	rec := httptest.NewRecorder()
	h.Request(rec, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestVideoHandler_Request_不正なIDは400(t *testing.T) {
	h := NewVideoHandler(&mockVideoStore{}, &mockQueue{}, newTestLogger())

	req := newChiRequest(http.MethodPost, "/api/videos/abc/request", "id", "abc")
	rec := httptest.NewRecorder()
	h.Request(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
