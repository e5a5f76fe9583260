// Package model はドメインモデルを定義する。
package model

import (
	"encoding/json"
	"time"
)

// TaskKind はタスクの種別を表す。ワイヤ値はAPI層と共有する安定文字列。
type TaskKind string

const (
	// TaskKindVideoDownload は動画1本のダウンロードタスク。
	TaskKindVideoDownload TaskKind = "VIDEO-DOWNLOAD"
	// TaskKindChannelAdd はチャンネル登録タスク。
	TaskKindChannelAdd TaskKind = "CHANNEL-ADD"
	// TaskKindChannelFetch はチャンネルの動画一覧更新タスク。
	TaskKindChannelFetch TaskKind = "CHANNEL-FETCH"
)

// ValidTaskKind はワイヤ値が定義済みのタスク種別かを判定する。
// 大文字小文字は区別する。
func ValidTaskKind(s string) bool {
	switch TaskKind(s) {
	case TaskKindVideoDownload, TaskKindChannelAdd, TaskKindChannelFetch:
		return true
	}
	return false
}

// TaskState はタスクのライフサイクル状態を表す。
// 1回の試行内では WAIT → WIP → {DONE|ERR} と単調に遷移する。
// FAIL はリトライ上限を超過した終端状態。
type TaskState string

const (
	// TaskStateWait は実行待ち状態。
	TaskStateWait TaskState = "WAIT"
	// TaskStateWip はワーカーが実行中の状態。
	TaskStateWip TaskState = "WIP"
	// TaskStateErr は実行失敗の終端状態。
	TaskStateErr TaskState = "ERR"
	// TaskStateDone は実行成功の終端状態。
	TaskStateDone TaskState = "DONE"
	// TaskStateFail はリトライ上限超過の終端状態。
	TaskStateFail TaskState = "FAIL"
)

// Terminal は状態が終端（これ以上遷移しない）かを返す。
func (s TaskState) Terminal() bool {
	switch s {
	case TaskStateErr, TaskStateDone, TaskStateFail:
		return true
	}
	return false
}

// Task はキューに積まれた作業単位を表す。
// Payloadは作成後イミュータブルで、種別ごとの構造を持つJSONテキスト。
type Task struct {
	ID         int64
	Kind       TaskKind
	Payload    string
	State      TaskState
	RetryCount int
	LastError  ErrCode
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// DownloadPayload はVIDEO-DOWNLOADタスクのペイロード。
type DownloadPayload struct {
	URL string `json:"url"`
}

// ChannelAddPayload はCHANNEL-ADDタスクのペイロード。
type ChannelAddPayload struct {
	URL string `json:"url"`
}

// ChannelFetchPayload はCHANNEL-FETCHタスクのペイロード。
type ChannelFetchPayload struct {
	Domain    string `json:"domain"`
	ChannelID string `json:"channel_id"`
}

// DecodePayload はタスクのペイロードを種別ごとの構造体にデコードする。
func DecodePayload(t *Task, v any) error {
	return json.Unmarshal([]byte(t.Payload), v)
}
