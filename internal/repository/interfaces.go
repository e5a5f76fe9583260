// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/vodman/internal/model"
)

// TaskRepository はタスクキューの永続化インターフェース。
type TaskRepository interface {
	// Enqueue は新規タスクをWAIT状態で投入し、採番されたIDを返す。
	Enqueue(ctx context.Context, kind model.TaskKind, payload string) (int64, error)

	// ClaimWaiting はWAIT状態のタスクを挿入順に最大limit件取得し、
	// 同一トランザクション内でWIPへ遷移させて返す。
	// 返されたタスクは他の呼び出しからは見えない。
	ClaimWaiting(ctx context.Context, limit int) ([]*model.Task, error)

	// Mark はWIP状態のタスクを終端状態へ遷移させ、診断コードを記録する。
	// すでに終端に達している行には作用しない。
	Mark(ctx context.Context, id int64, state model.TaskState, code model.ErrCode) error

	// Retry はWIP状態のタスクのretry_countを加算し、上限以内ならWAITへ、
	// 超過ならFAILへ単一の更新で遷移させる。
	Retry(ctx context.Context, id int64, code model.ErrCode, retryLimit int) error

	// SweepTerminal はolderThanより前にDONEまたはFAILへ達したタスク行を
	// 削除し、件数を返す。ERR行は診断用に残す。
	SweepTerminal(ctx context.Context, olderThan time.Time) (int64, error)

	// List はタスクをID降順で最大limit件返す。
	List(ctx context.Context, limit int) ([]*model.Task, error)
}

// ChannelRepository はチャンネルデータの永続化インターフェース。
type ChannelRepository interface {
	// Insert は新規チャンネルを登録する。
	// いずれかの一意制約に違反した場合はmodel.ErrChannelConflictを返す。
	Insert(ctx context.Context, ch *model.Channel) error

	// FindBySourceID は(domain, channel_id)でチャンネルを検索する。
	// 見つからない場合はnilを返す。
	FindBySourceID(ctx context.Context, domain, channelID string) (*model.Channel, error)

	// FindByNormalizedName は(domain, 正規化名)でチャンネルを検索する。
	// 見つからない場合はnilを返す。
	FindByNormalizedName(ctx context.Context, domain, nameNormalized string) (*model.Channel, error)

	// List は全チャンネルをID昇順で返す。
	List(ctx context.Context) ([]*model.Channel, error)
}

// VideoRepository は動画データの永続化インターフェース。
type VideoRepository interface {
	// UpsertListing は一覧取得で見つけた動画を登録する。
	// (domain, video_id)が既存の場合はupdated_atのみ更新し、
	// 確定済みの日付やフラグを上書きしない。
	UpsertListing(ctx context.Context, v *model.Video) error

	// RecordDownloaded はダウンロード完了後の動画情報を登録する。
	// 既存行に対しては名前を更新し、日付は確定値を優先して埋め、
	// ダウンロード済みフラグを立てる。フラグを落とす方向には作用しない。
	RecordDownloaded(ctx context.Context, v *model.Video) error

	// FindByID は指定IDの動画を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Video, error)

	// MarkRequested は動画のリクエスト済みフラグを立てる。
	MarkRequested(ctx context.Context, id int64) error

	// ListByChannel は指定チャンネルの動画を公開日降順で返す。
	ListByChannel(ctx context.Context, channelID int64) ([]*model.Video, error)

	// List は動画をID降順で最大limit件返す。
	// requestedOnlyが真の場合はリクエスト済みの行に絞る。
	List(ctx context.Context, requestedOnly bool, limit int) ([]*model.Video, error)
}

// SettingsRepository は実行時設定の永続化インターフェース。
type SettingsRepository interface {
	// All は全設定をキーと値のマップで返す。
	All(ctx context.Context) (map[string]string, error)

	// Get は指定キーの設定値を返す。キーが存在しない場合はエラーを返す。
	Get(ctx context.Context, key string) (string, error)

	// Set は設定値を冪等にUPSERTする。
	Set(ctx context.Context, key, value string) error
}

// BackgroundJobRepository は定期ジョブの発火時刻管理インターフェース。
type BackgroundJobRepository interface {
	// ListDue はnow時点で発火間隔を経過したジョブを返す。
	ListDue(ctx context.Context, now time.Time) ([]*model.BackgroundJob, error)

	// Touch はジョブの最終実行時刻をnowへ更新する。
	// ジョブ本体の実行前に呼ぶことで、本体が失敗しても同一間隔内の
	// 再発火を防ぐ。
	Touch(ctx context.Context, id int64, now time.Time) error
}
