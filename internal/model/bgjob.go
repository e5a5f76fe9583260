package model

import "time"

// 定義済みの定期ジョブ名。background_jobsテーブルのシード行と対応する。
const (
	// BackgroundJobQueueClean は終端状態の古いタスク行を削除するジョブ。
	BackgroundJobQueueClean = "QUEUE-CLEAN"
	// BackgroundJobChannelRefresh は全登録チャンネルの新着動画を取り込むジョブ。
	BackgroundJobChannelRefresh = "CHANNEL-REFRESH"
)

// BackgroundJob は一定間隔で発火する永続メンテナンスジョブを表す。
// now - LastExec >= Interval のときにのみ発火し、発火時にLastExecを
// 即座に更新することで、ジョブ本体が遅くても失敗しても同一間隔内の
// 再発火を防ぐ。
type BackgroundJob struct {
	ID       int64
	Name     string
	LastExec time.Time
	Interval time.Duration
}

// Due は現在時刻nowにおいてジョブが発火すべきかを返す。
func (j *BackgroundJob) Due(now time.Time) bool {
	return now.Sub(j.LastExec) >= j.Interval
}
