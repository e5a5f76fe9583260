package model

import "time"

// Video はチャンネルに属する既知の動画を表す。
// (Domain, VideoID) は一意。ReleaseDateは確定した公開日、
// ReleaseDateEstimateは一覧取得時にしか得られない概算日。
// 重複アップサートはタイムスタンプの更新のみを行い、
// 既知のフラグや確定日を黙って上書きしてはならない。
type Video struct {
	ID                  int64
	ChannelID           *int64 // 未登録チャンネルの動画はnil
	Domain              string
	URL                 string
	Name                string
	VideoID             string // ソース側の動画識別子
	IsRequested         bool
	IsDownloaded        bool
	ReleaseDate         *time.Time
	ReleaseDateEstimate *time.Time
	UpdatedAt           time.Time
}
