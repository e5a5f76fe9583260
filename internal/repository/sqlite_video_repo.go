package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/vodman/internal/model"
)

// SQLiteVideoRepo はSQLiteを使用した動画リポジトリ。
type SQLiteVideoRepo struct {
	db *sql.DB
}

// NewSQLiteVideoRepo はSQLiteVideoRepoを生成する。
func NewSQLiteVideoRepo(db *sql.DB) *SQLiteVideoRepo {
	return &SQLiteVideoRepo{db: db}
}

// UpsertListing は一覧取得で見つけた動画を登録する。
// (domain, video_id)が既存の場合はupdated_atのみ更新する。
// 既存行の確定日付やフラグは一覧取得の概算値で上書きしない。
func (r *SQLiteVideoRepo) UpsertListing(ctx context.Context, v *model.Video) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO videos (channel_id, domain, url, video_name, video_id,
		                     is_requested, is_downloaded, release_date, release_date_estimate, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (domain, video_id) DO UPDATE SET
		    updated_at = excluded.updated_at`,
		v.ChannelID, v.Domain, v.URL, v.Name, v.VideoID,
		v.IsRequested, v.IsDownloaded, v.ReleaseDate, v.ReleaseDateEstimate,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("動画の一覧登録に失敗しました: %w", err)
	}
	return nil
}

// RecordDownloaded はダウンロード完了後の動画情報を登録する。
// 既存行に対しては名前を更新し、確定日付は新値を優先、概算日付は既存値を
// 優先して埋め、リクエスト済み・ダウンロード済みフラグを立てる。
func (r *SQLiteVideoRepo) RecordDownloaded(ctx context.Context, v *model.Video) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO videos (channel_id, domain, url, video_name, video_id,
		                     is_requested, is_downloaded, release_date, release_date_estimate, updated_at)
		 VALUES (?, ?, ?, ?, ?, 1, 1, ?, ?, ?)
		 ON CONFLICT (domain, video_id) DO UPDATE SET
		    channel_id = COALESCE(excluded.channel_id, videos.channel_id),
		    video_name = excluded.video_name,
		    is_requested = 1,
		    is_downloaded = 1,
		    release_date = COALESCE(excluded.release_date, videos.release_date),
		    release_date_estimate = COALESCE(videos.release_date_estimate, excluded.release_date_estimate),
		    updated_at = excluded.updated_at`,
		v.ChannelID, v.Domain, v.URL, v.Name, v.VideoID,
		v.ReleaseDate, v.ReleaseDateEstimate,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("動画のダウンロード記録に失敗しました: %w", err)
	}
	return nil
}

// FindByID は指定IDの動画を取得する。見つからない場合はnilを返す。
func (r *SQLiteVideoRepo) FindByID(ctx context.Context, id int64) (*model.Video, error) {
	v := &model.Video{}
	var channelID sql.NullInt64
	var releaseDate, releaseDateEstimate sql.NullTime

	err := r.db.QueryRowContext(ctx,
		`SELECT id, channel_id, domain, url, video_name, video_id,
		        is_requested, is_downloaded, release_date, release_date_estimate, updated_at
		 FROM videos WHERE id = ?`,
		id,
	).Scan(
		&v.ID, &channelID, &v.Domain, &v.URL, &v.Name, &v.VideoID,
		&v.IsRequested, &v.IsDownloaded, &releaseDate, &releaseDateEstimate, &v.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("動画の取得に失敗しました: %w", err)
	}

	applyVideoNulls(v, channelID, releaseDate, releaseDateEstimate)
	return v, nil
}

// MarkRequested は動画のリクエスト済みフラグを立てる。
func (r *SQLiteVideoRepo) MarkRequested(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE videos SET is_requested = 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("動画のリクエスト記録に失敗しました: %w", err)
	}
	return nil
}

// ListByChannel は指定チャンネルの動画を公開日降順で返す。
// 確定日がない行は概算日で並べ、どちらもない行は末尾に置く。
func (r *SQLiteVideoRepo) ListByChannel(ctx context.Context, channelID int64) ([]*model.Video, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, channel_id, domain, url, video_name, video_id,
		        is_requested, is_downloaded, release_date, release_date_estimate, updated_at
		 FROM videos WHERE channel_id = ?
		 ORDER BY COALESCE(release_date, release_date_estimate) DESC NULLS LAST, id DESC`,
		channelID,
	)
	if err != nil {
		return nil, fmt.Errorf("チャンネル動画一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var videos []*model.Video
	for rows.Next() {
		v := &model.Video{}
		var chID sql.NullInt64
		var releaseDate, releaseDateEstimate sql.NullTime
		if err := rows.Scan(
			&v.ID, &chID, &v.Domain, &v.URL, &v.Name, &v.VideoID,
			&v.IsRequested, &v.IsDownloaded, &releaseDate, &releaseDateEstimate, &v.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("動画行の読み取りに失敗しました: %w", err)
		}
		applyVideoNulls(v, chID, releaseDate, releaseDateEstimate)
		videos = append(videos, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("チャンネル動画一覧の走査に失敗しました: %w", err)
	}
	return videos, nil
}

// List は動画をID降順で最大limit件返す。
// requestedOnlyが真の場合はリクエスト済みの行に絞る。
func (r *SQLiteVideoRepo) List(ctx context.Context, requestedOnly bool, limit int) ([]*model.Video, error) {
	query := `SELECT id, channel_id, domain, url, video_name, video_id,
	                 is_requested, is_downloaded, release_date, release_date_estimate, updated_at
	          FROM videos`
	if requestedOnly {
		query += ` WHERE is_requested = 1`
	}
	query += ` ORDER BY id DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("動画一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var videos []*model.Video
	for rows.Next() {
		v := &model.Video{}
		var chID sql.NullInt64
		var releaseDate, releaseDateEstimate sql.NullTime
		if err := rows.Scan(
			&v.ID, &chID, &v.Domain, &v.URL, &v.Name, &v.VideoID,
			&v.IsRequested, &v.IsDownloaded, &releaseDate, &releaseDateEstimate, &v.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("動画行の読み取りに失敗しました: %w", err)
		}
		applyVideoNulls(v, chID, releaseDate, releaseDateEstimate)
		videos = append(videos, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("動画一覧の走査に失敗しました: %w", err)
	}
	return videos, nil
}

func applyVideoNulls(v *model.Video, channelID sql.NullInt64, releaseDate, releaseDateEstimate sql.NullTime) {
	if channelID.Valid {
		v.ChannelID = &channelID.Int64
	}
	if releaseDate.Valid {
		v.ReleaseDate = &releaseDate.Time
	}
	if releaseDateEstimate.Valid {
		v.ReleaseDateEstimate = &releaseDateEstimate.Time
	}
}

// compile-time interface check
var _ VideoRepository = (*SQLiteVideoRepo)(nil)
