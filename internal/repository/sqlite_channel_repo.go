package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/vodman/internal/model"
	sqlite3 "github.com/mattn/go-sqlite3"
)

// SQLiteChannelRepo はSQLiteを使用したチャンネルリポジトリ。
type SQLiteChannelRepo struct {
	db *sql.DB
}

// NewSQLiteChannelRepo はSQLiteChannelRepoを生成する。
func NewSQLiteChannelRepo(db *sql.DB) *SQLiteChannelRepo {
	return &SQLiteChannelRepo{db: db}
}

// Insert は新規チャンネルを登録し、採番されたIDをch.IDへ書き戻す。
// 一意制約違反はmodel.ErrChannelConflictへ変換する。
func (r *SQLiteChannelRepo) Insert(ctx context.Context, ch *model.Channel) error {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO channels (domain, url, channel_id, channel_name, channel_name_normalized, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		ch.Domain, ch.URL, ch.ChannelID, ch.Name, ch.NameNormalized, now,
	)
	if err != nil {
		if isConstraintViolation(err) {
			return model.ErrChannelConflict
		}
		return fmt.Errorf("チャンネルの登録に失敗しました: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("チャンネルIDの取得に失敗しました: %w", err)
	}
	ch.ID = id
	ch.UpdatedAt = now
	return nil
}

// FindBySourceID は(domain, channel_id)でチャンネルを検索する。見つからない場合はnilを返す。
func (r *SQLiteChannelRepo) FindBySourceID(ctx context.Context, domain, channelID string) (*model.Channel, error) {
	return r.findOne(ctx,
		`SELECT id, domain, url, channel_id, channel_name, channel_name_normalized, updated_at
		 FROM channels WHERE domain = ? AND channel_id = ?`,
		domain, channelID,
	)
}

// FindByNormalizedName は(domain, 正規化名)でチャンネルを検索する。見つからない場合はnilを返す。
func (r *SQLiteChannelRepo) FindByNormalizedName(ctx context.Context, domain, nameNormalized string) (*model.Channel, error) {
	return r.findOne(ctx,
		`SELECT id, domain, url, channel_id, channel_name, channel_name_normalized, updated_at
		 FROM channels WHERE domain = ? AND channel_name_normalized = ?`,
		domain, nameNormalized,
	)
}

func (r *SQLiteChannelRepo) findOne(ctx context.Context, query string, args ...any) (*model.Channel, error) {
	ch := &model.Channel{}
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&ch.ID, &ch.Domain, &ch.URL, &ch.ChannelID, &ch.Name, &ch.NameNormalized, &ch.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("チャンネルの検索に失敗しました: %w", err)
	}
	return ch, nil
}

// List は全チャンネルをID昇順で返す。
func (r *SQLiteChannelRepo) List(ctx context.Context) ([]*model.Channel, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, domain, url, channel_id, channel_name, channel_name_normalized, updated_at
		 FROM channels ORDER BY id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("チャンネル一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var channels []*model.Channel
	for rows.Next() {
		ch := &model.Channel{}
		if err := rows.Scan(
			&ch.ID, &ch.Domain, &ch.URL, &ch.ChannelID, &ch.Name, &ch.NameNormalized, &ch.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("チャンネル行の読み取りに失敗しました: %w", err)
		}
		channels = append(channels, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("チャンネル一覧の走査に失敗しました: %w", err)
	}
	return channels, nil
}

// isConstraintViolation はSQLiteの一意制約違反かを判定する。
func isConstraintViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}

// compile-time interface check
var _ ChannelRepository = (*SQLiteChannelRepo)(nil)
