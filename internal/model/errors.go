package model

import "fmt"

// ErrCode はワーカーの失敗クラスを表す負の診断コード。
// 0は成功。コードはタスク行のlast_error列に記録され、APIの
// 読み取りプロジェクション経由で利用者に見える。
type ErrCode int

const (
	// ErrCodeNone は成功（エラーなし）。
	ErrCodeNone ErrCode = 0
	// ErrCodeUnsupportedDomain は未対応ドメインのURLが投入された。
	ErrCodeUnsupportedDomain ErrCode = -400
	// ErrCodeBadPayload はペイロードのデコードに失敗した。
	ErrCodeBadPayload ErrCode = -500
	// ErrCodeUnknownKind は未定義のタスク種別だった。
	ErrCodeUnknownKind ErrCode = -501
	// ErrCodeResolveFailed はメタデータ解決の subprocess 呼び出しに失敗した。
	ErrCodeResolveFailed ErrCode = -502
	// ErrCodeDecodeFailed は subprocess 出力のデコードに失敗した
	// （非UTF-8、またはフィールド数不一致）。
	ErrCodeDecodeFailed ErrCode = -503
	// ErrCodeDownloadFailed はダウンロードの subprocess 呼び出しに失敗した。
	ErrCodeDownloadFailed ErrCode = -504
	// ErrCodeStoreFailed はドメインテーブルへの書き込みに失敗した。
	ErrCodeStoreFailed ErrCode = -505
	// ErrCodeConflict は一意制約違反（重複登録）だった。
	ErrCodeConflict ErrCode = -506
	// ErrCodeInternal はワーカーのpanicから回復した。
	ErrCodeInternal ErrCode = -599
)

// Retryable はこの失敗クラスが再実行で解消しうるかを返す。
// 不正なペイロードや未対応ドメイン、一意制約違反は何度実行しても
// 結果が変わらないため即座にERRへ遷移させる。
func (c ErrCode) Retryable() bool {
	switch c {
	case ErrCodeResolveFailed, ErrCodeDecodeFailed, ErrCodeDownloadFailed, ErrCodeStoreFailed:
		return true
	}
	return false
}

// Outcome はワーカーが報告する終端結果。
// ワーカーは1タスクにつき必ず1回だけOutcomeを送出する。
type Outcome struct {
	TaskID int64
	Code   ErrCode
}

// Success は成功結果かを返す。
func (o Outcome) Success() bool {
	return o.Code == ErrCodeNone
}

// String はログ用の表現を返す。
func (o Outcome) String() string {
	if o.Success() {
		return fmt.Sprintf("task %d: ok", o.TaskID)
	}
	return fmt.Sprintf("task %d: err %d", o.TaskID, o.Code)
}

// ErrChannelConflict はチャンネルの一意制約違反を表す番兵エラー。
// (domain, channel_id) または (domain, 正規化名) の衝突で返される。
var ErrChannelConflict = fmt.Errorf("チャンネルは既に登録されています")
