// Package task はタスク種別ごとのワーカー実装を提供する。
// ワーカーはタスク1件を実行して診断コードを返すだけで、
// タスク行の状態遷移はディスパッチャの責務とする。
package task

import (
	"context"
	"errors"
	"strings"

	"github.com/hitoshi/vodman/internal/model"
	"github.com/hitoshi/vodman/internal/ytdlp"
)

// Worker はタスク1件を実行し、結果の診断コードを返す。
// 成功時はmodel.ErrCodeNoneを返す。期待される失敗でpanicしてはならない。
type Worker interface {
	Run(ctx context.Context, t *model.Task) model.ErrCode
}

// adapterCode は抽出ツール呼び出しの失敗を診断コードへ分類する。
// 出力のデコード不能は-503、それ以外（起動失敗・非ゼロ終了）はinvokeCodeになる。
func adapterCode(err error, invokeCode model.ErrCode) model.ErrCode {
	if errors.Is(err, ytdlp.ErrDecode) {
		return model.ErrCodeDecodeFailed
	}
	return invokeCode
}

// pathSafe はファイル名・ディレクトリ名に使う文字列からパス区切りを除く。
func pathSafe(s string) string {
	s = strings.ReplaceAll(s, "/", "-")
	return strings.ReplaceAll(s, "\x00", "")
}
