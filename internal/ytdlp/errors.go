package ytdlp

import "errors"

// 失敗クラスを呼び出し側で区別するための番兵エラー。
// ツールの起動失敗・非ゼロ終了はErrInvoke、出力が読めない場合
// （非UTF-8、フィールド数不一致、空出力）はErrDecodeで包む。
var (
	ErrInvoke = errors.New("抽出ツールの呼び出しに失敗しました")
	ErrDecode = errors.New("抽出ツールの出力をデコードできませんでした")
)
