// Package mediafs はダウンロード成果物のメディアツリーへの移動を提供する。
package mediafs

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// MoveWithPrefix は一時ディレクトリ内の、名前がprefixで始まる通常ファイルを
// すべて宛先ディレクトリへ移動し、移動できた件数を返す。
//
// 移動はコピー → 検証 → 削除の順で行う。元ファイルの削除前にパスを
// 正規化し、今なお一時ディレクトリ内に解決されることを確認する。
// シンボリックリンク経由で外側に解決されるパスは削除をスキップして
// 警告を出す（コピーは既に行われている可能性がある）。この順序により、
// 処理途中のクラッシュでファイルの唯一のコピーが失われることはない。
//
// 個々のファイルの失敗はログに記録して続行する。一時ディレクトリ自体を
// 読めない場合のみエラーを返す。
func MoveWithPrefix(logger *slog.Logger, scratchDir, destDir, prefix string) (int, error) {
	entries, err := os.ReadDir(scratchDir)
	if err != nil {
		return 0, fmt.Errorf("一時ディレクトリの走査に失敗しました: %w", err)
	}

	canonicalScratch, err := filepath.EvalSymlinks(scratchDir)
	if err != nil {
		return 0, fmt.Errorf("一時ディレクトリの正規化に失敗しました: %w", err)
	}

	moved := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, prefix) {
			continue
		}

		src := filepath.Join(scratchDir, name)
		dst := filepath.Join(destDir, name)

		if err := copyFile(src, dst); err != nil {
			logger.Error("ファイルのコピーに失敗しました",
				slog.String("src", src),
				slog.String("dst", dst),
				slog.String("error", err.Error()),
			)
			continue
		}

		// 削除前の封じ込め検証。コピー後にリンクが差し替えられた場合や
		// レースで外へ解決されるようになった場合は削除しない。
		canonicalSrc, err := filepath.EvalSymlinks(src)
		if err != nil {
			logger.Warn("元ファイルの正規化に失敗したため削除をスキップします",
				slog.String("src", src),
				slog.String("error", err.Error()),
			)
			moved++
			continue
		}
		if !insideDir(canonicalScratch, canonicalSrc) {
			logger.Warn("一時ディレクトリ外に解決されるため削除をスキップします",
				slog.String("src", src),
				slog.String("resolved", canonicalSrc),
			)
			moved++
			continue
		}

		if err := os.Remove(canonicalSrc); err != nil {
			logger.Warn("元ファイルの削除に失敗しました",
				slog.String("src", canonicalSrc),
				slog.String("error", err.Error()),
			)
		}
		moved++
	}

	return moved, nil
}

// copyFile はsrcをdstへコピーする。dstは上書きされる。
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// insideDir はpathがdir配下に含まれるかを返す。両引数とも正規化済みの
// 絶対パスであること。
func insideDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
