package ytdlp

import (
	"fmt"
	"strings"
)

// fieldToken はフィールド区切りトークン。フィールド値に現れないことを
// 期待できる特徴的な文字列で、ツール側の出力テンプレートと共有する。
const fieldToken = "SPLITATTHISPOINT"

// naSentinel はツールがフィールド欠落を表すのに使うリテラル。
// デコード境界で空文字列（欠落）へ写像し、業務ロジックには漏らさない。
const naSentinel = "NA"

// 各モードのフィールド数。
const (
	videoFieldCount   = 5
	channelFieldCount = 2
	listingFieldCount = 6
)

// splitRecord は1行をトークンで分割し、各フィールドをトリムして返す。
// "NA"リテラルは空文字列に写像する。フィールド数が合わない行はエラー。
func splitRecord(line string, arity int) ([]string, error) {
	parts := strings.Split(line, fieldToken)
	if len(parts) != arity {
		return nil, fmt.Errorf("フィールド数が不正です: got %d, want %d", len(parts), arity)
	}

	fields := make([]string, arity)
	for i, p := range parts {
		f := strings.TrimSpace(p)
		if f == naSentinel {
			f = ""
		}
		fields[i] = f
	}
	return fields, nil
}

// decodeVideoFields は5フィールドレコード1行をVideoFieldsへデコードする。
func decodeVideoFields(line string) (*VideoFields, error) {
	fields, err := splitRecord(line, videoFieldCount)
	if err != nil {
		return nil, err
	}
	return &VideoFields{
		ChannelID:   fields[0],
		ChannelName: fields[1],
		UploadDate:  fields[2],
		Title:       fields[3],
		VideoID:     fields[4],
	}, nil
}

// decodeListingRecord は6フィールドレコード1行をListingRecordへデコードする。
func decodeListingRecord(line string) (ListingRecord, error) {
	fields, err := splitRecord(line, listingFieldCount)
	if err != nil {
		return ListingRecord{}, err
	}
	return ListingRecord{
		ChannelID:   fields[0],
		ChannelName: fields[1],
		URL:         fields[2],
		UploadDate:  fields[3],
		Title:       fields[4],
		VideoID:     fields[5],
	}, nil
}

// nonEmptyLines は出力からトリム済みの非空行を返す。
func nonEmptyLines(out string) []string {
	var lines []string
	for _, line := range strings.Split(out, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return lines
}
