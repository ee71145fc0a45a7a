package handler

import (
	"net/http"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// 表示ラベルを提供する言語。先頭が既定。
var supportedLanguages = []language.Tag{
	language.English,
	language.SimplifiedChinese,
	language.Japanese,
}

var languageMatcher = language.NewMatcher(supportedLanguages)

func init() {
	labels := map[string][3]string{
		"NOT_YET_VALID": {"Not yet valid", "未生效", "有効期間前"},
		"VALID":         {"Valid", "有效", "有効"},
		"EXPIRED":       {"Expired", "过期", "期限切れ"},
		"REVOKED":       {"Revoked", "吊销", "失効"},
		"PENDING":       {"Pending", "待审核", "承認待ち"},
		"APPROVED":      {"Approved", "已批准", "承認済み"},
		"REJECTED":      {"Rejected", "已拒绝", "却下"},
	}
	for key, texts := range labels {
		for i, tag := range supportedLanguages {
			if err := message.SetString(tag, key, texts[i]); err != nil {
				panic(err)
			}
		}
	}
}

// labeler は状態の列挙値を表示用の文言に変換する。
type labeler struct {
	printer *message.Printer
}

// labelerFor は Accept-Language ヘッダに最も合う言語の labeler を返す。
func labelerFor(r *http.Request) labeler {
	tags, _, _ := language.ParseAcceptLanguage(r.Header.Get("Accept-Language"))
	_, index, _ := languageMatcher.Match(tags...)
	return labeler{printer: message.NewPrinter(supportedLanguages[index])}
}

// Label は列挙値の表示ラベルを返す。
func (l labeler) Label(value string) string {
	return l.printer.Sprintf(value)
}
