package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService は外部から受け取った表示用文字列の無害化インターフェース。
// プロフィール名やページ名など、Graph APIから得たテキストに使用する。
type TextSanitizerService interface {
	// SanitizeText はHTMLタグをすべて除去したプレーンテキストを返す。
	// エスケープは出力側（html/template、JSON）に任せるため、実体参照は元に戻す。
	SanitizeText(s string) string
}

// textSanitizer はbluemondayのStrictPolicyでタグを除去する。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerServiceの新しいインスタンスを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

func (s *textSanitizer) SanitizeText(in string) string {
	if in == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(in)))
}
