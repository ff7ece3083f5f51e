package insights

import "strings"

// NoDataMessage はインサイトが空の場合に表示する文言。
const NoDataMessage = "No insights data available."

// DisplayMetricName はメトリクス名を表示用に整形する。
// 最初の"page_"を取り除き、続いて最初の"_"だけを空白に置き換える。
//
//	page_post_engagements          -> post engagements
//	page_post_reactions_like_total -> post reactions_like_total
func DisplayMetricName(name string) string {
	name = strings.Replace(name, "page_", "", 1)
	return strings.Replace(name, "_", " ", 1)
}
