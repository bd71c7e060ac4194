package mailreply

import (
	"regexp"
	"strings"
)

// FallbackBody 清洗后正文与 HTML 均为空时使用的占位正文。
const FallbackBody = "Email reply received"

var (
	// 纯文本引用标记：从命中行截断到结尾
	onWroteRe  = regexp.MustCompile(`(?mi)^on .+wrote:`)
	origMsgRe  = regexp.MustCompile(`(?mi)^-{2,}\s*original message`)
	fromLineRe = regexp.MustCompile(`(?m)^From:`)
	// 逐行删除的引用行（> 前缀）
	quotedLineRe = regexp.MustCompile(`(?m)^>[^\n]*\n?`)

	// HTML 引用容器。基于正则的文本级移除，不做完整 HTML 解析，
	// 对残缺标签容错（删不干净但绝不报错）。
	blockquoteRe = regexp.MustCompile(`(?is)<blockquote[^>]*>.*?</blockquote>`)
	gmailQuoteRe = regexp.MustCompile(`(?is)<div[^>]*class=["'][^"']*gmail_quote[^"']*["'][^>]*>.*?</div>`)

	// HTML 转纯文本
	scriptRe       = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleRe        = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	brRe           = regexp.MustCompile(`(?i)<br\s*/?\s*>`)
	pCloseRe       = regexp.MustCompile(`(?i)</p\s*>`)
	anyTagRe       = regexp.MustCompile(`<[^>]*>`)
	multiNewlineRe = regexp.MustCompile(`\n{2,}`)
)

var entityReplacer = strings.NewReplacer(
	"&nbsp;", " ",
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
)

// CleanEmailContent 同时清洗纯文本和 HTML 两个正文部分。
// 任一输入为空时对应输出为空字符串。
func CleanEmailContent(text, html string) (cleanText, cleanHTML string) {
	return CleanEmailText(text), CleanEmailHTML(html)
}

// CleanEmailText 去除纯文本正文中的引用回复内容。
//
// 按固定顺序执行：先从 "On ... wrote:" 行截断，再从连续横线 +
// "Original Message" 行截断，再从 "From:" 行截断，最后删除所有
// 以 > 开头的引用行，并去除首尾空白。
func CleanEmailText(text string) string {
	if text == "" {
		return ""
	}
	for _, re := range []*regexp.Regexp{onWroteRe, origMsgRe, fromLineRe} {
		if loc := re.FindStringIndex(text); loc != nil {
			text = text[:loc[0]]
		}
	}
	text = quotedLineRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// CleanEmailHTML 去除 HTML 正文中的引用容器。
//
// 非贪婪匹配一次只吃掉最内层闭合，嵌套引用通过循环到不动点处理；
// 残缺标记可能残留部分内容，这里按尽力而为对待。
func CleanEmailHTML(html string) string {
	if html == "" {
		return ""
	}
	for i := 0; i < 10; i++ {
		next := blockquoteRe.ReplaceAllString(html, "")
		next = gmailQuoteRe.ReplaceAllString(next, "")
		if next == html {
			break
		}
		html = next
	}
	return strings.TrimSpace(html)
}

// ExtractTextFromHTML 将 HTML 正文降级为纯文本。
//
// 用于邮件只有 HTML 部分时生成可持久化的文本正文：
// 丢弃 script/style（含内容），<br> 转换行，</p> 转段落分隔，
// 去掉其余标签，解码五个常见命名实体，连续空行压成一个，去首尾空白。
func ExtractTextFromHTML(html string) string {
	if html == "" {
		return ""
	}
	s := scriptRe.ReplaceAllString(html, "")
	s = styleRe.ReplaceAllString(s, "")
	s = brRe.ReplaceAllString(s, "\n")
	s = pCloseRe.ReplaceAllString(s, "\n\n")
	s = anyTagRe.ReplaceAllString(s, "")
	s = entityReplacer.Replace(s)
	s = multiNewlineRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// MessageBody 按优先级决定持久化用的消息正文：
// 清洗后的纯文本 → 清洗后 HTML 的降级文本 → 固定占位文案。
func MessageBody(cleanText, cleanHTML string) string {
	if cleanText != "" {
		return cleanText
	}
	if extracted := ExtractTextFromHTML(cleanHTML); extracted != "" {
		return extracted
	}
	return FallbackBody
}
