package mailreply

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanEmailText(t *testing.T) {
	t.Run("截断 On ... wrote: 引用块并删除引用行", func(t *testing.T) {
		got := CleanEmailText("Hi there\nOn Jan 1 John wrote:\n> old text")
		assert.Equal(t, "Hi there", got)
	})

	t.Run("截断 Original Message 分隔符", func(t *testing.T) {
		got := CleanEmailText("回复内容\n----- Original Message -----\nFrom: someone\nold body")
		assert.Equal(t, "回复内容", got)
	})

	t.Run("截断 From: 行", func(t *testing.T) {
		got := CleanEmailText("Sounds good.\nFrom: lender@x.com\nquoted stuff")
		assert.Equal(t, "Sounds good.", got)
	})

	t.Run("删除所有大于号前缀的引用行", func(t *testing.T) {
		got := CleanEmailText("first\n> quoted one\nmiddle\n> quoted two\nlast")
		assert.Equal(t, "first\nmiddle\nlast", got)
	})

	t.Run("空输入返回空", func(t *testing.T) {
		assert.Equal(t, "", CleanEmailText(""))
	})

	t.Run("无引用标记时只做首尾修剪", func(t *testing.T) {
		assert.Equal(t, "plain reply", CleanEmailText("  plain reply \n"))
	})
}

func TestCleanEmailHTML(t *testing.T) {
	t.Run("移除 blockquote 区块", func(t *testing.T) {
		got := CleanEmailHTML(`<p>Reply</p><blockquote type="cite"><p>old</p></blockquote>`)
		assert.Equal(t, "<p>Reply</p>", got)
	})

	t.Run("移除嵌套 blockquote", func(t *testing.T) {
		got := CleanEmailHTML(`<p>Reply</p><blockquote>a<blockquote>b</blockquote>c</blockquote>`)
		assert.NotContains(t, got, "<blockquote>")
		assert.Contains(t, got, "<p>Reply</p>")
	})

	t.Run("移除 gmail_quote 容器", func(t *testing.T) {
		got := CleanEmailHTML(`<div>new</div><div class="gmail_quote">old quoted</div>`)
		assert.Equal(t, "<div>new</div>", got)
	})

	t.Run("残缺标记不报错", func(t *testing.T) {
		assert.NotPanics(t, func() {
			CleanEmailHTML(`<p>Reply<blockquote>never closed`)
		})
	})

	t.Run("空输入返回空", func(t *testing.T) {
		assert.Equal(t, "", CleanEmailHTML(""))
	})
}

func TestExtractTextFromHTML(t *testing.T) {
	t.Run("br 转换行", func(t *testing.T) {
		assert.Equal(t, "Hello\nWorld", ExtractTextFromHTML("<p>Hello<br>World</p>"))
	})

	t.Run("多个段落以空行分隔", func(t *testing.T) {
		got := ExtractTextFromHTML("<p>first</p><p>second</p>")
		assert.Equal(t, "first\n\nsecond", got)
	})

	t.Run("丢弃 script 与 style 及其内容", func(t *testing.T) {
		got := ExtractTextFromHTML(`<script>alert(1)</script><style>p{}</style><p>body</p>`)
		assert.Equal(t, "body", got)
	})

	t.Run("解码常见命名实体", func(t *testing.T) {
		got := ExtractTextFromHTML("a&nbsp;&amp;&nbsp;b &lt;c&gt; &quot;d&quot;")
		assert.Equal(t, `a & b <c> "d"`, got)
	})

	t.Run("连续空行压缩为一个", func(t *testing.T) {
		got := ExtractTextFromHTML("line1<br><br><br><br>line2")
		assert.Equal(t, "line1\n\nline2", got)
	})

	t.Run("空输入返回空", func(t *testing.T) {
		assert.Equal(t, "", ExtractTextFromHTML(""))
	})
}

func TestMessageBody(t *testing.T) {
	t.Run("优先使用清洗后的纯文本", func(t *testing.T) {
		assert.Equal(t, "text", MessageBody("text", "<p>html</p>"))
	})

	t.Run("纯文本为空时降级 HTML", func(t *testing.T) {
		assert.Equal(t, "html", MessageBody("", "<p>html</p>"))
	})

	t.Run("两者皆空时使用占位文案", func(t *testing.T) {
		assert.Equal(t, FallbackBody, MessageBody("", ""))
	})
}
