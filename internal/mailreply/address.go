package mailreply

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Codec 负责会话回信地址的编码与解码。
//
// 地址形状：conv_<会话ID>_<16位十六进制随机后缀>@inbound.<域名>。
// 随机后缀只用于避免邮件客户端的地址合并与缓存，不携带任何语义；
// 解码时仅以嵌入的会话 ID 为准。
type Codec struct {
	domain  string
	pattern *regexp.Regexp
}

// NewCodec 创建回信地址编解码器。
//
// inboundDomain 是站点主域名（如 homematch.example），收信子域固定为
// inbound.<域名>。其他域名上的同形地址在解码时一律拒绝。
func NewCodec(inboundDomain string) *Codec {
	d := strings.ToLower(strings.TrimSpace(inboundDomain))
	// \b 防止 xconv_ 之类的前缀误匹配；结尾字符类防止 foo.com.evil.org
	// 这样的域名后缀伪装。整体大小写不敏感。
	pattern := regexp.MustCompile(
		`(?i)\bconv_(\d+)_([0-9a-f]+)@` + regexp.QuoteMeta("inbound."+d) + `(?:[\s>,;:"']|$)`,
	)
	return &Codec{domain: d, pattern: pattern}
}

// Encode 为指定会话生成一个新的回信地址。
//
// 每次外发通知都调用本方法生成全新地址，不缓存、不复用；
// 8 字节随机数来自 crypto/rand，足以避免碰撞。
func (c *Codec) Encode(conversationID int64) string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return fmt.Sprintf("conv_%d_%s@inbound.%s", conversationID, hex.EncodeToString(buf), c.domain)
}

// Decode 从地址（或包含地址的头部字符串）中解析会话 ID。
//
// 形状不符（外部域名、缺少随机后缀、ID 段含非数字）返回 (0, false)，
// 这是正常预期结果而非错误——上游据此返回 400。当输入包含多个候选
// 匹配（如转发嵌套的头部）时只取第一个。
func (c *Codec) Decode(address string) (int64, bool) {
	m := c.pattern.FindStringSubmatch(address)
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		// 数字段超出 int64 范围，按无效地址处理
		return 0, false
	}
	return id, true
}
