package mailreply

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodec_EncodeDecode(t *testing.T) {
	codec := NewCodec("homematch.example")

	t.Run("编码解码往返一致", func(t *testing.T) {
		for _, id := range []int64{0, 1, 42, 7890, 123456789012} {
			addr := codec.Encode(id)
			decoded, ok := codec.Decode(addr)
			require.True(t, ok, "address: %s", addr)
			assert.Equal(t, id, decoded)
		}
	})

	t.Run("编码结果形状正确", func(t *testing.T) {
		addr := codec.Encode(42)
		assert.True(t, strings.HasPrefix(addr, "conv_42_"))
		assert.True(t, strings.HasSuffix(addr, "@inbound.homematch.example"))

		// conv_42_ 与 @ 之间应当是 16 位十六进制随机后缀
		local := strings.TrimSuffix(addr, "@inbound.homematch.example")
		suffix := strings.TrimPrefix(local, "conv_42_")
		assert.Len(t, suffix, 16)
	})

	t.Run("每次编码生成不同的随机后缀", func(t *testing.T) {
		assert.NotEqual(t, codec.Encode(42), codec.Encode(42))
	})

	t.Run("解码大小写不敏感", func(t *testing.T) {
		id, ok := codec.Decode("CONV_42_AB12CD34EF567890@Inbound.HomeMatch.Example")
		require.True(t, ok)
		assert.Equal(t, int64(42), id)
	})

	t.Run("多个候选匹配时只取第一个", func(t *testing.T) {
		header := "conv_7_aa11bb22cc33dd44@inbound.homematch.example, conv_9_ff00ff00ff00ff00@inbound.homematch.example"
		id, ok := codec.Decode(header)
		require.True(t, ok)
		assert.Equal(t, int64(7), id)
	})

	t.Run("尖括号包裹的地址可以解码", func(t *testing.T) {
		id, ok := codec.Decode("HomeMatch <conv_5_0123456789abcdef@inbound.homematch.example>")
		require.True(t, ok)
		assert.Equal(t, int64(5), id)
	})
}

func TestCodec_DecodeRejects(t *testing.T) {
	codec := NewCodec("homematch.example")

	cases := []struct {
		name    string
		address string
	}{
		{"没有 conv_ 前缀的普通地址", "buyer@homematch.example"},
		{"外部域名上的同形地址", "conv_42_ab12cd34ef567890@inbound.other.example"},
		{"域名后缀伪装", "conv_42_ab12cd34ef567890@inbound.homematch.example.evil.org"},
		{"缺少随机后缀", "conv_42@inbound.homematch.example"},
		{"会话段含非数字", "conv_abc_ab12cd34@inbound.homematch.example"},
		{"前缀粘连其他字符", "xconv_42_ab12cd34@inbound.homematch.example"},
		{"空字符串", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			id, ok := codec.Decode(tc.address)
			assert.False(t, ok)
			assert.Equal(t, int64(0), id)
		})
	}

	t.Run("数字段超出 int64 范围", func(t *testing.T) {
		addr := fmt.Sprintf("conv_%s_ab12cd34@inbound.homematch.example", strings.Repeat("9", 30))
		_, ok := codec.Decode(addr)
		assert.False(t, ok)
	})
}
