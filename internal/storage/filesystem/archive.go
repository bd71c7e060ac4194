// Package filesystem 提供入站邮件原文的落盘归档。
//
// 归档只增不改，用于排查解析问题与满足留存要求，业务读路径
// 不依赖它。目录按日期分区：{base}/{YYYY-MM-DD}/conv_{id}/{messageID}.eml。
package filesystem

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Archive 入站邮件原文归档。
type Archive struct {
	basePath string
}

// NewArchive 创建归档实例，基础目录不存在时自动创建。
func NewArchive(basePath string) (*Archive, error) {
	if strings.Contains(basePath, "..") {
		return nil, fmt.Errorf("path traversal detected: %s", basePath)
	}

	absPath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve base path: %w", err)
	}
	absPath = filepath.Clean(absPath)

	if err := os.MkdirAll(absPath, 0o755); err != nil {
		return nil, fmt.Errorf("create base directory: %w", err)
	}

	return &Archive{basePath: absPath}, nil
}

// SaveRaw 保存一封入站邮件的原始内容，返回相对于归档根的路径。
func (a *Archive) SaveRaw(conversationID int64, messageID string, raw []byte) (string, error) {
	dir := filepath.Join(
		a.basePath,
		time.Now().UTC().Format("2006-01-02"),
		fmt.Sprintf("conv_%d", conversationID),
	)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create archive directory: %w", err)
	}

	file := filepath.Join(dir, sanitizeFilename(messageID)+".eml")
	if err := os.WriteFile(file, raw, 0o644); err != nil {
		return "", fmt.Errorf("write raw message: %w", err)
	}

	rel, err := filepath.Rel(a.basePath, file)
	if err != nil {
		return file, nil
	}
	return rel, nil
}

// ReadRaw 按 SaveRaw 返回的相对路径读取原文。
func (a *Archive) ReadRaw(relPath string) ([]byte, error) {
	if strings.Contains(relPath, "..") {
		return nil, fmt.Errorf("path traversal detected: %s", relPath)
	}

	content, err := os.ReadFile(filepath.Join(a.basePath, relPath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("archived message not found")
		}
		return nil, fmt.Errorf("read raw message: %w", err)
	}
	return content, nil
}

// sanitizeFilename 把消息 ID 转成安全的文件名。
func sanitizeFilename(name string) string {
	name = strings.Trim(name, " .")
	replacer := strings.NewReplacer(
		"/", "_", "\\", "_", "<", "_", ">", "_", ":", "_",
		"\"", "_", "|", "_", "?", "_", "*", "_", "\x00", "_",
	)
	name = replacer.Replace(name)
	if len(name) > 200 {
		name = name[:200]
	}
	if name == "" {
		name = "unnamed"
	}
	return name
}
