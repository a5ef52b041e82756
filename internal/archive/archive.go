// Package archive 负责目标的本地目录结构和 JSON 归档文件。
package archive

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// JSON 归档文件名（不含扩展名）
const (
	MessagesFile       = "messages"
	ParticipantsFile   = "participants"
	PinnedMessagesFile = "pinned_messages"
	TargetInfoFile     = "target_info"
	AdminLogsFile      = "admin_logs"
)

// Folders 目标的本地目录
type Folders struct {
	Target              string
	Avatars             string
	ParticipantsAvatars string
	Media               string
	Jsons               string
}

// NewFolders 生成 <root>/<target>/ 下的目录布局
func NewFolders(root, target string) Folders {
	base := filepath.Join(root, DirName(target))
	return Folders{
		Target:              base,
		Avatars:             filepath.Join(base, "avatars"),
		ParticipantsAvatars: filepath.Join(base, "participants_avatars"),
		Media:               filepath.Join(base, "media"),
		Jsons:               filepath.Join(base, "jsons"),
	}
}

// DirName 将 @username 转换为目录名
func DirName(target string) string {
	name := strings.TrimPrefix(strings.TrimSpace(target), "@")
	name = strings.ReplaceAll(name, string(filepath.Separator), "_")
	if name == "" {
		name = "target"
	}
	return name
}

// Create 创建所有目录
func (f Folders) Create() error {
	for _, dir := range []string{f.Target, f.Avatars, f.ParticipantsAvatars, f.Media, f.Jsons} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("创建目录 %s 失败: %w", dir, err)
		}
	}
	return nil
}

// JSONPath 返回归档文件完整路径
func (f Folders) JSONPath(name string) string {
	return filepath.Join(f.Jsons, name+".json")
}

// Dump 将 data 以 4 空格缩进写入 <dir>/<name>.json，保留非 ASCII 字符
func Dump(dir, name string, data any) (string, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "    ")
	if err := encoder.Encode(data); err != nil {
		return "", fmt.Errorf("序列化 %s 失败: %w", name, err)
	}

	path := filepath.Join(dir, name+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0644); err != nil {
		return "", fmt.Errorf("写入 %s 失败: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("写入 %s 失败: %w", path, err)
	}
	return path, nil
}
