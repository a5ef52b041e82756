// Package checkpoint 从上一次的 messages.json 中恢复最新一条消息的ID，用于增量续抓。
package checkpoint

import (
	"bytes"
	"encoding/json"
	"os"

	"github.com/wzxcff/APIScraperTG/internal/logger"
)

type messageID struct {
	ID int64 `json:"id"`
}

type messagesDocument struct {
	Messages []messageID `json:"messages"`
}

// LastMessageID 返回归档中第一条消息（即最新抓取的消息）的ID
// 文件不存在、格式错误或没有消息时返回 false
func LastMessageID(path string) (int64, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warnf("[Checkpoint] 读取 %s 失败: %v", path, err)
		}
		return 0, false
	}

	messages, err := decode(data)
	if err != nil {
		logger.Warnf("[Checkpoint] 解析 %s 失败: %v", path, err)
		return 0, false
	}
	if len(messages) == 0 || messages[0].ID == 0 {
		return 0, false
	}
	return messages[0].ID, true
}

// decode 同时兼容 {"messages": [...]} 和顶层数组两种格式
func decode(data []byte) ([]messageID, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var messages []messageID
		err := json.Unmarshal(trimmed, &messages)
		return messages, err
	}

	var doc messagesDocument
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, err
	}
	return doc.Messages, nil
}
