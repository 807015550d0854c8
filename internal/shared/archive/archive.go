// Package archive 终态队列项归档
//
// Reaper 删除 done/failed 项之前先交给 Archiver 保存审计副本。
// 归档失败时 Reaper 不删除，下一轮重试。
package archive

import (
	"bytes"
	"context"
	"encoding/json"

	"mgmt-syncq/internal/shared/model"
)

// Archiver 归档接口
type Archiver interface {
	// Archive 保存一批终态项；返回 nil 表示可以安全删除
	Archive(ctx context.Context, items []*model.SyncQueueItem) error
	// Name 归档后端名称（日志、指标）
	Name() string
}

// Reader 按项 ID 读取归档副本，不存在时返回 nil
type Reader interface {
	GetArchived(ctx context.Context, itemID string) (*model.SyncQueueItem, error)
}

// NoOp 不归档，直接删除
type NoOp struct{}

func (NoOp) Archive(ctx context.Context, items []*model.SyncQueueItem) error {
	return nil
}

func (NoOp) Name() string {
	return "none"
}

// EncodeJSONLines 每项一行 JSON
func EncodeJSONLines(items []*model.SyncQueueItem) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, item := range items {
		if err := enc.Encode(item); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// DecodeJSONLines 解析 EncodeJSONLines 的输出
func DecodeJSONLines(data []byte) ([]*model.SyncQueueItem, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	var items []*model.SyncQueueItem
	for dec.More() {
		var item model.SyncQueueItem
		if err := dec.Decode(&item); err != nil {
			return nil, err
		}
		items = append(items, &item)
	}
	return items, nil
}
