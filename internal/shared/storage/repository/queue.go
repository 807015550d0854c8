// Package repository 队列注册表相关的存储操作
package repository

import (
	"context"
	"fmt"

	"mgmt-syncq/internal/shared/model"
	"mgmt-syncq/internal/shared/storage/dbutil"
)

const queueColumns = `id, resource_kind, resource_id, last_seq, created_at, last_updated`

// EnsureQueue 条件插入队列
//
// 并发创建同一资源键时由唯一约束 (resource_kind, resource_id) 裁决，
// 败者的插入被忽略；驱动仍报告唯一键冲突时同样视为成功。
func (s *Store) EnsureQueue(ctx context.Context, q *model.SyncQueue) error {
	query := s.dialect.InsertIgnore("sync_queue", queueColumns,
		"$1, $2, $3, $4, $5, $6", "resource_kind, resource_id")
	_, err := s.db.ExecContext(ctx, query,
		q.ID, q.ResourceKind, q.ResourceID, q.LastSeq,
		dbutil.ToMillis(q.CreatedAt), dbutil.ToMillis(q.LastUpdated))
	if err != nil && !dbutil.IsUniqueViolation(err) {
		return fmt.Errorf("ensure queue %s: %w", q.Key(), err)
	}
	return nil
}

// FindQueue 按资源键查找队列
func (s *Store) FindQueue(ctx context.Context, key model.ResourceKey) (*model.SyncQueue, error) {
	query := s.rebind(`SELECT ` + queueColumns + ` FROM sync_queue WHERE resource_kind = $1 AND resource_id = $2`)
	return scanQueue(s.db.QueryRowContext(ctx, query, key.Kind, key.ID))
}

// GetQueue 按 ID 获取队列
func (s *Store) GetQueue(ctx context.Context, id string) (*model.SyncQueue, error) {
	query := s.rebind(`SELECT ` + queueColumns + ` FROM sync_queue WHERE id = $1`)
	return scanQueue(s.db.QueryRowContext(ctx, query, id))
}

// scanQueue 辅助函数
func scanQueue(scanner interface {
	Scan(dest ...interface{}) error
}) (*model.SyncQueue, error) {
	q := &model.SyncQueue{}
	var createdAt, lastUpdated int64
	err := scanner.Scan(&q.ID, &q.ResourceKind, &q.ResourceID, &q.LastSeq, &createdAt, &lastUpdated)
	if err != nil {
		return nil, notFound(err)
	}
	q.CreatedAt = dbutil.FromMillis(createdAt)
	q.LastUpdated = dbutil.FromMillis(lastUpdated)
	return q, nil
}
