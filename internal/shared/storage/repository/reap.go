// Package repository 终态项清理相关的存储操作
package repository

import (
	"context"
	"time"

	"mgmt-syncq/internal/shared/model"
	"mgmt-syncq/internal/shared/storage/dbutil"
)

// ListFinishedBefore 列出早于 cutoff 结束的 done/failed 项
func (s *Store) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*model.SyncQueueItem, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(itemSelect+`
		WHERE i.state IN ('done', 'failed') AND i.updated_at < $1
		ORDER BY i.updated_at ASC
		LIMIT $2`), dbutil.ToMillis(cutoff), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanItems(rows)
}

// DeleteItems 删除终态项
func (s *Store) DeleteItems(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := s.rebind(`DELETE FROM sync_queue_item WHERE state IN ('done', 'failed') AND id IN (` +
		dbutil.PlaceholderList(1, len(ids)) + `)`)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
