// Package repository 认领、续租与释放相关的存储操作
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"mgmt-syncq/internal/shared/model"
	"mgmt-syncq/internal/shared/storage"
	"mgmt-syncq/internal/shared/storage/dbutil"
)

// ClaimItem 原子认领队列项
//
// 事务流程：
//  1. 读取项所在队列与序号（queue_id、seq 不可变）
//  2. UPDATE sync_queue 获取队列行锁，同一队列的认领与入队串行化
//  3. 校验队列中无 active 项、无更小序号的 queued 项
//  4. 以 state='queued' 为条件更新为 active
//
// 项的 not_before 晚于 now（重试等待中）同样视为冲突。
//
// 任一步校验失败返回 storage.ErrConflict。
func (s *Store) ClaimItem(ctx context.Context, itemID, nodeID string, now, leaseExpiresAt time.Time) (*model.SyncQueueItem, error) {
	var claimed *model.SyncQueueItem
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var (
			queueID   string
			seq       int64
			state     model.ItemState
			notBefore int64
		)
		err := tx.QueryRowContext(ctx,
			s.rebind(`SELECT queue_id, seq, state, not_before FROM sync_queue_item WHERE id = $1`), itemID).
			Scan(&queueID, &seq, &state, &notBefore)
		if err != nil {
			return notFound(err)
		}
		nowMs := dbutil.ToMillis(now)
		if state != model.ItemStateQueued || notBefore > nowMs {
			return storage.ErrConflict
		}

		if _, err := tx.ExecContext(ctx,
			s.rebind(`UPDATE sync_queue SET last_updated = $1 WHERE id = $2`), nowMs, queueID); err != nil {
			return fmt.Errorf("lock queue: %w", err)
		}

		var blockers int
		err = tx.QueryRowContext(ctx, s.rebind(`
			SELECT COUNT(*) FROM sync_queue_item
			WHERE queue_id = $1 AND (state = 'active' OR (state = 'queued' AND seq < $2))
		`), queueID, seq).Scan(&blockers)
		if err != nil {
			return fmt.Errorf("check queue head: %w", err)
		}
		if blockers > 0 {
			return storage.ErrConflict
		}

		res, err := tx.ExecContext(ctx, s.rebind(`
			UPDATE sync_queue_item
			SET state = 'active', owner_node_id = $1, lease_expires_at = $2, attempts = attempts + 1, updated_at = $3
			WHERE id = $4 AND state = 'queued'
		`), nodeID, dbutil.ToMillis(leaseExpiresAt), nowMs, itemID)
		if err != nil {
			return err
		}
		if err := expectAffected(res); err != nil {
			return err
		}

		claimed, err = s.getItem(ctx, tx, itemID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// RenewItem 续租，要求调用方仍是持有者
func (s *Store) RenewItem(ctx context.Context, itemID, nodeID string, now, leaseExpiresAt time.Time) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE sync_queue_item SET lease_expires_at = $1, updated_at = $2
		WHERE id = $3 AND state = 'active' AND owner_node_id = $4
	`), dbutil.ToMillis(leaseExpiresAt), dbutil.ToMillis(now), itemID, nodeID)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

// CompleteItem 持有者提交执行结果
//
//   - done/failed：终态，清空租约，保留 owner_node_id 供审计
//   - queued：清空 owner 与租约，序号不变，回到 FIFO 原位置；
//     notBefore 非零时在该时刻之前不可认领
func (s *Store) CompleteItem(ctx context.Context, itemID, nodeID string, newState model.ItemState, reason string, now, notBefore time.Time) error {
	var lastError sql.NullString
	if reason != "" {
		lastError = sql.NullString{String: reason, Valid: true}
	}
	var notBeforeMs int64
	if !notBefore.IsZero() {
		notBeforeMs = dbutil.ToMillis(notBefore)
	}

	var query string
	switch newState {
	case model.ItemStateDone, model.ItemStateFailed:
		query = `UPDATE sync_queue_item SET state = $1, lease_expires_at = NULL, last_error = $2, updated_at = $3, not_before = $4
			WHERE id = $5 AND state = 'active' AND owner_node_id = $6`
		notBeforeMs = 0
	case model.ItemStateQueued:
		query = `UPDATE sync_queue_item SET state = $1, owner_node_id = NULL, lease_expires_at = NULL, last_error = $2, updated_at = $3, not_before = $4
			WHERE id = $5 AND state = 'active' AND owner_node_id = $6`
	default:
		return fmt.Errorf("invalid completion state %q", newState)
	}

	res, err := s.db.ExecContext(ctx, s.rebind(query),
		newState, lastError, dbutil.ToMillis(now), notBeforeMs, itemID, nodeID)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

// ReleaseItem 无条件释放 active 项回 queued
func (s *Store) ReleaseItem(ctx context.Context, itemID string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE sync_queue_item SET state = 'queued', owner_node_id = NULL, lease_expires_at = NULL, updated_at = $1
		WHERE id = $2 AND state = 'active'
	`), dbutil.ToMillis(now), itemID)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

// ReleaseExpired 释放租约已过期的 active 项
//
// 逐项以 lease_expires_at < now 为条件更新，与并发续租竞争时续租优先。
func (s *Store) ReleaseExpired(ctx context.Context, now time.Time, limit int) ([]*model.SyncQueueItem, error) {
	nowMs := dbutil.ToMillis(now)
	rows, err := s.db.QueryContext(ctx, s.rebind(itemSelect+`
		WHERE i.state = 'active' AND i.lease_expires_at < $1
		ORDER BY i.lease_expires_at ASC
		LIMIT $2`), nowMs, limit)
	if err != nil {
		return nil, err
	}
	expired, err := scanItems(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	var released []*model.SyncQueueItem
	for _, item := range expired {
		res, err := s.db.ExecContext(ctx, s.rebind(`
			UPDATE sync_queue_item SET state = 'queued', owner_node_id = NULL, lease_expires_at = NULL, updated_at = $1
			WHERE id = $2 AND state = 'active' AND lease_expires_at < $3
		`), nowMs, item.ID, nowMs)
		if err != nil {
			return released, err
		}
		if expectAffected(res) != nil {
			continue
		}
		released = append(released, item)
	}
	return released, nil
}

// ReleaseAllForNode 释放节点持有的全部 active 项
func (s *Store) ReleaseAllForNode(ctx context.Context, nodeID string, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE sync_queue_item SET state = 'queued', owner_node_id = NULL, lease_expires_at = NULL, updated_at = $1
		WHERE state = 'active' AND owner_node_id = $2
	`), dbutil.ToMillis(now), nodeID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListActiveOwners 列出当前持有 active 项的节点
func (s *Store) ListActiveOwners(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT owner_node_id FROM sync_queue_item
		WHERE state = 'active' AND owner_node_id IS NOT NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var owners []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		owners = append(owners, id)
	}
	return owners, rows.Err()
}
