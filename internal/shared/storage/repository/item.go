// Package repository 队列项账本相关的存储操作
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

const itemSelect = `SELECT i.id, i.queue_id, i.seq, i.payload_ref, i.state, i.owner_node_id,
	i.lease_expires_at, i.attempts, i.not_before, i.last_error, i.created_at, i.updated_at,
	q.resource_kind, q.resource_id
	FROM sync_queue_item i JOIN sync_queue q ON q.id = i.queue_id`

// EnqueueItem 追加 queued 项
//
// 在同一事务中递增 sync_queue.last_seq 并以新值作为序号插入，
// UPDATE 持有队列行锁，保证同一队列的序号严格递增且不重复。
func (s *Store) EnqueueItem(ctx context.Context, item *model.SyncQueueItem) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			s.rebind(`UPDATE sync_queue SET last_seq = last_seq + 1, last_updated = $1 WHERE id = $2`),
			dbutil.ToMillis(item.CreatedAt), item.QueueID)
		if err != nil {
			return fmt.Errorf("bump sequence: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return storage.ErrNotFound
		}

		var seq int64
		err = tx.QueryRowContext(ctx,
			s.rebind(`SELECT last_seq FROM sync_queue WHERE id = $1`), item.QueueID).Scan(&seq)
		if err != nil {
			return fmt.Errorf("read sequence: %w", err)
		}

		_, err = tx.ExecContext(ctx, s.rebind(`
			INSERT INTO sync_queue_item (id, queue_id, seq, payload_ref, state, attempts, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`), item.ID, item.QueueID, seq, item.PayloadRef, model.ItemStateQueued, 0,
			dbutil.ToMillis(item.CreatedAt), dbutil.ToMillis(item.UpdatedAt))
		if err != nil {
			if dbutil.IsUniqueViolation(err) {
				return storage.ErrDuplicate
			}
			return fmt.Errorf("insert item: %w", err)
		}
		item.Sequence = seq
		item.State = model.ItemStateQueued
		return nil
	})
}

// NextClaimable 返回序号最小的 queued 项，队列存在 active 项时返回 nil
//
// 不检查 not_before：队首处于重试等待时返回它本身，后续项不会越过它。
func (s *Store) NextClaimable(ctx context.Context, queueID string) (*model.SyncQueueItem, error) {
	query := s.rebind(itemSelect + `
		WHERE i.queue_id = $1 AND i.state = 'queued'
		  AND NOT EXISTS (SELECT 1 FROM sync_queue_item a WHERE a.queue_id = $2 AND a.state = 'active')
		ORDER BY i.seq ASC
		LIMIT 1`)
	item, err := scanItem(s.db.QueryRowContext(ctx, query, queueID, queueID))
	if err == storage.ErrNotFound {
		return nil, nil
	}
	return item, err
}

// GetItem 获取队列项
func (s *Store) GetItem(ctx context.Context, id string) (*model.SyncQueueItem, error) {
	return s.getItem(ctx, s.db, id)
}

func (s *Store) getItem(ctx context.Context, q querier, id string) (*model.SyncQueueItem, error) {
	return scanItem(q.QueryRowContext(ctx, s.rebind(itemSelect+` WHERE i.id = $1`), id))
}

// ListItems 按序号升序列出队列中的项
func (s *Store) ListItems(ctx context.Context, queueID string, limit int) ([]*model.SyncQueueItem, error) {
	query := itemSelect + ` WHERE i.queue_id = $1 ORDER BY i.seq ASC`
	args := []interface{}{queueID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanItems(rows)
}

// ListClaimableQueues 列出有 queued 项且无 active 项的队列
//
// 只有队首会被重试，因此存在 not_before > now 的 queued 项即说明队首仍在等待。
func (s *Store) ListClaimableQueues(ctx context.Context, now time.Time, limit int) ([]*model.ClaimableQueue, error) {
	query := s.rebind(`
		SELECT q.id, q.resource_kind, q.resource_id, MIN(i.seq), MIN(i.created_at)
		FROM sync_queue q
		JOIN sync_queue_item i ON i.queue_id = q.id AND i.state = 'queued'
		WHERE NOT EXISTS (SELECT 1 FROM sync_queue_item a WHERE a.queue_id = q.id AND a.state = 'active')
		  AND NOT EXISTS (SELECT 1 FROM sync_queue_item w WHERE w.queue_id = q.id AND w.state = 'queued' AND w.not_before > $1)
		GROUP BY q.id, q.resource_kind, q.resource_id
		ORDER BY MIN(i.created_at) ASC, q.id ASC
		LIMIT $2`)
	rows, err := s.db.QueryContext(ctx, query, dbutil.ToMillis(now), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var queues []*model.ClaimableQueue
	for rows.Next() {
		cq := &model.ClaimableQueue{}
		var headCreated int64
		if err := rows.Scan(&cq.QueueID, &cq.ResourceKind, &cq.ResourceID, &cq.HeadSequence, &headCreated); err != nil {
			return nil, err
		}
		cq.HeadCreatedAt = dbutil.FromMillis(headCreated)
		queues = append(queues, cq)
	}
	return queues, rows.Err()
}

// CancelItem 将 queued 项置为 failed（不作用于 active 项）
func (s *Store) CancelItem(ctx context.Context, itemID, reason string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE sync_queue_item SET state = 'failed', last_error = $1, updated_at = $2
		WHERE id = $3 AND state = 'queued'
	`), reason, dbutil.ToMillis(now), itemID)
	if err != nil {
		return err
	}
	if err := expectAffected(res); err != nil {
		if _, gerr := s.GetItem(ctx, itemID); gerr != nil {
			return gerr
		}
		return err
	}
	return nil
}

// scanItem 辅助函数
func scanItem(scanner interface {
	Scan(dest ...interface{}) error
}) (*model.SyncQueueItem, error) {
	item := &model.SyncQueueItem{}
	var (
		owner              sql.NullString
		lease              sql.NullInt64
		lastError          sql.NullString
		notBefore          int64
		createdAt, updated int64
	)
	err := scanner.Scan(
		&item.ID, &item.QueueID, &item.Sequence, &item.PayloadRef, &item.State, &owner,
		&lease, &item.Attempts, &notBefore, &lastError, &createdAt, &updated,
		&item.ResourceKind, &item.ResourceID)
	if err != nil {
		return nil, notFound(err)
	}
	item.OwnerNodeID = dbutil.StringFromNull(owner)
	item.LeaseExpiresAt = dbutil.TimeFromNull(lease)
	item.LastError = dbutil.StringFromNull(lastError)
	if notBefore > 0 {
		t := dbutil.FromMillis(notBefore)
		item.NotBefore = &t
	}
	item.CreatedAt = dbutil.FromMillis(createdAt)
	item.UpdatedAt = dbutil.FromMillis(updated)
	return item, nil
}

// scanItems 批量扫描
func scanItems(rows *sql.Rows) ([]*model.SyncQueueItem, error) {
	var items []*model.SyncQueueItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
