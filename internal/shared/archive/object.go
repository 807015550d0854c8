package archive

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"

	"mgmt-syncq/internal/clock"
	"mgmt-syncq/internal/shared/model"
)

// ObjectPutter 对象写入接口（由 objstore.Client 实现）
type ObjectPutter interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// ObjectArchiver 每批写一个 JSON Lines 对象
//
// key 格式：{prefix}/{yyyy}/{mm}/{dd}/{uuid}.jsonl
type ObjectArchiver struct {
	store  ObjectPutter
	prefix string
	clock  clock.Clock
}

// NewObjectArchiver 创建对象存储归档器
func NewObjectArchiver(store ObjectPutter, prefix string, clk clock.Clock) *ObjectArchiver {
	if prefix == "" {
		prefix = "sync-queue-items"
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &ObjectArchiver{store: store, prefix: prefix, clock: clk}
}

// Archive 上传一批终态项
func (a *ObjectArchiver) Archive(ctx context.Context, items []*model.SyncQueueItem) error {
	if len(items) == 0 {
		return nil
	}
	data, err := EncodeJSONLines(items)
	if err != nil {
		return fmt.Errorf("encode archive: %w", err)
	}
	return a.store.Put(ctx, a.key(a.clock.Now()), data, "application/x-ndjson")
}

func (a *ObjectArchiver) key(now time.Time) string {
	return path.Join(a.prefix, now.UTC().Format("2006/01/02"), uuid.NewString()+".jsonl")
}

// Name 后端名称
func (a *ObjectArchiver) Name() string {
	return "minio"
}

var (
	_ Archiver = NoOp{}
	_ Archiver = (*ObjectArchiver)(nil)
)
