// Package mongostore 基于 MongoDB 的终态队列项归档
//
// 使用 mongo-go-driver v2，通过 bson tag 实现 model 结构体的序列化/反序列化。
// 归档以项 ID 作为 _id，重复归档（删除前进程崩溃后重试）是幂等的。
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"mgmt-syncq/internal/shared/model"
)

// ColArchive 默认归档 Collection 名称
const ColArchive = "sync_queue_item_archive"

// duplicateKeyCode MongoDB 唯一键冲突错误码
const duplicateKeyCode = 11000

// Store MongoDB 归档存储
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	col    *mongo.Collection
}

// NewStore 创建 MongoDB 归档存储
//
// uri: MongoDB 连接 URI，如 "mongodb://localhost:27017"
// dbName: 数据库名称，如 "mgmt_syncq"
func NewStore(uri, dbName, collection string) (*Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongostore: connect failed: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongostore: ping failed: %w", err)
	}

	if collection == "" {
		collection = ColArchive
	}
	db := client.Database(dbName)
	s := &Store{client: client, db: db, col: db.Collection(collection)}

	if err := s.ensureIndexes(ctx); err != nil {
		log.Printf("WARNING: mongostore: ensure indexes failed: %v", err)
	}

	return s, nil
}

// Close 关闭 MongoDB 连接
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// ensureIndexes 创建归档查询所需索引
func (s *Store) ensureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "queue_id", Value: 1}, {Key: "sequence", Value: 1}}},
		{Keys: bson.D{{Key: "resource_kind", Value: 1}, {Key: "resource_id", Value: 1}}},
		{Keys: bson.D{{Key: "updated_at", Value: -1}}},
	}
	if _, err := s.col.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("create index on %s: %w", s.col.Name(), err)
	}
	return nil
}

// Archive 批量写入终态项（无序写入，已存在的项忽略）
func (s *Store) Archive(ctx context.Context, items []*model.SyncQueueItem) error {
	if len(items) == 0 {
		return nil
	}
	docs := make([]interface{}, len(items))
	for i, item := range items {
		docs[i] = item
	}
	_, err := s.col.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err != nil && !onlyDuplicateKeys(err) {
		return wrapError(err)
	}
	return nil
}

// Name 后端名称
func (s *Store) Name() string {
	return "mongodb"
}

// GetArchived 按项 ID 获取归档
func (s *Store) GetArchived(ctx context.Context, itemID string) (*model.SyncQueueItem, error) {
	return findOne[model.SyncQueueItem](ctx, s.col, bson.D{{Key: "_id", Value: itemID}})
}

// onlyDuplicateKeys 批量写入错误是否全部为唯一键冲突
func onlyDuplicateKeys(err error) bool {
	var bwe mongo.BulkWriteException
	if !errors.As(err, &bwe) {
		return false
	}
	if bwe.WriteConcernError != nil || len(bwe.WriteErrors) == 0 {
		return false
	}
	for _, we := range bwe.WriteErrors {
		if we.Code != duplicateKeyCode {
			return false
		}
	}
	return true
}
