package output

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoSink 将记录批量写入MongoDB，每类记录一个集合
type MongoSink struct {
	client  *mongo.Client
	db      *mongo.Database
	batch   int
	pending map[string][]any
}

// NewMongoSink 连接MongoDB
// 参数：uri-连接字符串，db-数据库名，batch-每个集合攒够多少条记录后执行一次InsertMany
func NewMongoSink(ctx context.Context, uri, db string, batch int) (*MongoSink, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	if batch <= 0 {
		batch = 1000
	}
	log.Infof("mongo sink connected: %s/%s", uri, db)
	return &MongoSink{
		client:  client,
		db:      client.Database(db),
		batch:   batch,
		pending: make(map[string][]any),
	}, nil
}

func (s *MongoSink) Write(r Record) error {
	kind := r.Kind()
	s.pending[kind] = append(s.pending[kind], r.Doc())
	if len(s.pending[kind]) >= s.batch {
		return s.flushKind(context.Background(), kind)
	}
	return nil
}

func (s *MongoSink) flushKind(ctx context.Context, kind string) error {
	docs := s.pending[kind]
	if len(docs) == 0 {
		return nil
	}
	s.pending[kind] = nil
	opts := options.InsertMany().SetOrdered(true)
	if _, err := s.db.Collection(kind).InsertMany(ctx, docs, opts); err != nil {
		return fmt.Errorf("insert %d %s records: %w", len(docs), kind, err)
	}
	return nil
}

func (s *MongoSink) Flush() error {
	var errs []error
	for kind := range s.pending {
		errs = append(errs, s.flushKind(context.Background(), kind))
	}
	return errors.Join(errs...)
}

func (s *MongoSink) Close() error {
	err := s.Flush()
	return errors.Join(err, s.client.Disconnect(context.Background()))
}
