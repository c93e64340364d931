package repository

import (
	"context"
	"fmt"

	"github.com/example/storefront/pkg/apperrors"
	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// document is one record of any collection. The record itself is kept as a
// BSON payload so ObjectIDs, dates and integer widths survive a round trip.
type document struct {
	Seq        uint64 `gorm:"primaryKey;autoIncrement"`
	Collection string `gorm:"type:varchar(128);not null;uniqueIndex:idx_documents_collection_oid,priority:1"`
	ObjectID   string `gorm:"column:object_id;type:varchar(24);not null;uniqueIndex:idx_documents_collection_oid,priority:2"`
	Data       []byte `gorm:"type:mediumblob;not null"`
}

func (document) TableName() string {
	return "documents"
}

// SQLStore keeps every collection in a single documents table. Filters are
// evaluated in process; mutations lock the touched rows inside a
// transaction so increments stay atomic.
type SQLStore struct {
	db *gorm.DB
}

var _ Store = (*SQLStore)(nil)

// OpenMySQLStore connects to MySQL and prepares the documents table.
func OpenMySQLStore(cfg *config.MySQLConfig) (*SQLStore, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN()), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MySQL: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)

	return NewSQLStore(db)
}

// NewSQLStore wraps an open gorm handle and migrates the documents table.
func NewSQLStore(db *gorm.DB) (*SQLStore, error) {
	if err := db.AutoMigrate(&document{}); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return &SQLStore{db: db}, nil
}

type sqlTxKey struct{}

// conn returns the transaction carried by ctx, if any, or the pool.
func (s *SQLStore) conn(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(sqlTxKey{}).(*gorm.DB); ok {
		return tx
	}
	return s.db.WithContext(ctx)
}

// atomic runs fn in the caller's transaction or a fresh one.
func (s *SQLStore) atomic(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if tx, ok := ctx.Value(sqlTxKey{}).(*gorm.DB); ok {
		return fn(tx)
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

func decodeDocument(d document) (models.Record, error) {
	var m bson.M
	if err := bson.Unmarshal(d.Data, &m); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", d.Collection, d.ObjectID, err)
	}
	return models.Record(m), nil
}

// load reads a collection in insertion order, narrowed by ID when the
// filter names one. When lock is set the rows are locked for update.
func (s *SQLStore) load(tx *gorm.DB, collection string, f Filter, lock bool) ([]document, []models.Record, error) {
	q := tx.Where("collection = ?", collection)
	if f.ID != nil {
		q = q.Where("object_id = ?", f.ID.Hex())
	}
	if lock && tx.Dialector.Name() == "mysql" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var docs []document
	if err := q.Order("seq").Find(&docs).Error; err != nil {
		return nil, nil, err
	}
	records := make([]models.Record, len(docs))
	for i, d := range docs {
		r, err := decodeDocument(d)
		if err != nil {
			return nil, nil, err
		}
		records[i] = r
	}
	return docs, records, nil
}

func (s *SQLStore) Find(ctx context.Context, collection string, q Query) ([]models.Record, error) {
	_, records, err := s.load(s.conn(ctx), collection, q.Filter, false)
	if err != nil {
		return nil, apperrors.Unavailable("find "+collection, err)
	}
	return applyQuery(records, q), nil
}

func (s *SQLStore) InsertOne(ctx context.Context, collection string, rec models.Record) (primitive.ObjectID, error) {
	doc := rec.Without()
	id, ok := doc.ObjectID()
	if !ok {
		id = primitive.NewObjectID()
		doc[models.IDField] = id
	}

	data, err := bson.Marshal(doc)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("encode record: %w", err)
	}
	row := document{Collection: collection, ObjectID: id.Hex(), Data: data}
	if err := s.conn(ctx).Create(&row).Error; err != nil {
		return primitive.NilObjectID, apperrors.Unavailable("insert into "+collection, err)
	}
	return id, nil
}

// mutateFirst locks the collection rows selected by f, applies fn to the
// first record that matches and writes it back.
func (s *SQLStore) mutateFirst(ctx context.Context, collection string, f Filter, fn func(models.Record) error) (bool, error) {
	matched := false
	err := s.atomic(ctx, func(tx *gorm.DB) error {
		docs, records, err := s.load(tx, collection, f, true)
		if err != nil {
			return err
		}
		m := newMatcher(f)
		for i, r := range records {
			if !m.matches(r) {
				continue
			}
			if err := fn(r); err != nil {
				return err
			}
			data, err := bson.Marshal(r)
			if err != nil {
				return err
			}
			matched = true
			return tx.Model(&document{}).Where("seq = ?", docs[i].Seq).Update("data", data).Error
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return matched, nil
}

func (s *SQLStore) UpdateOne(ctx context.Context, collection string, f Filter, set models.Record) (bool, error) {
	ok, err := s.mutateFirst(ctx, collection, f, func(r models.Record) error {
		mergeSet(r, set)
		return nil
	})
	if err != nil {
		return false, apperrors.Unavailable("update "+collection, err)
	}
	return ok, nil
}

func (s *SQLStore) IncrementOne(ctx context.Context, collection string, f Filter, field string, delta int64) (bool, error) {
	ok, err := s.mutateFirst(ctx, collection, f, func(r models.Record) error {
		v, err := incremented(r[field], delta)
		if err != nil {
			return err
		}
		r[field] = v
		return nil
	})
	if err != nil {
		return false, apperrors.Unavailable("increment "+collection+"."+field, err)
	}
	return ok, nil
}

func (s *SQLStore) DeleteOne(ctx context.Context, collection string, f Filter) (bool, error) {
	deleted := false
	err := s.atomic(ctx, func(tx *gorm.DB) error {
		docs, records, err := s.load(tx, collection, f, true)
		if err != nil {
			return err
		}
		m := newMatcher(f)
		for i, r := range records {
			if m.matches(r) {
				deleted = true
				return tx.Delete(&document{}, docs[i].Seq).Error
			}
		}
		return nil
	})
	if err != nil {
		return false, apperrors.Unavailable("delete from "+collection, err)
	}
	return deleted, nil
}

func (s *SQLStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(sqlTxKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, sqlTxKey{}, tx))
	})
}

func (s *SQLStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return apperrors.Unavailable("ping", err)
	}
	return apperrors.Unavailable("ping", sqlDB.PingContext(ctx))
}

func (s *SQLStore) Close(context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
