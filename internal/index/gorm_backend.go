package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/plansync-backend/internal/platform/logger"
)

// IndexDocument is the row form of a Document. ParentID carries the join.
type IndexDocument struct {
	ID        string         `gorm:"column:id;primaryKey"`
	Relation  string         `gorm:"column:relation;index;not null"`
	ParentID  string         `gorm:"column:parent_id;index"`
	Routing   string         `gorm:"column:routing"`
	Body      datatypes.JSON `gorm:"column:body;type:json"`
	UpdatedAt time.Time      `gorm:"column:updated_at"`
}

type GormBackend struct {
	db    *gorm.DB
	table string
	log   *logger.Logger
}

var _ Backend = (*GormBackend)(nil)

// NewGormBackend stores documents in table (default "plan_index_documents")
// on a Postgres or SQLite connection.
func NewGormBackend(log *logger.Logger, db *gorm.DB, table string) *GormBackend {
	if table == "" {
		table = "plan_index_documents"
	}
	return &GormBackend{db: db, table: table, log: log.With("repo", "GormIndexBackend", "table", table)}
}

func (b *GormBackend) Name() string { return "gorm:" + b.db.Dialector.Name() }

func (b *GormBackend) tx(ctx context.Context) *gorm.DB {
	return b.db.WithContext(ctx).Table(b.table)
}

func (b *GormBackend) EnsureSchema(ctx context.Context) error {
	if err := b.db.WithContext(ctx).Table(b.table).AutoMigrate(&IndexDocument{}); err != nil {
		return b.wrap(err)
	}
	b.log.Info("index table ready")
	return nil
}

func (b *GormBackend) Put(ctx context.Context, doc Document) error {
	raw, err := json.Marshal(doc.Body)
	if err != nil {
		return fmt.Errorf("%w: encode body: %v", ErrRejected, err)
	}
	row := IndexDocument{
		ID:        doc.ID,
		Relation:  string(doc.Relation),
		ParentID:  doc.Parent,
		Routing:   doc.Routing,
		Body:      datatypes.JSON(raw),
		UpdatedAt: time.Now().UTC(),
	}
	err = b.tx(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"relation", "parent_id", "routing", "body", "updated_at"}),
	}).Create(&row).Error
	return b.wrap(err)
}

func (b *GormBackend) Children(ctx context.Context, parent Hit) ([]Hit, error) {
	var rows []IndexDocument
	err := b.tx(ctx).
		Select("id", "relation", "routing").
		Where("parent_id = ? AND relation IN ?", parent.ID, relationNames(Relations[parent.Relation])).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, b.wrap(err)
	}
	out := make([]Hit, 0, len(rows))
	for _, r := range rows {
		out = append(out, Hit{ID: r.ID, Relation: Relation(r.Relation), Routing: r.Routing})
	}
	return out, nil
}

func (b *GormBackend) Delete(ctx context.Context, hit Hit) error {
	return b.wrap(b.tx(ctx).Where("id = ?", hit.ID).Delete(&IndexDocument{}).Error)
}

// Get loads one stored document.
func (b *GormBackend) Get(ctx context.Context, id string) (Document, bool, error) {
	var row IndexDocument
	err := b.tx(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Document{}, false, nil
	}
	if err != nil {
		return Document{}, false, b.wrap(err)
	}
	var body map[string]any
	if len(row.Body) > 0 {
		if err := json.Unmarshal(row.Body, &body); err != nil {
			return Document{}, false, err
		}
	}
	return Document{
		ID:       row.ID,
		Relation: Relation(row.Relation),
		Parent:   row.ParentID,
		Routing:  row.Routing,
		Body:     body,
	}, true, nil
}

// Close leaves the connection to its owner.
func (b *GormBackend) Close(context.Context) error { return nil }

func (b *GormBackend) wrap(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func relationNames(rs []Relation) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = string(r)
	}
	return out
}
