package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/indexflow-go/internal/domain/change"
)

type author struct {
	ID   string `gorm:"primaryKey"`
	Name string
}

type article struct {
	ID       string `gorm:"primaryKey"`
	Title    string
	AuthorID string
}

type articleTag struct {
	ArticleID string `gorm:"primaryKey"`
	TagID     string `gorm:"primaryKey"`
}

type tag struct {
	ID   string `gorm:"primaryKey"`
	Name string
}

func testSchema() *Schema {
	return NewSchema(
		&IndexDef{
			Name:  "articles",
			Table: "articles",
			Relations: []RelationFunc{
				BelongsTo("authors", "articles", "author_id", "id"),
				ManyToMany("tags", "article_tags", "article_id", "tag_id"),
			},
		},
		&IndexDef{
			Name:  "authors",
			Table: "authors",
			Relations: []RelationFunc{
				HasMany("articles", "articles", "author_id", "id"),
			},
		},
		&IndexDef{
			Name:  "tags",
			Table: "tags",
			Relations: []RelationFunc{
				ManyToMany("articles", "article_tags", "tag_id", "article_id"),
			},
		},
	)
}

func testDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&author{}, &article{}, &articleTag{}, &tag{}))

	require.NoError(t, db.Create(&author{ID: "au1", Name: "Ursula"}).Error)
	require.NoError(t, db.Create(&article{ID: "a1", Title: "Dispossessed", AuthorID: "au1"}).Error)
	require.NoError(t, db.Create(&article{ID: "a2", Title: "Left Hand", AuthorID: "au1"}).Error)
	require.NoError(t, db.Create(&tag{ID: "t1", Name: "sf"}).Error)
	require.NoError(t, db.Create(&articleTag{ArticleID: "a1", TagID: "t1"}).Error)

	return db
}

func TestDocumentDefaultRendering(t *testing.T) {
	source := NewGormSource(testDB(t), testSchema())

	doc, err := source.Document(context.Background(), change.Identity{Index: "articles", RecordID: "a1"})
	require.NoError(t, err)
	assert.Equal(t, "Dispossessed", doc["title"])
	assert.Equal(t, "au1", doc["author_id"])
}

func TestDocumentMissingRecord(t *testing.T) {
	source := NewGormSource(testDB(t), testSchema())

	_, err := source.Document(context.Background(), change.Identity{Index: "articles", RecordID: "nope"})
	assert.ErrorIs(t, err, ErrRecordGone)
}

func TestDocumentUnknownIndexIsPermanent(t *testing.T) {
	source := NewGormSource(testDB(t), testSchema())

	_, err := source.Document(context.Background(), change.Identity{Index: "ghosts", RecordID: "1"})
	require.Error(t, err)
	assert.False(t, change.IsTransient(err))
}

func TestDocumentCustomRenderer(t *testing.T) {
	schema := NewSchema(&IndexDef{
		Name:  "articles",
		Table: "articles",
		Document: func(ctx context.Context, db *gorm.DB, recordID string) (map[string]interface{}, error) {
			var a article
			if err := db.WithContext(ctx).Take(&a, "id = ?", recordID).Error; err != nil {
				return nil, err
			}
			return map[string]interface{}{"id": a.ID, "title": a.Title, "boosted": true}, nil
		},
	})
	source := NewGormSource(testDB(t), schema)

	doc, err := source.Document(context.Background(), change.Identity{Index: "articles", RecordID: "a2"})
	require.NoError(t, err)
	assert.Equal(t, true, doc["boosted"])

	_, err = source.Document(context.Background(), change.Identity{Index: "articles", RecordID: "nope"})
	assert.ErrorIs(t, err, ErrRecordGone)
}

func TestRelatedIDsOfArticle(t *testing.T) {
	source := NewGormSource(testDB(t), testSchema())

	related, err := source.RelatedIDsOf(context.Background(), change.Identity{Index: "articles", RecordID: "a1"})
	require.NoError(t, err)

	assert.ElementsMatch(t, []change.Identity{
		{Index: "authors", RecordID: "au1"},
		{Index: "tags", RecordID: "t1"},
	}, related)
}

func TestRelatedIDsOfAuthorFansOutToArticles(t *testing.T) {
	source := NewGormSource(testDB(t), testSchema())

	related, err := source.RelatedIDsOf(context.Background(), change.Identity{Index: "authors", RecordID: "au1"})
	require.NoError(t, err)

	assert.ElementsMatch(t, []change.Identity{
		{Index: "articles", RecordID: "a1"},
		{Index: "articles", RecordID: "a2"},
	}, related)
}

func TestPageIDs(t *testing.T) {
	source := NewGormSource(testDB(t), testSchema())
	ctx := context.Background()

	page1, err := source.PageIDs(ctx, "articles", 0, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1"}, page1)

	page2, err := source.PageIDs(ctx, "articles", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a2"}, page2)

	empty, err := source.PageIDs(ctx, "articles", 2, 1)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
