package ormbridge

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/indexflow-go/internal/domain/change"
	"github.com/indexflow-go/internal/syncer/bus"
	"github.com/indexflow-go/pkg/logger"
)

type article struct {
	ID    string `gorm:"primaryKey"`
	Title string
}

type draft struct {
	ID   string `gorm:"primaryKey"`
	Body string
}

type recorder struct {
	mu     sync.Mutex
	events []change.Event
}

func (r *recorder) record(ctx context.Context, ev change.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) all() []change.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]change.Event(nil), r.events...)
}

func setup(t *testing.T) (*gorm.DB, *Processor, *recorder) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&article{}, &draft{}))

	b := bus.NewLocalBus()
	rec := &recorder{}
	b.Subscribe(rec.record)

	proc := NewProcessor(b, logger.NewNop())
	proc.Track("articles", "articles")
	require.NoError(t, db.Use(proc))

	return db, proc, rec
}

func TestCreatePublishesCreatedEvent(t *testing.T) {
	db, _, rec := setup(t)

	require.NoError(t, db.Create(&article{ID: "a1", Title: "hello"}).Error)

	events := rec.all()
	require.Len(t, events, 1)
	assert.Equal(t, change.Created, events[0].Kind)
	assert.Equal(t, change.Identity{Index: "articles", RecordID: "a1"}, events[0].Identity)
}

func TestSaveAndDeleteLifecycle(t *testing.T) {
	db, _, rec := setup(t)

	a := &article{ID: "a1", Title: "hello"}
	require.NoError(t, db.Create(a).Error)

	a.Title = "hello again"
	require.NoError(t, db.Save(a).Error)

	require.NoError(t, db.Delete(a).Error)

	events := rec.all()
	require.Len(t, events, 3)
	assert.Equal(t, change.Created, events[0].Kind)
	assert.Equal(t, change.Updated, events[1].Kind)
	assert.Equal(t, change.Deleted, events[2].Kind)
	for _, ev := range events {
		assert.Equal(t, "a1", ev.Identity.RecordID)
	}
}

func TestUntrackedTableIsIgnored(t *testing.T) {
	db, _, rec := setup(t)

	require.NoError(t, db.Create(&draft{ID: "d1", Body: "wip"}).Error)

	assert.Empty(t, rec.all())
}

func TestBatchCreatePublishesPerRecord(t *testing.T) {
	db, _, rec := setup(t)

	batch := []article{{ID: "a1"}, {ID: "a2"}, {ID: "a3"}}
	require.NoError(t, db.Create(&batch).Error)

	events := rec.all()
	require.Len(t, events, 3)
	ids := []string{events[0].Identity.RecordID, events[1].Identity.RecordID, events[2].Identity.RecordID}
	assert.ElementsMatch(t, []string{"a1", "a2", "a3"}, ids)
}

func TestNotifyRelation(t *testing.T) {
	_, proc, rec := setup(t)
	id := change.Identity{Index: "articles", RecordID: "a1"}

	require.NoError(t, proc.NotifyRelation(context.Background(), id, change.RelationAdded))
	require.Error(t, proc.NotifyRelation(context.Background(), id, change.Updated))

	events := rec.all()
	require.Len(t, events, 1)
	assert.Equal(t, change.RelationAdded, events[0].Kind)
}

func TestTeardownStopsPublishing(t *testing.T) {
	db, proc, rec := setup(t)

	require.NoError(t, proc.Teardown(db))
	require.NoError(t, db.Create(&article{ID: "a1"}).Error)

	assert.Empty(t, rec.all())
}
