package store

import memdb "github.com/hashicorp/go-memdb"

const (
	tableTasks = "tasks"
)

// taskRecord is the memdb-indexed projection of a persisted TaskInfo, kept
// in lockstep with the durable copy under /Tasks/<name>/TaskInfo. memdb is
// the queryable cache over PersistentStore; it is rebuilt from
// PersistentStore on process start and never treated as the source of
// truth.
type taskRecord struct {
	Name   string
	TaskID string
}

func stateSchema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			tableTasks: {
				Name: tableTasks,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:         "id",
						AllowMissing: false,
						Unique:       true,
						Indexer:      &memdb.StringFieldIndex{Field: "Name"},
					},
					"task_id": {
						Name:         "task_id",
						AllowMissing: true,
						Unique:       false,
						Indexer:      &memdb.StringFieldIndex{Field: "TaskID"},
					},
				},
			},
		},
	}
}
