package store

import (
	"encoding/json"
	"fmt"
	"sync"

	memdb "github.com/hashicorp/go-memdb"
	hclog "github.com/hashicorp/go-hclog"

	"github.com/takirala/dcos-commons/pkg/offer"
)

func taskInfoPath(name string) string     { return fmt.Sprintf("/Tasks/%s/TaskInfo", name) }
func taskStatusPath(name string) string   { return fmt.Sprintf("/Tasks/%s/TaskStatus", name) }
func goalOverridePath(name string) string { return fmt.Sprintf("/Tasks/%s/GoalOverrideStatus", name) }
func propertyPath(name, key string) string {
	return fmt.Sprintf("/Tasks/%s/Properties/%s", name, key)
}

// StateStore persists TaskInfos, TaskStatuses, GoalOverrides, and per-task
// properties. A memdb instance mirrors the TaskInfo set for fast lookup by
// name or by task-id; every write goes to PersistentStore first and memdb
// is only updated after the durable write succeeds.
type StateStore struct {
	ps     PersistentStore
	logger hclog.Logger

	mu sync.Mutex
	db *memdb.MemDB
	// lastStatus tracks the most recently applied state per task-id so
	// storeStatus can enforce the terminal->non-terminal rule without a
	// round trip through PersistentStore.
	lastStatus map[string]offer.TaskState
}

// NewStateStore constructs a StateStore over ps and rebuilds its memdb index
// from whatever TaskInfos are already durable (process restart recovery).
func NewStateStore(ps PersistentStore, logger hclog.Logger) (*StateStore, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	db, err := memdb.NewMemDB(stateSchema())
	if err != nil {
		return nil, fmt.Errorf("state store: building index: %w", err)
	}
	s := &StateStore{
		ps:         ps,
		logger:     logger.Named("state-store"),
		db:         db,
		lastStatus: make(map[string]offer.TaskState),
	}
	if err := s.rebuildIndex(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *StateStore) rebuildIndex() error {
	names, err := s.ps.List("/Tasks")
	if err != nil {
		if err == ErrNotFound {
			return nil
		}
		return &ErrStorageError{Path: "/Tasks", Err: err}
	}
	txn := s.db.Txn(true)
	defer txn.Abort()
	for _, name := range names {
		info, err := s.readTaskInfo(name)
		if err != nil {
			if err == ErrNotFound {
				continue
			}
			return err
		}
		if err := txn.Insert(tableTasks, taskRecord{Name: info.Name, TaskID: info.TaskID}); err != nil {
			return fmt.Errorf("state store: rebuilding index for %q: %w", name, err)
		}
		if status, ok, err := s.readTaskStatus(name); err == nil && ok {
			s.lastStatus[status.TaskID] = status.State
		}
	}
	txn.Commit()
	return nil
}

func (s *StateStore) readTaskInfo(name string) (offer.TaskInfo, error) {
	b, err := s.ps.Get(taskInfoPath(name))
	if err != nil {
		if err == ErrNotFound {
			return offer.TaskInfo{}, ErrNotFound
		}
		return offer.TaskInfo{}, &ErrStorageError{Path: taskInfoPath(name), Err: err}
	}
	var info offer.TaskInfo
	if err := json.Unmarshal(b, &info); err != nil {
		return offer.TaskInfo{}, fmt.Errorf("state store: decoding TaskInfo %q: %w", name, err)
	}
	return info, nil
}

func (s *StateStore) readTaskStatus(name string) (offer.TaskStatus, bool, error) {
	b, err := s.ps.Get(taskStatusPath(name))
	if err != nil {
		if err == ErrNotFound {
			return offer.TaskStatus{}, false, nil
		}
		return offer.TaskStatus{}, false, &ErrStorageError{Path: taskStatusPath(name), Err: err}
	}
	var st offer.TaskStatus
	if err := json.Unmarshal(b, &st); err != nil {
		return offer.TaskStatus{}, false, fmt.Errorf("state store: decoding TaskStatus %q: %w", name, err)
	}
	return st, true, nil
}

// StoreTasks upserts each TaskInfo, one write at a time, so that a crash
// mid-batch leaves at most one inconsistent task rather than all of them
// (see LaunchRecorder crash-safety contract).
func (s *StateStore) StoreTasks(tasks []offer.TaskInfo) error {
	for _, t := range tasks {
		if err := s.storeTask(t); err != nil {
			return err
		}
	}
	return nil
}

func (s *StateStore) storeTask(t offer.TaskInfo) error {
	b, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("state store: encoding TaskInfo %q: %w", t.Name, err)
	}
	if err := s.ps.Set(taskInfoPath(t.Name), b); err != nil {
		return &ErrStorageError{Path: taskInfoPath(t.Name), Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	txn := s.db.Txn(true)
	if err := txn.Insert(tableTasks, taskRecord{Name: t.Name, TaskID: t.TaskID}); err != nil {
		txn.Abort()
		return fmt.Errorf("state store: indexing TaskInfo %q: %w", t.Name, err)
	}
	txn.Commit()
	return nil
}

// FetchTasks returns every persisted TaskInfo.
func (s *StateStore) FetchTasks() ([]offer.TaskInfo, error) {
	names, err := s.ps.List("/Tasks")
	if err != nil {
		if err == ErrNotFound {
			return nil, nil
		}
		return nil, &ErrStorageError{Path: "/Tasks", Err: err}
	}
	out := make([]offer.TaskInfo, 0, len(names))
	for _, name := range names {
		info, err := s.readTaskInfo(name)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, nil
}

// FetchTask returns a single TaskInfo by name.
func (s *StateStore) FetchTask(name string) (offer.TaskInfo, error) {
	return s.readTaskInfo(name)
}

// ClearTask removes every persisted record for name: TaskInfo, TaskStatus,
// GoalOverride, and all properties.
func (s *StateStore) ClearTask(name string) error {
	if err := s.ps.RecursiveDelete(fmt.Sprintf("/Tasks/%s", name)); err != nil {
		return &ErrStorageError{Path: fmt.Sprintf("/Tasks/%s", name), Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	txn := s.db.Txn(true)
	_, _ = txn.DeleteAll(tableTasks, "id", name)
	txn.Commit()
	return nil
}

// StoreStatus applies status to the task identified by status.TaskID.
// Idempotent: applying the same status twice is a no-op the second time.
// Fails with StateStoreError if the task-id is unknown, or if it would move
// a terminal task-id back to a non-terminal state.
func (s *StateStore) StoreStatus(status offer.TaskStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	txn := s.db.Txn(false)
	raw, err := txn.First(tableTasks, "task_id", status.TaskID)
	txn.Abort()
	if err != nil {
		return fmt.Errorf("state store: looking up task-id %q: %w", status.TaskID, err)
	}
	if raw == nil {
		return newStateStoreError("StoreStatus", ReasonUnknownTaskID, "unknown task-id %q", status.TaskID)
	}
	rec := raw.(taskRecord)

	if prev, ok := s.lastStatus[status.TaskID]; ok {
		if prev.IsTerminal() && !status.State.IsTerminal() {
			return newStateStoreError("StoreStatus", ReasonTerminalTransition, "task-id %q is terminal at %s, refusing transition to %s", status.TaskID, prev, status.State)
		}
		if prev == status.State {
			// Idempotent re-application: still persist (the message/
			// reason may differ) but this is not a transition.
		}
	}

	b, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("state store: encoding TaskStatus for %q: %w", rec.Name, err)
	}
	if err := s.ps.Set(taskStatusPath(rec.Name), b); err != nil {
		return &ErrStorageError{Path: taskStatusPath(rec.Name), Err: err}
	}
	s.lastStatus[status.TaskID] = status.State
	return nil
}

// FetchStatus returns the last-known status for a task by name.
func (s *StateStore) FetchStatus(name string) (offer.TaskStatus, bool, error) {
	return s.readTaskStatus(name)
}

// StoreGoalOverride persists a task's goal override.
func (s *StateStore) StoreGoalOverride(name string, g offer.GoalOverride) error {
	b, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("state store: encoding GoalOverride for %q: %w", name, err)
	}
	if err := s.ps.Set(goalOverridePath(name), b); err != nil {
		return &ErrStorageError{Path: goalOverridePath(name), Err: err}
	}
	return nil
}

// FetchGoalOverride returns a task's goal override, defaulting to
// (NONE, COMPLETE) when none has been set.
func (s *StateStore) FetchGoalOverride(name string) (offer.GoalOverride, error) {
	b, err := s.ps.Get(goalOverridePath(name))
	if err == ErrNotFound {
		return offer.GoalOverride{Override: offer.OverrideNone, Progress: offer.ProgressComplete}, nil
	}
	if err != nil {
		return offer.GoalOverride{}, &ErrStorageError{Path: goalOverridePath(name), Err: err}
	}
	var g offer.GoalOverride
	if err := json.Unmarshal(b, &g); err != nil {
		return offer.GoalOverride{}, fmt.Errorf("state store: decoding GoalOverride for %q: %w", name, err)
	}
	return g, nil
}

// StoreProperty persists a free-form per-task property.
func (s *StateStore) StoreProperty(name, key string, value []byte) error {
	if err := s.ps.Set(propertyPath(name, key), value); err != nil {
		return &ErrStorageError{Path: propertyPath(name, key), Err: err}
	}
	return nil
}

// FetchProperty retrieves a previously-stored per-task property.
func (s *StateStore) FetchProperty(name, key string) ([]byte, error) {
	b, err := s.ps.Get(propertyPath(name, key))
	if err != nil {
		if err == ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, &ErrStorageError{Path: propertyPath(name, key), Err: err}
	}
	return b, nil
}
