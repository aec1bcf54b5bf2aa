package store

// FrameworkPath is the persistent path where the master-assigned framework
// id is stored.
const FrameworkPath = "/FrameworkID"

// FrameworkStore wraps PersistentStore with the single framework-identity
// record.
type FrameworkStore struct {
	ps PersistentStore
}

// NewFrameworkStore constructs a FrameworkStore over ps.
func NewFrameworkStore(ps PersistentStore) *FrameworkStore {
	return &FrameworkStore{ps: ps}
}

// StoreFrameworkID persists the framework id assigned by the master.
func (s *FrameworkStore) StoreFrameworkID(id string) error {
	return s.ps.Set(FrameworkPath, []byte(id))
}

// FetchFrameworkID returns the previously-stored framework id, and false if
// none has been stored yet (first registration).
func (s *FrameworkStore) FetchFrameworkID() (string, bool, error) {
	b, err := s.ps.Get(FrameworkPath)
	if err == ErrNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(b), true, nil
}
