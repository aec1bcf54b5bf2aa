package store

// UninstallPath is the persistent marker recording that the service has
// entered uninstall mode. The run command does not check it at startup; an
// interrupted uninstall is resumed by running the uninstall command against
// the same store.
const UninstallPath = "/SchedulerState/Uninstall"

// UninstallStore wraps the single uninstall-bit record.
type UninstallStore struct {
	ps PersistentStore
}

// NewUninstallStore constructs an UninstallStore over ps.
func NewUninstallStore(ps PersistentStore) *UninstallStore {
	return &UninstallStore{ps: ps}
}

// SetUninstalling marks the service as entering uninstall.
func (s *UninstallStore) SetUninstalling() error {
	return s.ps.Set(UninstallPath, []byte{1})
}

// IsUninstalling reports whether the uninstall bit has been set.
func (s *UninstallStore) IsUninstalling() (bool, error) {
	_, err := s.ps.Get(UninstallPath)
	if err == ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
