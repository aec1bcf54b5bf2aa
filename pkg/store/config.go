package store

import (
	"fmt"

	uuid "github.com/hashicorp/go-uuid"
	version "github.com/hashicorp/go-version"
)

// ConfigTargetPath is the persistent pointer to the current target config id.
const ConfigTargetPath = "/ConfigTarget"

func configPath(id string) string { return fmt.Sprintf("/Configurations/%s", id) }

// RawSpec is a serialized ServiceSpec blob; pkg/spec owns marshaling.
type RawSpec []byte

// ConfigStore stores serialized ServiceSpecs keyed by UUID and maintains a
// target pointer.
type ConfigStore struct {
	ps PersistentStore
}

// NewConfigStore constructs a ConfigStore over ps.
func NewConfigStore(ps PersistentStore) *ConfigStore {
	return &ConfigStore{ps: ps}
}

// Store persists spec under a freshly generated id and returns it.
func (c *ConfigStore) Store(spec RawSpec) (string, error) {
	id, err := uuid.GenerateUUID()
	if err != nil {
		return "", fmt.Errorf("config store: generating id: %w", err)
	}
	if err := c.ps.Set(configPath(id), spec); err != nil {
		return "", &ErrStorageError{Path: configPath(id), Err: err}
	}
	return id, nil
}

// Fetch retrieves a previously-stored spec by id.
func (c *ConfigStore) Fetch(id string) (RawSpec, error) {
	b, err := c.ps.Get(configPath(id))
	if err != nil {
		if err == ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, &ErrStorageError{Path: configPath(id), Err: err}
	}
	return RawSpec(b), nil
}

// SetTargetConfig records id as the current target. schedulerVersion is the
// running scheduler's own version; minCompatible, if non-empty, is the
// minimum scheduler version the incoming config declares it requires
// (pkg/spec.ServiceSpec.MinSchedulerVersion) — a downgrade across that
// boundary is refused rather than silently accepted.
func (c *ConfigStore) SetTargetConfig(id string, schedulerVersion string, minCompatible string) error {
	if minCompatible != "" && schedulerVersion != "" {
		min, err := version.NewVersion(minCompatible)
		if err != nil {
			return fmt.Errorf("config store: parsing minimum scheduler version %q: %w", minCompatible, err)
		}
		cur, err := version.NewVersion(schedulerVersion)
		if err != nil {
			return fmt.Errorf("config store: parsing scheduler version %q: %w", schedulerVersion, err)
		}
		if cur.LessThan(min) {
			return fmt.Errorf("config store: target config requires scheduler >= %s, running %s", min, cur)
		}
	}
	return c.ps.Set(ConfigTargetPath, []byte(id))
}

// GetTargetConfig returns the current target config id.
func (c *ConfigStore) GetTargetConfig() (string, error) {
	b, err := c.ps.Get(ConfigTargetPath)
	if err != nil {
		if err == ErrNotFound {
			return "", ErrNotFound
		}
		return "", &ErrStorageError{Path: ConfigTargetPath, Err: err}
	}
	return string(b), nil
}

// List returns every stored config id.
func (c *ConfigStore) List() ([]string, error) {
	ids, err := c.ps.List("/Configurations")
	if err != nil {
		if err == ErrNotFound {
			return nil, nil
		}
		return nil, &ErrStorageError{Path: "/Configurations", Err: err}
	}
	return ids, nil
}

// GC removes every stored config id not in referenced and not the current
// target. Callers compute referenced from the set of configs named by
// live, non-permanently-failed TaskInfos.
func (c *ConfigStore) GC(referenced map[string]bool) error {
	target, err := c.GetTargetConfig()
	if err != nil && err != ErrNotFound {
		return err
	}
	ids, err := c.List()
	if err != nil {
		return err
	}
	for _, id := range ids {
		if id == target || referenced[id] {
			continue
		}
		if err := c.ps.Delete(configPath(id)); err != nil && err != ErrNotFound {
			return &ErrStorageError{Path: configPath(id), Err: err}
		}
	}
	return nil
}
