package store

import "fmt"

const targetNamespace = "target"

// Target is the device selected for monitoring.
type Target struct {
	ID   string `json:"target_id"`
	Name string `json:"name"`
}

// SaveTarget persists the selected target.
func (s *Store) SaveTarget(t Target) error {
	if t.ID == "" {
		return fmt.Errorf("save target: empty id")
	}
	if err := s.Set(targetNamespace, "id", t.ID); err != nil {
		return err
	}
	return s.Set(targetNamespace, "name", t.Name)
}

// LoadTarget returns the persisted target. ok is false if none was saved.
func (s *Store) LoadTarget() (t Target, ok bool, err error) {
	kv, err := s.List(targetNamespace)
	if err != nil {
		return Target{}, false, err
	}
	if kv["id"] == "" {
		return Target{}, false, nil
	}
	return Target{ID: kv["id"], Name: kv["name"]}, true, nil
}

// ClearTarget forgets the selected target. Clearing an empty selection
// is not an error.
func (s *Store) ClearTarget() error {
	return s.Clear(targetNamespace)
}
