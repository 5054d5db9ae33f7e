package notify

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"plansync/internal/types"
)

// DismissalStore persists dismissals for one user identity.
type DismissalStore interface {
	Load() ([]Dismissal, error)
	Save(dismissals []Dismissal) error
	Reset() error
}

// FileStore keeps dismissals in one JSON file per user identity under a base
// directory. Identity switch means constructing a new FileStore, which reads
// a different file; Reset removes the file.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore returns a store for userID rooted at dir. The directory is
// created on first Save.
func NewFileStore(dir, userID string) *FileStore {
	return &FileStore{
		path: filepath.Join(dir, fmt.Sprintf("dismissals_%s.json", userID)),
	}
}

func (s *FileStore) Load() ([]Dismissal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading dismissals: %w", err)
	}

	var out []Dismissal
	if err := json.Unmarshal(data, &out); err != nil {
		// A corrupt file is discarded rather than wedging notifications.
		return nil, nil
	}
	return out, nil
}

func (s *FileStore) Save(dismissals []Dismissal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating dismissal dir: %w", err)
	}
	data, err := json.Marshal(dismissals)
	if err != nil {
		return fmt.Errorf("encoding dismissals: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("writing dismissals: %w", err)
	}
	return nil
}

func (s *FileStore) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing dismissals: %w", err)
	}
	return nil
}

var _ DismissalStore = (*FileStore)(nil)

// MemoryStore holds dismissals in memory. Used for once-per-session scoping
// and in tests.
type MemoryStore struct {
	mu         sync.Mutex
	dismissals []Dismissal
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Load() ([]Dismissal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Dismissal, len(s.dismissals))
	copy(out, s.dismissals)
	return out, nil
}

func (s *MemoryStore) Save(dismissals []Dismissal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dismissals = make([]Dismissal, len(dismissals))
	copy(s.dismissals, dismissals)
	return nil
}

func (s *MemoryStore) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dismissals = nil
	return nil
}

var _ DismissalStore = (*MemoryStore)(nil)

// Notifier binds the pure policy to a settings value and a dismissal store
// for one user identity.
type Notifier struct {
	mu       sync.Mutex
	store    DismissalStore
	settings Settings
	clock    types.Clock
}

func NewNotifier(store DismissalStore, settings Settings, clock types.Clock) *Notifier {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &Notifier{store: store, settings: settings, clock: clock}
}

// ShouldShow evaluates the policy against the persisted dismissals,
// pruning expired records as a side effect.
func (n *Notifier) ShouldShow(cond Condition, snapshot *types.PlanLimitSnapshot) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	dismissals, err := n.store.Load()
	if err != nil {
		return false, err
	}

	now := n.clock.Now()
	pruned := Prune(dismissals, n.settings.Frequency, now)
	if len(pruned) != len(dismissals) {
		if err := n.store.Save(pruned); err != nil {
			return false, err
		}
	}

	return ShouldShow(cond, snapshot, n.settings, pruned, now), nil
}

// Dismiss records an acknowledgment of the warning for cond at the current
// usage level. Older dismissals outside the window stay until the next
// evaluation pass prunes them.
func (n *Notifier) Dismiss(cond Condition, snapshot *types.PlanLimitSnapshot) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	dismissals, err := n.store.Load()
	if err != nil {
		return err
	}
	dismissals = append(dismissals, Dismissal{
		Key:         DismissalKey(cond, snapshot),
		DismissedAt: n.clock.Now(),
	})
	return n.store.Save(dismissals)
}

// Reset clears all dismissals, e.g. on logout or identity switch.
func (n *Notifier) Reset() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.store.Reset()
}

// UpdateSettings swaps the active settings.
func (n *Notifier) UpdateSettings(s Settings) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.settings = s
}
