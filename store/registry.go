package store

import "fmt"

// Store is the top-level registry of named collections. Persistence of the
// registry is handled by the packages under persist/, which consume Snapshot
// and Restore.
type Store struct {
	cfg         Config
	collections map[string]*Collection
	order       []string
}

// New creates a Store with the given configuration. Collections declared in
// the configuration are created up front with their configured constraints.
func New(cfg Config) (*Store, error) {
	cfg.validate()
	s := &Store{
		cfg:         cfg,
		collections: make(map[string]*Collection),
	}
	for _, cc := range cfg.Collections {
		coll, err := s.CreateCollection(cc.Name)
		if err != nil {
			return nil, fmt.Errorf("bootstrap collection %q: %w", cc.Name, err)
		}
		for _, conCfg := range cc.Constraints {
			con, err := conCfg.build()
			if err != nil {
				return nil, fmt.Errorf("bootstrap collection %q: %w", cc.Name, err)
			}
			coll.AddConstraints(con)
		}
	}
	return s, nil
}

// CreateCollection creates and registers an empty collection.
func (s *Store) CreateCollection(name string) (*Collection, error) {
	if name == "" {
		return nil, fmt.Errorf("lattice: collection name must not be empty")
	}
	if _, ok := s.collections[name]; ok {
		return nil, ErrAlreadyExists
	}
	coll := newCollection(name, s.cfg)
	s.collections[name] = coll
	s.order = append(s.order, name)
	s.cfg.Logger.Debug("collection created", "collection", name)
	return coll, nil
}

// Collection returns the collection with the given name.
func (s *Store) Collection(name string) (*Collection, error) {
	coll, ok := s.collections[name]
	if !ok {
		return nil, ErrNotFound
	}
	return coll, nil
}

// Collections returns all collections in creation order.
func (s *Store) Collections() []*Collection {
	out := make([]*Collection, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.collections[name])
	}
	return out
}

// DropCollection removes a collection and everything it owns.
// It fails with ErrUnresolvedTransaction while the collection has an open
// transaction.
func (s *Store) DropCollection(name string) error {
	coll, ok := s.collections[name]
	if !ok {
		return ErrNotFound
	}
	if coll.InTxn() {
		return ErrUnresolvedTransaction
	}
	delete(s.collections, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}
