package store

import (
	"database/sql"
)

// Store is the lookup log. It is opened on an in-memory database unless the
// operator points it at a file.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Ping reports whether the underlying database is reachable.
func (s *Store) Ping() error {
	return s.db.Ping()
}
