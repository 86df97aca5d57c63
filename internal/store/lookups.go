package store

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"time"
)

// Lookup is one recorded upstream call.
type Lookup struct {
	ID          int64     `json:"id"`
	FetchedAt   time.Time `json:"fetchedAt"`
	Service     string    `json:"service"`
	Endpoint    string    `json:"endpoint"`
	Status      int       `json:"status"`
	DurationMS  int64     `json:"durationMs"`
	PayloadHash string    `json:"payloadHash,omitempty"`
}

// RecordLookup stores an upstream call and its compressed body. Identical
// bodies are stored once and shared by hash. The endpoint is recorded without
// its query string, which carries caller coordinates.
func (s *Store) RecordLookup(service, endpoint string, status int, elapsed time.Duration, payload []byte) error {
	now := time.Now().UTC()

	var hash sql.NullString
	if len(payload) > 0 {
		sum := sha256.Sum256(payload)
		hash = sql.NullString{String: hex.EncodeToString(sum[:]), Valid: true}

		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		if _, err := gz.Write(payload); err != nil {
			return fmt.Errorf("compress payload: %w", err)
		}
		if err := gz.Close(); err != nil {
			return fmt.Errorf("close gzip: %w", err)
		}

		if _, err := s.db.Exec(`
			INSERT INTO lookup_payloads (payload_hash, payload_compressed, size_bytes, first_seen_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(payload_hash) DO NOTHING
		`, hash, buf.Bytes(), len(payload), now); err != nil {
			return fmt.Errorf("insert payload: %w", err)
		}
	}

	if _, err := s.db.Exec(`
		INSERT INTO lookups (fetched_at, service, endpoint, status, duration_ms, payload_hash)
		VALUES (?, ?, ?, ?, ?, ?)
	`, now, service, stripQuery(endpoint), status, elapsed.Milliseconds(), hash); err != nil {
		return fmt.Errorf("insert lookup: %w", err)
	}
	return nil
}

func stripQuery(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return endpoint
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

// RecentLookups returns the newest lookups first.
func (s *Store) RecentLookups(limit int) ([]Lookup, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, fetched_at, service, endpoint, status, duration_ms, payload_hash
		FROM lookups
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lookups []Lookup
	for rows.Next() {
		var l Lookup
		var hash sql.NullString
		if err := rows.Scan(&l.ID, &l.FetchedAt, &l.Service, &l.Endpoint, &l.Status, &l.DurationMS, &hash); err != nil {
			return nil, err
		}
		l.PayloadHash = hash.String
		lookups = append(lookups, l)
	}
	return lookups, rows.Err()
}

// GetPayload retrieves and decompresses a stored body by hash.
func (s *Store) GetPayload(hash string) ([]byte, error) {
	var compressed []byte
	err := s.db.QueryRow(`SELECT payload_compressed FROM lookup_payloads WHERE payload_hash = ?`, hash).
		Scan(&compressed)
	if err != nil {
		return nil, err
	}

	gz, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("create gzip reader: %w", err)
	}
	defer gz.Close()

	return io.ReadAll(gz)
}

// ServiceStats summarises lookups for one service.
type ServiceStats struct {
	Count         int     `json:"count"`
	Failures      int     `json:"failures"`
	AvgDurationMS float64 `json:"avgDurationMs"`
}

func (s *Store) LookupStats() (map[string]ServiceStats, error) {
	rows, err := s.db.Query(`
		SELECT service, COUNT(*),
		       SUM(CASE WHEN status < 200 OR status >= 300 THEN 1 ELSE 0 END),
		       AVG(duration_ms)
		FROM lookups
		GROUP BY service
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make(map[string]ServiceStats)
	for rows.Next() {
		var service string
		var st ServiceStats
		if err := rows.Scan(&service, &st.Count, &st.Failures, &st.AvgDurationMS); err != nil {
			return nil, err
		}
		stats[service] = st
	}
	return stats, rows.Err()
}

// CleanupOldLookups deletes lookups older than maxAge along with payloads no
// longer referenced. Returns the number of deleted lookups.
func (s *Store) CleanupOldLookups(maxAge time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	result, err := s.db.Exec(`DELETE FROM lookups WHERE fetched_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	if _, err := s.db.Exec(`
		DELETE FROM lookup_payloads
		WHERE payload_hash NOT IN (SELECT payload_hash FROM lookups WHERE payload_hash IS NOT NULL)
	`); err != nil {
		return 0, fmt.Errorf("prune payloads: %w", err)
	}
	return result.RowsAffected()
}
