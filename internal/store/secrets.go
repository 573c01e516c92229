package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Secret is an encrypted value at rest; Value and Nonce come from the vault.
type Secret struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Value       []byte    `json:"-"`
	Nonce       []byte    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

func (s *Store) SaveSecret(sec *Secret) error {
	_, err := s.db.Exec(`
		INSERT INTO secrets (name, description, value, nonce)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			description = excluded.description,
			value = excluded.value,
			nonce = excluded.nonce`,
		sec.Name, sec.Description, sec.Value, sec.Nonce)
	if err != nil {
		return fmt.Errorf("save secret: %w", err)
	}
	return nil
}

func (s *Store) GetSecret(name string) (*Secret, error) {
	row := s.db.QueryRow(`SELECT name, description, value, nonce, created_at FROM secrets WHERE name = ?`, name)
	sec := &Secret{}
	var description *string
	err := row.Scan(&sec.Name, &description, &sec.Value, &sec.Nonce, &sec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get secret: %w", err)
	}
	if description != nil {
		sec.Description = *description
	}
	return sec, nil
}

// ListSecrets returns secret metadata only; encrypted values stay in the rows.
func (s *Store) ListSecrets() ([]Secret, error) {
	rows, err := s.db.Query(`SELECT name, description, created_at FROM secrets ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list secrets: %w", err)
	}
	defer rows.Close()

	var secrets []Secret
	for rows.Next() {
		sec := Secret{}
		var description *string
		if err := rows.Scan(&sec.Name, &description, &sec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan secret: %w", err)
		}
		if description != nil {
			sec.Description = *description
		}
		secrets = append(secrets, sec)
	}
	return secrets, rows.Err()
}

func (s *Store) DeleteSecret(name string) error {
	_, err := s.db.Exec(`DELETE FROM secrets WHERE name = ?`, name)
	return err
}
