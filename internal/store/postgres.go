package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"coparent/api/internal/util"
	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresStore persists one plan (identified by planID) in PostgreSQL.
type PostgresStore struct {
	db     *sql.DB
	planID string
}

func NewPostgresStore(db *sql.DB, planID string) *PostgresStore {
	return &PostgresStore{db: db, planID: planID}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) PlanID() string {
	return s.planID
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) ListSections(ctx context.Context) ([]Section, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT section_id, title, content, sort_order, updated_at
		FROM plan_sections
		WHERE plan_id = $1
		ORDER BY sort_order ASC, section_id ASC
	`, s.planID)
	if err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	defer rows.Close()

	var items []Section
	for rows.Next() {
		var item Section
		if err := rows.Scan(&item.ID, &item.Title, &item.Content, &item.SortOrder, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan section: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *PostgresStore) GetSection(ctx context.Context, id SectionID) (Section, bool, error) {
	var item Section
	err := s.db.QueryRowContext(ctx, `
		SELECT section_id, title, content, sort_order, updated_at
		FROM plan_sections
		WHERE plan_id = $1 AND section_id = $2
	`, s.planID, id).Scan(&item.ID, &item.Title, &item.Content, &item.SortOrder, &item.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Section{}, false, nil
	}
	if err != nil {
		return Section{}, false, fmt.Errorf("get section: %w", err)
	}
	return item, true, nil
}

func (s *PostgresStore) EnsureSection(ctx context.Context, section Section, approval Approval) (bool, error) {
	var created bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO plan_sections (plan_id, section_id, title, content, sort_order)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (plan_id, section_id) DO NOTHING
		`, s.planID, section.ID, section.Title, section.Content, section.SortOrder)
		if err != nil {
			return fmt.Errorf("insert section: %w", err)
		}
		affected, _ := res.RowsAffected()
		if affected == 0 {
			return nil
		}
		created = true
		return s.upsertApprovalTx(ctx, tx, section.ID, approval)
	})
	return created, err
}

func (s *PostgresStore) SetContent(ctx context.Context, id SectionID, content string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO plan_sections (plan_id, section_id, title, content, sort_order)
		VALUES ($1, $2, $2, $3, (SELECT COUNT(*) FROM plan_sections WHERE plan_id = $1))
		ON CONFLICT (plan_id, section_id) DO UPDATE SET content = EXCLUDED.content, updated_at = NOW()
	`, s.planID, id, content)
	if err != nil {
		return fmt.Errorf("set content: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListVersions(ctx context.Context, id SectionID) ([]VersionEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, section_id, seq, content, author, note, created_at
		FROM section_versions
		WHERE plan_id = $1 AND section_id = $2
		ORDER BY seq ASC
	`, s.planID, id)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var items []VersionEntry
	for rows.Next() {
		var item VersionEntry
		if err := rows.Scan(&item.ID, &item.SectionID, &item.Seq, &item.Content, &item.Author, &item.Note, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *PostgresStore) VersionCounts(ctx context.Context) (map[SectionID]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT section_id, COUNT(*)
		FROM section_versions
		WHERE plan_id = $1
		GROUP BY section_id
	`, s.planID)
	if err != nil {
		return nil, fmt.Errorf("count versions: %w", err)
	}
	defer rows.Close()

	counts := map[SectionID]int{}
	for rows.Next() {
		var id SectionID
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scan version count: %w", err)
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

// SeedVersion inserts entry as seq 0 unless the ledger already has one.
func (s *PostgresStore) SeedVersion(ctx context.Context, entry VersionEntry) (bool, error) {
	var created bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.lockSectionTx(ctx, tx, entry.SectionID); err != nil {
			return err
		}
		if entry.ID == "" {
			entry.ID = util.NewID("ver")
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO section_versions (id, plan_id, section_id, seq, content, author, note, created_at)
			VALUES ($1, $2, $3, 0, $4, $5, $6, COALESCE($7, NOW()))
			ON CONFLICT (plan_id, section_id, seq) DO NOTHING
		`, entry.ID, s.planID, entry.SectionID, entry.Content, entry.Author, entry.Note, nullTime(entry))
		if err != nil {
			return fmt.Errorf("seed version: %w", err)
		}
		affected, _ := res.RowsAffected()
		created = affected == 1
		return nil
	})
	return created, err
}

func (s *PostgresStore) AppendVersion(ctx context.Context, entry VersionEntry) (VersionEntry, error) {
	var stored VersionEntry
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.lockSectionTx(ctx, tx, entry.SectionID); err != nil {
			return err
		}
		var err error
		stored, err = s.appendTx(ctx, tx, entry)
		return err
	})
	return stored, err
}

func (s *PostgresStore) GetApproval(ctx context.Context, id SectionID) (Approval, error) {
	var approval Approval
	err := s.db.QueryRowContext(ctx, `
		SELECT party_a, party_b FROM section_approvals WHERE plan_id = $1 AND section_id = $2
	`, s.planID, id).Scan(&approval.PartyA, &approval.PartyB)
	if errors.Is(err, sql.ErrNoRows) {
		return Approval{}, nil
	}
	if err != nil {
		return Approval{}, fmt.Errorf("get approval: %w", err)
	}
	return approval, nil
}

func (s *PostgresStore) SetApproval(ctx context.Context, id SectionID, approval Approval) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.ensureSectionTx(ctx, tx, id); err != nil {
			return err
		}
		return s.upsertApprovalTx(ctx, tx, id, approval)
	})
}

// ToggleApproval holds the section row lock across the read and the write, so
// it serialises with other toggles and with CommitVersion.
func (s *PostgresStore) ToggleApproval(ctx context.Context, id SectionID, party Party) (Approval, error) {
	var next Approval
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.lockSectionTx(ctx, tx, id); err != nil {
			return err
		}
		var current Approval
		err := tx.QueryRowContext(ctx, `
			SELECT party_a, party_b FROM section_approvals WHERE plan_id = $1 AND section_id = $2
		`, s.planID, id).Scan(&current.PartyA, &current.PartyB)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("read approval: %w", err)
		}
		next = current.With(party, !current.For(party))
		return s.upsertApprovalTx(ctx, tx, id, next)
	})
	if err != nil {
		return Approval{}, err
	}
	return next, nil
}

// CommitVersion writes the new current content, appends the ledger entry and
// stores the approval flags in a single transaction. A non-nil base is
// compared with the locked row's content first.
func (s *PostgresStore) CommitVersion(ctx context.Context, entry VersionEntry, approval Approval, base *string) (VersionEntry, error) {
	var stored VersionEntry
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.lockSectionTx(ctx, tx, entry.SectionID); err != nil {
			return err
		}
		if base != nil {
			var current string
			if err := tx.QueryRowContext(ctx, `
				SELECT content FROM plan_sections WHERE plan_id = $1 AND section_id = $2
			`, s.planID, entry.SectionID).Scan(&current); err != nil {
				return fmt.Errorf("read content: %w", err)
			}
			if current != *base {
				return ErrStaleContent
			}
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE plan_sections SET content = $3, updated_at = NOW()
			WHERE plan_id = $1 AND section_id = $2
		`, s.planID, entry.SectionID, entry.Content); err != nil {
			return fmt.Errorf("update content: %w", err)
		}
		var err error
		stored, err = s.appendTx(ctx, tx, entry)
		if err != nil {
			return err
		}
		return s.upsertApprovalTx(ctx, tx, entry.SectionID, approval)
	})
	return stored, err
}

func (s *PostgresStore) CreateAccount(ctx context.Context, account Account) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO parent_accounts (id, email, display_name, password_hash, party, role)
		VALUES ($1, LOWER($2), $3, $4, $5, $6)
	`, account.ID, account.Email, account.DisplayName, account.PasswordHash, string(account.Party), account.Role)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAccountByEmail(ctx context.Context, email string) (Account, error) {
	return s.scanAccount(s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, password_hash, party, role, created_at
		FROM parent_accounts WHERE email = LOWER($1)
	`, strings.TrimSpace(email)))
}

func (s *PostgresStore) GetAccountByID(ctx context.Context, id string) (Account, error) {
	return s.scanAccount(s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, password_hash, party, role, created_at
		FROM parent_accounts WHERE id = $1
	`, id))
}

func (s *PostgresStore) ListAccountsByParty(ctx context.Context, party Party) ([]Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, email, display_name, password_hash, party, role, created_at
		FROM parent_accounts WHERE party = $1
		ORDER BY email ASC
	`, string(party))
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var items []Account
	for rows.Next() {
		item, err := s.scanAccount(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *PostgresStore) scanAccount(row rowScanner) (Account, error) {
	var account Account
	var party string
	if err := row.Scan(&account.ID, &account.Email, &account.DisplayName, &account.PasswordHash, &party, &account.Role, &account.CreatedAt); err != nil {
		return Account{}, err
	}
	account.Party = Party(party)
	return account, nil
}

func (s *PostgresStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) ensureSectionTx(ctx context.Context, tx *sql.Tx, id SectionID) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO plan_sections (plan_id, section_id, title, content, sort_order)
		VALUES ($1, $2, $2, '', (SELECT COUNT(*) FROM plan_sections WHERE plan_id = $1))
		ON CONFLICT (plan_id, section_id) DO NOTHING
	`, s.planID, id); err != nil {
		return fmt.Errorf("ensure section: %w", err)
	}
	return nil
}

// lockSectionTx creates the section row when missing and takes a row lock so
// concurrent appends to the same ledger are serialised.
func (s *PostgresStore) lockSectionTx(ctx context.Context, tx *sql.Tx, id SectionID) error {
	if err := s.ensureSectionTx(ctx, tx, id); err != nil {
		return err
	}
	var locked string
	if err := tx.QueryRowContext(ctx, `
		SELECT section_id FROM plan_sections WHERE plan_id = $1 AND section_id = $2 FOR UPDATE
	`, s.planID, id).Scan(&locked); err != nil {
		return fmt.Errorf("lock section: %w", err)
	}
	return nil
}

func (s *PostgresStore) appendTx(ctx context.Context, tx *sql.Tx, entry VersionEntry) (VersionEntry, error) {
	if entry.ID == "" {
		entry.ID = util.NewID("ver")
	}
	err := tx.QueryRowContext(ctx, `
		INSERT INTO section_versions (id, plan_id, section_id, seq, content, author, note, created_at)
		VALUES (
			$1, $2, $3,
			(SELECT COALESCE(MAX(seq) + 1, 0) FROM section_versions WHERE plan_id = $2 AND section_id = $3),
			$4, $5, $6, COALESCE($7, NOW())
		)
		RETURNING seq, created_at
	`, entry.ID, s.planID, entry.SectionID, entry.Content, entry.Author, entry.Note, nullTime(entry)).Scan(&entry.Seq, &entry.CreatedAt)
	if err != nil {
		return VersionEntry{}, fmt.Errorf("append version: %w", err)
	}
	return entry, nil
}

func (s *PostgresStore) upsertApprovalTx(ctx context.Context, tx *sql.Tx, id SectionID, approval Approval) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO section_approvals (plan_id, section_id, party_a, party_b)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (plan_id, section_id) DO UPDATE
		SET party_a = EXCLUDED.party_a, party_b = EXCLUDED.party_b, updated_at = NOW()
	`, s.planID, id, approval.PartyA, approval.PartyB); err != nil {
		return fmt.Errorf("set approval: %w", err)
	}
	return nil
}

func nullTime(entry VersionEntry) sql.NullTime {
	return sql.NullTime{Time: entry.CreatedAt, Valid: !entry.CreatedAt.IsZero()}
}
