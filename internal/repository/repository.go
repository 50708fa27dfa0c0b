package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ZhonFortune/classtab-ics-backend/internal/model"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) GetUserByName(ctx context.Context, name string) (model.User, error) {
	var user model.User
	row := s.pool.QueryRow(ctx, `
		SELECT uid, name, password_hash, level, token
		FROM users
		WHERE name = $1
	`, name)
	err := row.Scan(
		&user.UID,
		&user.Name,
		&user.PasswordHash,
		&user.Level,
		&user.Token,
	)
	return user, err
}

func (s *Store) UserExistsByToken(ctx context.Context, token string) (bool, error) {
	var exists bool
	row := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE token = $1)`, token)
	if err := row.Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// CreateUser inserts the user unless the name is already taken. The unique key
// on name makes this a single atomic insert-if-absent; the returned bool is
// false when an existing row won the race.
func (s *Store) CreateUser(ctx context.Context, user model.User) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO users (name, password_hash, level, token)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO NOTHING
	`, user.Name, user.PasswordHash, user.Level, user.Token)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// CreatePeriodEntry inserts a period-template entry keyed by its derived
// identifier. A false return means the identical tuple was already stored and
// nothing was mutated.
func (s *Store) CreatePeriodEntry(ctx context.Context, entry model.PeriodEntry) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO class_durations (ccid, cid, owner_token, label, ordinal, start_offset, end_offset)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (ccid) DO NOTHING
	`, entry.CCID, entry.CID, entry.OwnerToken, entry.Label, entry.Index, entry.Start, entry.End)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) ListPeriodEntriesByOwner(ctx context.Context, token string) ([]model.PeriodEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT ccid, cid, owner_token, label, ordinal, start_offset, end_offset
		FROM class_durations
		WHERE owner_token = $1
		ORDER BY cid, ordinal
	`, token)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []model.PeriodEntry{}
	for rows.Next() {
		var entry model.PeriodEntry
		if err := rows.Scan(&entry.CCID, &entry.CID, &entry.OwnerToken, &entry.Label, &entry.Index, &entry.Start, &entry.End); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *Store) TermExists(ctx context.Context, cid string) (bool, error) {
	var exists bool
	row := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM terms WHERE cid = $1)`, cid)
	if err := row.Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (s *Store) CreateTerm(ctx context.Context, term model.Term) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO terms (cid, ccid, owner_token, first_school, second_school, class_count, week_count, start_at, end_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (cid) DO NOTHING
	`, term.CID, term.CCID, term.OwnerToken, term.FirstSchool, term.SecondSchool, term.ClassCount, term.WeekCount, term.Start, term.End)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) ListTermsByOwner(ctx context.Context, token string) ([]model.Term, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT cid, ccid, owner_token, first_school, second_school, class_count, week_count, start_at, end_at
		FROM terms
		WHERE owner_token = $1
		ORDER BY start_at
	`, token)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	terms := []model.Term{}
	for rows.Next() {
		var term model.Term
		if err := rows.Scan(&term.CID, &term.CCID, &term.OwnerToken, &term.FirstSchool, &term.SecondSchool, &term.ClassCount, &term.WeekCount, &term.Start, &term.End); err != nil {
			return nil, err
		}
		terms = append(terms, term)
	}
	return terms, rows.Err()
}

func (s *Store) CreateClassEntry(ctx context.Context, entry model.ClassEntry) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO classes (ccid, cid, owner_token, table_name, class_name, week, weekday, refc, teacher, location, classroom)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (ccid) DO NOTHING
	`, entry.CCID, entry.CID, entry.OwnerToken, entry.TableName, entry.ClassName, entry.Week, entry.Weekday, entry.RefC, entry.Teacher, entry.Location, entry.Classroom)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) ListClassEntriesByOwner(ctx context.Context, token string) ([]model.ClassEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT ccid, cid, owner_token, table_name, class_name, week, weekday, refc, teacher, location, classroom
		FROM classes
		WHERE owner_token = $1
		ORDER BY cid, weekday, refc
	`, token)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []model.ClassEntry{}
	for rows.Next() {
		var entry model.ClassEntry
		if err := rows.Scan(&entry.CCID, &entry.CID, &entry.OwnerToken, &entry.TableName, &entry.ClassName, &entry.Week, &entry.Weekday, &entry.RefC, &entry.Teacher, &entry.Location, &entry.Classroom); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
