package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"memberbase/internal/roster/models"
	"memberbase/pkg/domain"
	"memberbase/pkg/platform/sentinel"
	txcontext "memberbase/pkg/platform/tx"
)

// uniqueViolation is the PostgreSQL error code raised when a unique
// constraint rejects a write. The members.identifier constraint is the
// serialization point for concurrent identifier claims: one winner, the
// rest get sentinel.ErrConflict.
const uniqueViolation = "23505"

// Postgres persists the roster in PostgreSQL via database/sql + lib/pq.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed roster store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

var _ Store = (*Postgres)(nil)

func (s *Postgres) execer(ctx context.Context) txcontext.Executor {
	return txcontext.ExecutorFrom(ctx, s.db)
}

// RunInTx executes fn inside a database transaction carried via context.
func (s *Postgres) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txcontext.From(ctx); ok {
		// Already transactional; join the enclosing unit.
		return fn(ctx)
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	if err := fn(txcontext.With(ctx, sqlTx)); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Members
// -----------------------------------------------------------------------------

func (s *Postgres) CreateMember(ctx context.Context, member *models.Member) error {
	query := `
		INSERT INTO members (id, identifier, full_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(member.ID),
		member.Identifier.String(),
		member.FullName,
		member.CreatedAt,
		member.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

func (s *Postgres) FindMember(ctx context.Context, id domain.MemberID) (*models.Member, error) {
	query := `
		SELECT id, identifier, full_name, created_at, updated_at
		FROM members
		WHERE id = $1
	`
	return s.scanMember(s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(id)))
}

func (s *Postgres) FindMemberByIdentifier(ctx context.Context, identifier domain.Identifier) (*models.Member, error) {
	query := `
		SELECT id, identifier, full_name, created_at, updated_at
		FROM members
		WHERE identifier = $1
	`
	return s.scanMember(s.execer(ctx).QueryRowContext(ctx, query, identifier.String()))
}

func (s *Postgres) ListMembers(ctx context.Context) ([]*models.Member, error) {
	query := `
		SELECT id, identifier, full_name, created_at, updated_at
		FROM members
		ORDER BY created_at
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	var members []*models.Member
	for rows.Next() {
		member, err := scanMemberRow(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return members, nil
}

func (s *Postgres) UpdateMemberIdentifier(ctx context.Context, id domain.MemberID, identifier domain.Identifier, now time.Time) error {
	query := `
		UPDATE members
		SET identifier = $1, updated_at = $2
		WHERE id = $3
	`
	res, err := s.execer(ctx).ExecContext(ctx, query, identifier.String(), now, uuid.UUID(id))
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("update member identifier: %w", err)
	}
	return requireRow(res)
}

func (s *Postgres) DeleteMember(ctx context.Context, id domain.MemberID) error {
	// Subscriptions and ledger entries go with the member via FK cascade.
	res, err := s.execer(ctx).ExecContext(ctx, `DELETE FROM members WHERE id = $1`, uuid.UUID(id))
	if err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	return requireRow(res)
}

func (s *Postgres) ListIdentifiers(ctx context.Context) ([]domain.Identifier, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `SELECT identifier FROM members ORDER BY identifier`)
	if err != nil {
		return nil, fmt.Errorf("query identifiers: %w", err)
	}
	defer rows.Close()

	var identifiers []domain.Identifier
	for rows.Next() {
		var identifier string
		if err := rows.Scan(&identifier); err != nil {
			return nil, fmt.Errorf("scan identifier: %w", err)
		}
		identifiers = append(identifiers, domain.Identifier(identifier))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identifiers: %w", err)
	}
	return identifiers, nil
}

// -----------------------------------------------------------------------------
// Subscriptions
// -----------------------------------------------------------------------------

func (s *Postgres) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	query := `
		INSERT INTO subscriptions (id, member_id, start_date, duration_months, end_date, status, identifier_snapshot, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(sub.ID),
		uuid.UUID(sub.MemberID),
		sub.StartDate,
		sub.DurationMonths,
		sub.EndDate,
		string(sub.Status),
		nullIdentifier(sub.IdentifierSnapshot),
		sub.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}

func (s *Postgres) ListSubscriptions(ctx context.Context, memberID domain.MemberID) ([]*models.Subscription, error) {
	query := `
		SELECT id, member_id, start_date, duration_months, end_date, status, identifier_snapshot, created_at
		FROM subscriptions
		WHERE member_id = $1
		ORDER BY start_date
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, uuid.UUID(memberID))
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*models.Subscription
	for rows.Next() {
		var (
			sub      models.Subscription
			id       uuid.UUID
			memberID uuid.UUID
			status   string
			snapshot sql.NullString
		)
		err := rows.Scan(&id, &memberID, &sub.StartDate, &sub.DurationMonths, &sub.EndDate, &status, &snapshot, &sub.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		sub.ID = domain.SubscriptionID(id)
		sub.MemberID = domain.MemberID(memberID)
		sub.Status = models.SubscriptionStatus(status)
		if snapshot.Valid {
			sub.IdentifierSnapshot = domain.Identifier(snapshot.String)
		}
		subs = append(subs, &sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscriptions: %w", err)
	}
	return subs, nil
}

func (s *Postgres) MarkSubscriptionsExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE subscriptions
		SET status = 'expired'
		WHERE status = 'active' AND end_date <= $1
	`
	res, err := s.execer(ctx).ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("expire subscriptions: %w", err)
	}
	return res.RowsAffected()
}

func (s *Postgres) DeleteSubscriptionsSince(ctx context.Context, memberID domain.MemberID, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM subscriptions
		WHERE member_id = $1 AND created_at >= $2
	`
	res, err := s.execer(ctx).ExecContext(ctx, query, uuid.UUID(memberID), cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete subscriptions since cutoff: %w", err)
	}
	return res.RowsAffected()
}

// -----------------------------------------------------------------------------
// Identifier history ledger
// -----------------------------------------------------------------------------

func (s *Postgres) AppendHistory(ctx context.Context, entry *models.HistoryEntry) error {
	query := `
		INSERT INTO identifier_history (id, member_id, identifier, changed_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(entry.ID),
		uuid.UUID(entry.MemberID),
		entry.Identifier.String(),
		entry.ChangedAt,
	)
	if err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}
	return nil
}

func (s *Postgres) ListHistory(ctx context.Context, memberID domain.MemberID, order Order) ([]*models.HistoryEntry, error) {
	direction := "ASC"
	if order == OrderDesc {
		direction = "DESC"
	}
	query := fmt.Sprintf(`
		SELECT id, member_id, identifier, changed_at
		FROM identifier_history
		WHERE member_id = $1
		ORDER BY changed_at %s
	`, direction)

	rows, err := s.execer(ctx).QueryContext(ctx, query, uuid.UUID(memberID))
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []*models.HistoryEntry
	for rows.Next() {
		entry, err := scanHistoryRow(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return entries, nil
}

func (s *Postgres) LatestHistory(ctx context.Context, memberID domain.MemberID) (*models.HistoryEntry, error) {
	query := `
		SELECT id, member_id, identifier, changed_at
		FROM identifier_history
		WHERE member_id = $1
		ORDER BY changed_at DESC
		LIMIT 1
	`
	var (
		entry   models.HistoryEntry
		id      uuid.UUID
		ownerID uuid.UUID
		code    string
	)
	err := s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(memberID)).
		Scan(&id, &ownerID, &code, &entry.ChangedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("query latest history entry: %w", err)
	}
	entry.ID = domain.HistoryID(id)
	entry.MemberID = domain.MemberID(ownerID)
	entry.Identifier = domain.Identifier(code)
	return &entry, nil
}

func (s *Postgres) DeleteHistoryEntry(ctx context.Context, id domain.HistoryID) error {
	res, err := s.execer(ctx).ExecContext(ctx, `DELETE FROM identifier_history WHERE id = $1`, uuid.UUID(id))
	if err != nil {
		return fmt.Errorf("delete history entry: %w", err)
	}
	return requireRow(res)
}

func (s *Postgres) UpdateHistoryIdentifier(ctx context.Context, id domain.HistoryID, identifier domain.Identifier) error {
	query := `
		UPDATE identifier_history
		SET identifier = $1
		WHERE id = $2
	`
	res, err := s.execer(ctx).ExecContext(ctx, query, identifier.String(), uuid.UUID(id))
	if err != nil {
		return fmt.Errorf("update history identifier: %w", err)
	}
	return requireRow(res)
}

func (s *Postgres) DeleteHistorySince(ctx context.Context, memberID domain.MemberID, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM identifier_history
		WHERE member_id = $1 AND changed_at >= $2
	`
	res, err := s.execer(ctx).ExecContext(ctx, query, uuid.UUID(memberID), cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete history since cutoff: %w", err)
	}
	return res.RowsAffected()
}

// -----------------------------------------------------------------------------
// Scan helpers
// -----------------------------------------------------------------------------

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Postgres) scanMember(row *sql.Row) (*models.Member, error) {
	member, err := scanMemberFrom(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("query member: %w", err)
	}
	return member, nil
}

func scanMemberRow(rows *sql.Rows) (*models.Member, error) {
	member, err := scanMemberFrom(rows)
	if err != nil {
		return nil, fmt.Errorf("scan member: %w", err)
	}
	return member, nil
}

func scanMemberFrom(scanner rowScanner) (*models.Member, error) {
	var (
		member     models.Member
		id         uuid.UUID
		identifier string
	)
	if err := scanner.Scan(&id, &identifier, &member.FullName, &member.CreatedAt, &member.UpdatedAt); err != nil {
		return nil, err
	}
	member.ID = domain.MemberID(id)
	member.Identifier = domain.Identifier(identifier)
	return &member, nil
}

func scanHistoryRow(rows *sql.Rows) (*models.HistoryEntry, error) {
	var (
		entry      models.HistoryEntry
		id         uuid.UUID
		memberID   uuid.UUID
		identifier string
	)
	if err := rows.Scan(&id, &memberID, &identifier, &entry.ChangedAt); err != nil {
		return nil, fmt.Errorf("scan history entry: %w", err)
	}
	entry.ID = domain.HistoryID(id)
	entry.MemberID = domain.MemberID(memberID)
	entry.Identifier = domain.Identifier(identifier)
	return &entry, nil
}

func requireRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func nullIdentifier(identifier domain.Identifier) sql.NullString {
	if identifier.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: identifier.String(), Valid: true}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
