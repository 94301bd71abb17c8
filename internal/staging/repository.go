package staging

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/logix-uplink/internal/infrastructure/database"
	"github.com/nerrad567/logix-uplink/internal/reading"
)

// Table names shared with the dashboard.
const (
	StagingTable   = "tmp"
	PermanentTable = "data"
)

// Paging limits for List.
const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// eligibleCond selects rows a pass may still act on: outcome unset only.
// Rows marked retry or Duplikasi are left for the operator.
const eligibleCond = "status IS NULL"

// Options configures a SQLRepository.
type Options struct {
	// Fields are the parameter columns selected for submission. They are
	// validated against the reading allow-list by NewSQLRepository.
	Fields []string

	// Location is the site timezone the date columns are written in.
	Location *time.Location

	// QueryTimeout bounds each repository call. Zero means no extra bound.
	QueryTimeout time.Duration
}

// Filter controls which staging rows List returns.
type Filter struct {
	// Outcome filters by stored status; empty returns every row.
	// "unset" selects rows whose status is NULL.
	Outcome string
	Limit   int
	Offset  int
}

// ListResult contains a page of staging rows.
type ListResult struct {
	Readings []reading.Reading
	Total    int
	Limit    int
	Offset   int
}

// SQLRepository implements staging and permanent table access over
// database/sql for SQLite and MySQL.
type SQLRepository struct {
	db      *sql.DB
	dialect database.Dialect
	fields  []string
	loc     *time.Location
	timeout time.Duration

	// selectList is the quoted column list for reading rows back.
	selectList string
	copyList   string
}

// NewSQLRepository creates a repository over db.
//
// Returns reading.ErrUnknownField if any configured field is outside the
// column allow-list. No SQL is built from configuration before this check.
func NewSQLRepository(db *sql.DB, dialect database.Dialect, opts Options) (*SQLRepository, error) {
	fields, err := reading.ValidateFields(opts.Fields)
	if err != nil {
		return nil, err
	}

	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}

	cols := []string{
		reading.ColumnID, reading.ColumnDevice, reading.ColumnDate,
		reading.ColumnStatus, reading.ColumnNote, reading.ColumnDeliveredAt,
	}
	cols = append(cols, fields...)

	return &SQLRepository{
		db:         db,
		dialect:    dialect,
		fields:     fields,
		loc:        loc,
		timeout:    opts.QueryTimeout,
		selectList: dialect.QuoteList(cols),
		copyList:   dialect.QuoteList(reading.Columns),
	}, nil
}

// Fields returns the validated submission fields in canonical spelling.
func (r *SQLRepository) Fields() []string {
	return append([]string(nil), r.fields...)
}

func (r *SQLRepository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.timeout)
}

// FetchPending returns eligible staging rows strictly older than now,
// oldest first.
func (r *SQLRepository) FetchPending(ctx context.Context, now time.Time) ([]reading.Reading, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf( //nolint:gosec // column list comes from the validated allow-list
		"SELECT %s FROM %s WHERE %s AND `date` < ? ORDER BY `date`, id",
		r.selectList, StagingTable, eligibleCond,
	)
	readings, err := r.queryReadings(ctx, query, r.format(now))
	if err != nil {
		return nil, fmt.Errorf("fetching pending readings: %w", err)
	}
	return readings, nil
}

// FetchRange returns eligible staging rows with start <= date <= end, oldest first.
func (r *SQLRepository) FetchRange(ctx context.Context, start, end time.Time) ([]reading.Reading, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("%w: %s after %s", ErrInvalidRange, start, end)
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf( //nolint:gosec // column list comes from the validated allow-list
		"SELECT %s FROM %s WHERE %s AND `date` >= ? AND `date` <= ? ORDER BY `date`, id",
		r.selectList, StagingTable, eligibleCond,
	)
	readings, err := r.queryReadings(ctx, query, r.format(start), r.format(end))
	if err != nil {
		return nil, fmt.Errorf("fetching readings in range: %w", err)
	}
	return readings, nil
}

// MarkSent moves eligible rows in [start, end] to the permanent table in
// one transaction: stamp them sent, copy them, delete them from staging.
//
// Rows already present in the permanent table by (device, date) are not
// inserted again. Returns the number of rows removed from staging.
func (r *SQLRepository) MarkSent(ctx context.Context, start, end, deliveredAt time.Time) (int64, error) {
	if end.Before(start) {
		return 0, fmt.Errorf("%w: %s after %s", ErrInvalidRange, start, end)
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	lo, hi := r.format(start), r.format(end)

	if _, err := tx.ExecContext(ctx,
		"UPDATE "+StagingTable+" SET status = ?, keterangan = ?, dateterkirim = ? "+
			"WHERE "+eligibleCond+" AND `date` >= ? AND `date` <= ?",
		string(reading.OutcomeSent), reading.NoteSent, r.format(deliveredAt), lo, hi,
	); err != nil {
		return 0, fmt.Errorf("stamping sent rows: %w", err)
	}

	copyQuery := fmt.Sprintf(
		"%s %s (%s) SELECT %s FROM %s WHERE status = ? AND `date` >= ? AND `date` <= ?",
		r.dialect.InsertIgnore(), PermanentTable, r.copyList, r.copyList, StagingTable,
	)
	if _, err := tx.ExecContext(ctx, copyQuery, string(reading.OutcomeSent), lo, hi); err != nil {
		return 0, fmt.Errorf("copying sent rows: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		"DELETE FROM "+StagingTable+" WHERE status = ? AND `date` >= ? AND `date` <= ?",
		string(reading.OutcomeSent), lo, hi,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting sent rows: %w", err)
	}
	moved, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing move: %w", err)
	}
	return moved, nil
}

// MarkRetry annotates unset rows in [start, end] with outcome retry and reason.
// Retry rows are not picked up again by FetchPending.
func (r *SQLRepository) MarkRetry(ctx context.Context, start, end time.Time, reason string) (int64, error) {
	n, err := r.annotate(ctx, start, end, reading.OutcomeRetry, reason)
	if err != nil {
		return 0, fmt.Errorf("marking retry: %w", err)
	}
	return n, nil
}

// MarkDuplicateUnresolved annotates eligible rows in [start, end] as
// unresolved duplicates. They are never picked up again automatically.
func (r *SQLRepository) MarkDuplicateUnresolved(ctx context.Context, start, end time.Time) (int64, error) {
	n, err := r.annotate(ctx, start, end, reading.OutcomeDuplicateUnresolved, reading.NoteDuplicateUnresolved)
	if err != nil {
		return 0, fmt.Errorf("marking duplicate unresolved: %w", err)
	}
	return n, nil
}

func (r *SQLRepository) annotate(ctx context.Context, start, end time.Time, outcome reading.Outcome, note string) (int64, error) {
	if end.Before(start) {
		return 0, fmt.Errorf("%w: %s after %s", ErrInvalidRange, start, end)
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx,
		"UPDATE "+StagingTable+" SET status = ?, keterangan = ? "+
			"WHERE "+eligibleCond+" AND `date` >= ? AND `date` <= ?",
		string(outcome), note, r.format(start), r.format(end),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteExact removes unset staging rows whose date equals ts.
// Deleting an absent timestamp is not an error.
func (r *SQLRepository) DeleteExact(ctx context.Context, ts time.Time) (int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx,
		"DELETE FROM "+StagingTable+" WHERE "+eligibleCond+" AND `date` = ?",
		r.format(ts),
	)
	if err != nil {
		return 0, fmt.Errorf("deleting reading at %s: %w", r.format(ts), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

// Stage inserts a reading into the staging table with outcome unset.
// This is the ingestion contract; the uplink itself never calls it.
func (r *SQLRepository) Stage(ctx context.Context, rd reading.Reading) (int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	cols := []string{reading.ColumnDevice, reading.ColumnDate, reading.ColumnDatetime}
	args := []any{rd.Device, r.format(rd.Date), rd.Date.Unix()}
	for _, p := range reading.Parameters {
		if v, ok := rd.Values[p]; ok {
			cols = append(cols, p)
			args = append(args, v)
		}
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", //nolint:gosec // columns come from the allow-list
		StagingTable, r.dialect.QuoteList(cols), placeholders(len(cols)))
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("staging reading: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading insert id: %w", err)
	}
	return id, nil
}

// List returns a page of staging rows, newest first.
func (r *SQLRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var (
		where string
		args  []any
	)
	switch filter.Outcome {
	case "":
	case "unset":
		where = "WHERE (status IS NULL OR status = '')"
	default:
		where = "WHERE status = ?"
		args = append(args, filter.Outcome)
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s %s", StagingTable, where) //nolint:gosec // WHERE built from fixed conditions
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting staging rows: %w", err)
	}

	query := fmt.Sprintf( //nolint:gosec // WHERE built from fixed conditions
		"SELECT %s FROM %s %s ORDER BY `date` DESC, id DESC LIMIT ? OFFSET ?",
		r.selectList, StagingTable, where,
	)
	args = append(args, filter.Limit, filter.Offset)

	readings, err := r.queryReadings(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing staging rows: %w", err)
	}
	if readings == nil {
		readings = []reading.Reading{}
	}

	return &ListResult{
		Readings: readings,
		Total:    total,
		Limit:    filter.Limit,
		Offset:   filter.Offset,
	}, nil
}

// CountByOutcome returns the number of staging rows per outcome.
func (r *SQLRepository) CountByOutcome(ctx context.Context) (map[reading.Outcome]int, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx,
		"SELECT status, COUNT(*) FROM "+StagingTable+" GROUP BY status",
	)
	if err != nil {
		return nil, fmt.Errorf("counting outcomes: %w", err)
	}
	defer rows.Close()

	counts := make(map[reading.Outcome]int)
	for rows.Next() {
		var status sql.NullString
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning outcome count: %w", err)
		}
		counts[reading.ParseOutcome(status.String)] += n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating outcome counts: %w", err)
	}
	return counts, nil
}

// CountPermanent returns the number of rows in the permanent table.
func (r *SQLRepository) CountPermanent(ctx context.Context) (int, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+PermanentTable).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting permanent rows: %w", err)
	}
	return n, nil
}

// format renders t as a wall-clock string in the site timezone.
func (r *SQLRepository) format(t time.Time) string {
	return t.In(r.loc).Format(reading.TimeLayout)
}

func (r *SQLRepository) queryReadings(ctx context.Context, query string, args ...any) ([]reading.Reading, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var readings []reading.Reading
	for rows.Next() {
		rd, err := r.scanReading(rows)
		if err != nil {
			return nil, err
		}
		readings = append(readings, rd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating readings: %w", err)
	}
	return readings, nil
}

func (r *SQLRepository) scanReading(rows *sql.Rows) (reading.Reading, error) {
	var (
		rd          reading.Reading
		device      sql.NullString
		date        any
		status      sql.NullString
		note        sql.NullString
		deliveredAt any
	)

	values := make([]sql.NullFloat64, len(r.fields))
	dest := []any{&rd.ID, &device, &date, &status, &note, &deliveredAt}
	for i := range values {
		dest = append(dest, &values[i])
	}

	if err := rows.Scan(dest...); err != nil {
		return reading.Reading{}, fmt.Errorf("scanning reading: %w", err)
	}

	ts, err := parseStoredTime(date, r.loc)
	if err != nil {
		return reading.Reading{}, err
	}

	rd.Device = device.String
	rd.Date = ts
	rd.Outcome = reading.ParseOutcome(status.String)
	rd.Note = note.String
	if deliveredAt != nil {
		d, err := parseStoredTime(deliveredAt, r.loc)
		if err != nil {
			return reading.Reading{}, err
		}
		rd.DeliveredAt = &d
	}

	rd.Values = make(map[string]float64, len(r.fields))
	for i, f := range r.fields {
		if values[i].Valid {
			rd.Values[f] = values[i].Float64
		}
	}
	return rd, nil
}

// storedTimeLayouts are accepted when reading date columns back. The
// first is what this package writes; the rest cover rows written by
// other tools.
var storedTimeLayouts = []string{
	reading.TimeLayout,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05Z07:00",
}

// parseStoredTime interprets a scanned date column as wall-clock time in loc.
func parseStoredTime(v any, loc *time.Location) (time.Time, error) {
	var s string
	switch x := v.(type) {
	case time.Time:
		return time.Date(x.Year(), x.Month(), x.Day(), x.Hour(), x.Minute(), x.Second(), 0, loc), nil
	case []byte:
		s = string(x)
	case string:
		s = x
	default:
		return time.Time{}, fmt.Errorf("%w: %T", ErrBadTimestamp, v)
	}

	s = strings.TrimSpace(s)
	for _, layout := range storedTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrBadTimestamp, s)
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}
