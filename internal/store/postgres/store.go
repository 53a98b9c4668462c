// Package postgres implements the store contracts on PostgreSQL. Integer
// array columns are exchanged through pq.Int64Array and never leave this
// package.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/lox/bingohall/internal/bingo"
	"github.com/lox/bingohall/internal/store"
)

var _ store.Store = (*Store)(nil)

const uniqueViolation = "23505"

// Store implements store.Store backed by PostgreSQL.
type Store struct {
	db *sqlx.DB
}

// New wraps an open database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return New(db), nil
}

// DB exposes the underlying handle for migrations.
func (s *Store) DB() *sql.DB {
	return s.db.DB
}

func (s *Store) Close() error {
	return s.db.Close()
}

// --- rows -----------------------------------------------------------------

const roundColumns = `id, status, sold_columns, winner, created_at, ended_at`

type roundRow struct {
	ID          int64         `db:"id"`
	Status      string        `db:"status"`
	SoldColumns pq.Int64Array `db:"sold_columns"`
	Winner      sql.NullInt64 `db:"winner"`
	CreatedAt   time.Time     `db:"created_at"`
	EndedAt     sql.NullTime  `db:"ended_at"`
}

func (r roundRow) round() bingo.Round {
	out := bingo.Round{
		ID:               r.ID,
		Status:           bingo.RoundStatus(r.Status),
		PurchasedColumns: fromArray(r.SoldColumns),
		CreatedAt:        r.CreatedAt,
	}
	if r.Winner.Valid {
		w := int(r.Winner.Int64)
		out.WinningColumn = &w
	}
	if r.EndedAt.Valid {
		t := r.EndedAt.Time
		out.EndedAt = &t
	}
	return out
}

const ticketColumns = `id, user_id, username, columns, payment_method, monto, discount, status,
	payment_reference, payment_bank, game_id, created_at`

type ticketRow struct {
	ID               int64           `db:"id"`
	UserID           sql.NullInt64   `db:"user_id"`
	Username         string          `db:"username"`
	Columns          pq.Int64Array   `db:"columns"`
	PaymentMethod    string          `db:"payment_method"`
	Amount           decimal.Decimal `db:"monto"`
	Discount         decimal.Decimal `db:"discount"`
	Status           string          `db:"status"`
	PaymentReference sql.NullString  `db:"payment_reference"`
	PaymentBank      sql.NullString  `db:"payment_bank"`
	GameID           sql.NullInt64   `db:"game_id"`
	CreatedAt        time.Time       `db:"created_at"`
}

func (r ticketRow) ticket() bingo.Ticket {
	t := bingo.Ticket{
		ID:               r.ID,
		Username:         r.Username,
		Columns:          fromArray(r.Columns),
		PaymentMethod:    r.PaymentMethod,
		PaymentReference: r.PaymentReference.String,
		PaymentBank:      r.PaymentBank.String,
		Amount:           r.Amount,
		Discount:         r.Discount,
		Status:           bingo.TicketStatus(r.Status),
		CreatedAt:        r.CreatedAt,
	}
	if r.UserID.Valid {
		id := r.UserID.Int64
		t.UserID = &id
	}
	if r.GameID.Valid {
		id := r.GameID.Int64
		t.RoundID = &id
	}
	return t
}

const winnerColumns = `id, nombre_ganador, id_partida, columna_ganadora, fecha`

type winnerRow struct {
	ID        int64     `db:"id"`
	Name      string    `db:"nombre_ganador"`
	RoundID   int64     `db:"id_partida"`
	Column    int       `db:"columna_ganadora"`
	Timestamp time.Time `db:"fecha"`
}

func (r winnerRow) winner() bingo.WinnerRecord {
	return bingo.WinnerRecord{ID: r.ID, Name: r.Name, RoundID: r.RoundID, Column: r.Column, Timestamp: r.Timestamp}
}

const resultColumns = `id, id_partida, columna_ganadora, status, fecha`

type resultRow struct {
	ID      int64     `db:"id"`
	RoundID int64     `db:"id_partida"`
	Column  int       `db:"columna_ganadora"`
	Status  string    `db:"status"`
	Date    time.Time `db:"fecha"`
}

func (r resultRow) result() bingo.Result {
	return bingo.Result{ID: r.ID, RoundID: r.RoundID, Column: r.Column, Status: bingo.ResultStatus(r.Status), Date: r.Date}
}

const drawColumns = `id, patron_ganador, numeros_sorteados, realizado_por, fecha, estado`

type drawRow struct {
	ID          int64         `db:"id"`
	Pattern     pq.Int64Array `db:"patron_ganador"`
	Numbers     pq.Int64Array `db:"numeros_sorteados"`
	PerformedBy string        `db:"realizado_por"`
	Timestamp   time.Time     `db:"fecha"`
	State       string        `db:"estado"`
}

func (r drawRow) entry() bingo.DrawHistoryEntry {
	return bingo.DrawHistoryEntry{
		ID:          r.ID,
		Pattern:     ints(r.Pattern),
		Numbers:     ints(r.Numbers),
		PerformedBy: r.PerformedBy,
		Timestamp:   r.Timestamp,
		State:       bingo.DrawState(r.State),
	}
}

// --- Rounds ---------------------------------------------------------------

func (s *Store) FinalizeActiveRounds(ctx context.Context, endedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE bingo_games SET status = 'finalizado', ended_at = $1 WHERE status = 'activo'`, endedAt)
	return err
}

func (s *Store) CreateRound(ctx context.Context, createdAt time.Time) (bingo.Round, error) {
	var row roundRow
	err := s.db.GetContext(ctx, &row, `
		INSERT INTO bingo_games (status, sold_columns, created_at)
		VALUES ('activo', '{}', $1)
		RETURNING `+roundColumns, createdAt)
	if err != nil {
		return bingo.Round{}, err
	}
	return row.round(), nil
}

func (s *Store) GetRound(ctx context.Context, id int64) (bingo.Round, error) {
	var row roundRow
	err := s.db.GetContext(ctx, &row, `SELECT `+roundColumns+` FROM bingo_games WHERE id = $1`, id)
	if err != nil {
		return bingo.Round{}, notFound(err)
	}
	return row.round(), nil
}

func (s *Store) LatestActiveRound(ctx context.Context) (bingo.Round, error) {
	var row roundRow
	err := s.db.GetContext(ctx, &row, `
		SELECT `+roundColumns+` FROM bingo_games
		WHERE status = 'activo'
		ORDER BY created_at DESC, id DESC
		LIMIT 1`)
	if err != nil {
		return bingo.Round{}, notFound(err)
	}
	return row.round(), nil
}

func (s *Store) UpdateRoundColumns(ctx context.Context, id int64, columns bingo.Columns) error {
	return s.execOne(ctx, `UPDATE bingo_games SET sold_columns = $1 WHERE id = $2`, toArray(columns), id)
}

func (s *Store) UpdateRoundStatus(ctx context.Context, id int64, status bingo.RoundStatus, endedAt *time.Time) error {
	if !status.Valid() {
		return bingo.ErrInvalidStatus
	}
	var ended sql.NullTime
	if endedAt != nil {
		ended = sql.NullTime{Time: *endedAt, Valid: true}
	}
	return s.execOne(ctx, `UPDATE bingo_games SET status = $1, ended_at = $2 WHERE id = $3`, string(status), ended, id)
}

func (s *Store) FinalizeRound(ctx context.Context, id int64, winningColumn int, endedAt time.Time) error {
	return s.execOne(ctx,
		`UPDATE bingo_games SET status = 'finalizado', winner = $1, ended_at = $2 WHERE id = $3`,
		winningColumn, endedAt, id)
}

func (s *Store) CountRoundsByStatus(ctx context.Context, status bingo.RoundStatus) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM bingo_games WHERE status = $1`, string(status))
}

// --- Ledger ---------------------------------------------------------------

func (s *Store) RoundRevenue(ctx context.Context, roundID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := s.db.GetContext(ctx, &total, `
		SELECT COALESCE(SUM(monto), 0) FROM tickets
		WHERE game_id = $1 AND status IN ('pagado', 'impreso')`, roundID)
	if err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

func (s *Store) InsertProfit(ctx context.Context, rec bingo.ProfitRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ganancias (game_id, profit, created_at) VALUES ($1, $2, $3)`,
		rec.RoundID, rec.Profit, rec.CreatedAt)
	return err
}

// --- Tickets --------------------------------------------------------------

func (s *Store) GetTicket(ctx context.Context, id int64) (bingo.Ticket, error) {
	var row ticketRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+ticketColumns+` FROM tickets WHERE id = $1`, id); err != nil {
		return bingo.Ticket{}, notFound(err)
	}
	return row.ticket(), nil
}

func (s *Store) UpdateTicketStatus(ctx context.Context, id int64, status bingo.TicketStatus) (bingo.Ticket, error) {
	if !status.Valid() {
		return bingo.Ticket{}, bingo.ErrInvalidStatus
	}
	var row ticketRow
	err := s.db.GetContext(ctx, &row,
		`UPDATE tickets SET status = $1 WHERE id = $2 RETURNING `+ticketColumns, string(status), id)
	if err != nil {
		return bingo.Ticket{}, notFound(err)
	}
	return row.ticket(), nil
}

func (s *Store) CountTicketsByStatus(ctx context.Context, status bingo.TicketStatus) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM tickets WHERE status = $1`, string(status))
}

func (s *Store) WithTicketTx(ctx context.Context, fn func(tx store.TicketTx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(&ticketTx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type ticketTx struct {
	tx *sqlx.Tx
}

func (t *ticketTx) TicketByReference(ctx context.Context, reference string) (bingo.Ticket, error) {
	var row ticketRow
	err := t.tx.GetContext(ctx, &row,
		`SELECT `+ticketColumns+` FROM tickets WHERE payment_reference = $1 LIMIT 1 FOR UPDATE`, reference)
	if err != nil {
		return bingo.Ticket{}, notFound(err)
	}
	return row.ticket(), nil
}

func (t *ticketTx) InsertTicket(ctx context.Context, in bingo.Ticket) (bingo.Ticket, error) {
	var row ticketRow
	err := t.tx.GetContext(ctx, &row, `
		INSERT INTO tickets (user_id, username, columns, payment_method, monto, discount, status,
			payment_reference, payment_bank, game_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING `+ticketColumns,
		nullInt(in.UserID), in.Username, toArray(in.Columns), in.PaymentMethod, in.Amount, in.Discount,
		string(in.Status), nullString(in.PaymentReference), nullString(in.PaymentBank), nullInt(in.RoundID), in.CreatedAt)
	if err != nil {
		// tickets_mobile_reference_key catches a concurrent insert of the same
		// Pago Móvil reference.
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return bingo.Ticket{}, bingo.ErrDuplicateReference
		}
		return bingo.Ticket{}, err
	}
	return row.ticket(), nil
}

// --- Winners --------------------------------------------------------------

func (s *Store) WinnerFor(ctx context.Context, roundID int64, column int) (bingo.WinnerRecord, error) {
	var row winnerRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+winnerColumns+` FROM ganadores WHERE id_partida = $1 AND columna_ganadora = $2`, roundID, column)
	if err != nil {
		return bingo.WinnerRecord{}, notFound(err)
	}
	return row.winner(), nil
}

func (s *Store) InsertWinner(ctx context.Context, w bingo.WinnerRecord) (bingo.WinnerRecord, error) {
	var row winnerRow
	err := s.db.GetContext(ctx, &row, `
		INSERT INTO ganadores (nombre_ganador, id_partida, columna_ganadora, fecha)
		VALUES ($1, $2, $3, $4)
		RETURNING `+winnerColumns, w.Name, w.RoundID, w.Column, w.Timestamp)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return bingo.WinnerRecord{}, bingo.ErrWinnerAlreadyClaimed
		}
		return bingo.WinnerRecord{}, err
	}
	return row.winner(), nil
}

// --- Results --------------------------------------------------------------

func (s *Store) InsertResult(ctx context.Context, r bingo.Result) (bingo.Result, error) {
	if r.Status == "" {
		r.Status = bingo.ResultDraft
	}
	var row resultRow
	err := s.db.GetContext(ctx, &row, `
		INSERT INTO resultados (id_partida, columna_ganadora, fecha, status)
		VALUES ($1, $2, $3, $4)
		RETURNING `+resultColumns, r.RoundID, r.Column, r.Date, string(r.Status))
	if err != nil {
		return bingo.Result{}, err
	}
	return row.result(), nil
}

func (s *Store) SetResultStatus(ctx context.Context, id int64, status bingo.ResultStatus) (bingo.Result, error) {
	var row resultRow
	err := s.db.GetContext(ctx, &row,
		`UPDATE resultados SET status = $1 WHERE id = $2 RETURNING `+resultColumns, string(status), id)
	if err != nil {
		return bingo.Result{}, notFound(err)
	}
	return row.result(), nil
}

func (s *Store) PublishedResult(ctx context.Context, roundID int64, column int) (bingo.Result, error) {
	var row resultRow
	err := s.db.GetContext(ctx, &row, `
		SELECT `+resultColumns+` FROM resultados
		WHERE id_partida = $1 AND columna_ganadora = $2 AND status = 'publicado'
		LIMIT 1`, roundID, column)
	if err != nil {
		return bingo.Result{}, notFound(err)
	}
	return row.result(), nil
}

func (s *Store) CountResultsByStatus(ctx context.Context, status bingo.ResultStatus) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM resultados WHERE status = $1`, string(status))
}

// --- Draws ----------------------------------------------------------------

func (s *Store) InsertDraw(ctx context.Context, e bingo.DrawHistoryEntry) (bingo.DrawHistoryEntry, error) {
	if e.State == "" {
		e.State = bingo.DrawPending
	}
	var row drawRow
	err := s.db.GetContext(ctx, &row, `
		INSERT INTO sorteos_admin (patron_ganador, numeros_sorteados, realizado_por, fecha, estado)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+drawColumns,
		toArray(e.Pattern), toArray(e.Numbers), e.PerformedBy, e.Timestamp, string(e.State))
	if err != nil {
		return bingo.DrawHistoryEntry{}, err
	}
	return row.entry(), nil
}

func (s *Store) SetDrawState(ctx context.Context, id int64, state bingo.DrawState) (bingo.DrawHistoryEntry, error) {
	var row drawRow
	err := s.db.GetContext(ctx, &row,
		`UPDATE sorteos_admin SET estado = $1 WHERE id = $2 RETURNING `+drawColumns, string(state), id)
	if err != nil {
		return bingo.DrawHistoryEntry{}, notFound(err)
	}
	return row.entry(), nil
}

func (s *Store) CountDrawsByState(ctx context.Context, state bingo.DrawState) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM sorteos_admin WHERE estado = $1`, string(state))
}

// --- helpers --------------------------------------------------------------

func (s *Store) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, query, args...); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) execOne(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return bingo.ErrNotFound
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return bingo.ErrNotFound
	}
	return err
}

func toArray(values []int) pq.Int64Array {
	out := make(pq.Int64Array, len(values))
	for i, v := range values {
		out[i] = int64(v)
	}
	return out
}

func ints(a pq.Int64Array) []int {
	out := make([]int, len(a))
	for i, v := range a {
		out[i] = int(v)
	}
	return out
}

func fromArray(a pq.Int64Array) bingo.Columns {
	return bingo.NewColumns(ints(a)...)
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
