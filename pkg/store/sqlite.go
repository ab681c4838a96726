package store

import (
	"database/sql"
	"encoding/json"
	"time"

	forge "github.com/sigmanauts/sigmaforge/pkg"
	"github.com/sigmanauts/sigmaforge/pkg/ergo"

	sqlite3 "github.com/mattn/go-sqlite3"
)

var SETUP_SQL string = `
CREATE TABLE IF NOT EXISTS signing_request (
	id TEXT NOT NULL PRIMARY KEY,
	status TEXT NOT NULL,
	protocol TEXT NOT NULL,
	plan_id TEXT NOT NULL,
	description TEXT NOT NULL,
	tx_bytes BLOB NOT NULL,
	tx_id TEXT NOT NULL,
	summary TEXT NOT NULL,
	reason TEXT NOT NULL,
	created TIMESTAMP NOT NULL,
	updated TIMESTAMP NOT NULL,
	expires TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS request_status_i ON signing_request (status, expires);

CREATE TABLE IF NOT EXISTS plan (
	id TEXT NOT NULL PRIMARY KEY,
	protocol TEXT NOT NULL,
	wallet TEXT NOT NULL,
	created TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS plan_step (
	plan_id TEXT NOT NULL,
	idx INTEGER NOT NULL,
	name TEXT NOT NULL,
	params BLOB NOT NULL,
	request_id TEXT NOT NULL,
	PRIMARY KEY (plan_id, idx)
);
`

// interface guard ensures SQLiteStore implements forge.Store
var _ forge.Store = SQLiteStore{}

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore returns a forge.Store implementor that uses sqlite
func NewSQLiteStore(fileName string) (SQLiteStore, error) {
	db, err := sql.Open("sqlite3", fileName)
	if err != nil {
		return SQLiteStore{}, dbErr(err, "opening database")
	}
	// init tables / indexes
	_, err = db.Exec(SETUP_SQL)
	if err != nil {
		db.Close()
		return SQLiteStore{}, dbErr(err, "creating database schema")
	}
	return SQLiteStore{db}, nil
}

// Defer this until shutdown
func (s SQLiteStore) Close() error {
	return s.db.Close()
}

func (s SQLiteStore) CreateRequest(req forge.SigningRequest) error {
	if req.Status != forge.StatusPending {
		return forge.NewErr(forge.BadRequest, "new requests must be pending, got %s", req.Status)
	}
	summary, err := json.Marshal(req.Summary)
	if err != nil {
		return dbErr(err, "CreateRequest: json.Marshal summary")
	}
	stmt, err := s.db.Prepare(
		"INSERT INTO signing_request (id, status, protocol, plan_id, description, tx_bytes, tx_id, summary, reason, created, updated, expires) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return dbErr(err, "CreateRequest: preparing insert")
	}
	defer stmt.Close()
	_, err = stmt.Exec(req.ID, req.Status, req.Protocol, req.PlanID, req.Description,
		req.TxBytes, req.TxID, string(summary), req.Reason, req.Created, req.Updated, req.Expires)
	if err != nil {
		return dbErr(err, "CreateRequest: executing insert")
	}
	return nil
}

const requestColumns = "id, status, protocol, plan_id, description, tx_bytes, tx_id, summary, reason, created, updated, expires"

func scanRequest(row interface{ Scan(...any) error }) (forge.SigningRequest, error) {
	var req forge.SigningRequest
	var summary string
	err := row.Scan(&req.ID, &req.Status, &req.Protocol, &req.PlanID, &req.Description,
		&req.TxBytes, &req.TxID, &summary, &req.Reason, &req.Created, &req.Updated, &req.Expires)
	if err != nil {
		return req, err
	}
	err = json.Unmarshal([]byte(summary), &req.Summary)
	return req, err
}

func (s SQLiteStore) GetRequest(id string) (forge.SigningRequest, error) {
	row := s.db.QueryRow("SELECT "+requestColumns+" FROM signing_request WHERE id = ?", id)
	req, err := scanRequest(row)
	if err == sql.ErrNoRows {
		// MUST detect this error to fulfil the API contract.
		return forge.SigningRequest{}, forge.NewErr(forge.NotFound, "request not found: %s", id)
	}
	if err != nil {
		return forge.SigningRequest{}, dbErr(err, "GetRequest: row.Scan")
	}
	return req, nil
}

func (s SQLiteStore) ListRequests(status forge.RequestStatus, cursor int, limit int) (items []forge.SigningRequest, next_cursor int, err error) {
	// MUST order by rowid to support the cursor API: the aggregate
	// result stays stable even as the table is modified between calls.
	rows_found := 0
	rows, err := s.db.Query(
		"SELECT rowid, "+requestColumns+" FROM signing_request WHERE status = ? AND rowid >= ? ORDER BY rowid LIMIT ?",
		status, cursor, limit)
	if err != nil {
		return nil, 0, dbErr(err, "ListRequests: querying requests")
	}
	defer rows.Close()
	for rows.Next() {
		var rowid int
		var req forge.SigningRequest
		var summary string
		err := rows.Scan(&rowid, &req.ID, &req.Status, &req.Protocol, &req.PlanID, &req.Description,
			&req.TxBytes, &req.TxID, &summary, &req.Reason, &req.Created, &req.Updated, &req.Expires)
		if err != nil {
			return nil, 0, dbErr(err, "ListRequests: scanning request row")
		}
		if err := json.Unmarshal([]byte(summary), &req.Summary); err != nil {
			return nil, 0, dbErr(err, "ListRequests: unmarshalling summary")
		}
		items = append(items, req)
		if rowid+1 > next_cursor {
			next_cursor = rowid + 1 // NB. starting cursor for next call
		}
		rows_found++
	}
	if err = rows.Err(); err != nil { // docs say this check is required!
		return nil, 0, dbErr(err, "ListRequests: querying requests")
	}
	if rows_found < limit {
		// in this backend, we know there are no more rows to follow.
		next_cursor = 0 // meaning "end of query results"
	}
	return
}

func (s SQLiteStore) TransitionRequest(id string, from, to forge.RequestStatus, txID ergo.TxID, reason string) error {
	res, err := s.db.Exec(
		`UPDATE signing_request SET status = ?, reason = ?, updated = ?,
		   tx_id = CASE WHEN ? = '' THEN tx_id ELSE ? END
		 WHERE id = ? AND status = ?`,
		to, reason, time.Now(), txID, txID, id, from)
	if err != nil {
		return dbErr(err, "TransitionRequest: executing update")
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return dbErr(err, "TransitionRequest: rows affected")
	}
	if rows == 0 {
		// Either the request is unknown or something else moved it
		// first; tell the caller which.
		if _, gerr := s.GetRequest(id); gerr != nil {
			return gerr
		}
		return forge.NewErr(forge.DBConflict, "request %s is not %s", id, from)
	}
	return nil
}

func (s SQLiteStore) ExpirePending(now time.Time) ([]string, error) {
	return s.sweep(forge.StatusPending, forge.StatusExpired, "expires", now, "signing window elapsed")
}

func (s SQLiteStore) RecoverSubmitting(cutoff time.Time, reason string) ([]string, error) {
	return s.sweep(forge.StatusSubmitting, forge.StatusFailed, "updated", cutoff, reason)
}

// sweep moves every request in 'from' whose time column passed the
// cutoff. Each row is claimed with its own compare-and-swap, so a
// concurrent transition always wins or loses cleanly, never both.
func (s SQLiteStore) sweep(from, to forge.RequestStatus, column string, cutoff time.Time, reason string) ([]string, error) {
	rows, err := s.db.Query(
		"SELECT id FROM signing_request WHERE status = ? AND "+column+" <= ?", from, cutoff)
	if err != nil {
		return nil, dbErr(err, "sweep: querying candidates")
	}
	var candidates []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, dbErr(err, "sweep: scanning candidate")
		}
		candidates = append(candidates, id)
	}
	if err = rows.Err(); err != nil { // docs say this check is required!
		rows.Close()
		return nil, dbErr(err, "sweep: querying candidates")
	}
	rows.Close()

	var moved []string
	for _, id := range candidates {
		err := s.TransitionRequest(id, from, to, "", reason)
		if forge.IsDBConflictError(err) || forge.IsNotFoundError(err) {
			continue // someone else moved it first
		}
		if err != nil {
			return moved, err
		}
		moved = append(moved, id)
	}
	return moved, nil
}

func (s SQLiteStore) CreatePlan(plan forge.Plan) error {
	tx, err := s.db.Begin()
	if err != nil {
		return dbErr(err, "CreatePlan: beginning transaction")
	}
	defer tx.Rollback()
	_, err = tx.Exec("INSERT INTO plan (id, protocol, wallet, created) VALUES (?, ?, ?, ?)",
		plan.ID, plan.Protocol, plan.Wallet, plan.Created)
	if err != nil {
		return dbErr(err, "CreatePlan: inserting plan")
	}
	stmt, err := tx.Prepare("INSERT INTO plan_step (plan_id, idx, name, params, request_id) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return dbErr(err, "CreatePlan: preparing step insert")
	}
	defer stmt.Close()
	for i, step := range plan.Steps {
		if _, err := stmt.Exec(plan.ID, i, step.Name, step.Params, step.RequestID); err != nil {
			return dbErr(err, "CreatePlan: inserting step")
		}
	}
	if err := tx.Commit(); err != nil {
		return dbErr(err, "CreatePlan: committing")
	}
	return nil
}

func (s SQLiteStore) GetPlan(id string) (forge.Plan, error) {
	row := s.db.QueryRow("SELECT id, protocol, wallet, created FROM plan WHERE id = ?", id)
	var plan forge.Plan
	err := row.Scan(&plan.ID, &plan.Protocol, &plan.Wallet, &plan.Created)
	if err == sql.ErrNoRows {
		// MUST detect this error to fulfil the API contract.
		return forge.Plan{}, forge.NewErr(forge.NotFound, "plan not found: %s", id)
	}
	if err != nil {
		return forge.Plan{}, dbErr(err, "GetPlan: row.Scan")
	}
	rows, err := s.db.Query("SELECT name, params, request_id FROM plan_step WHERE plan_id = ? ORDER BY idx", id)
	if err != nil {
		return forge.Plan{}, dbErr(err, "GetPlan: querying steps")
	}
	defer rows.Close()
	for rows.Next() {
		var step forge.PlanStep
		if err := rows.Scan(&step.Name, &step.Params, &step.RequestID); err != nil {
			return forge.Plan{}, dbErr(err, "GetPlan: scanning step")
		}
		plan.Steps = append(plan.Steps, step)
	}
	if err = rows.Err(); err != nil { // docs say this check is required!
		return forge.Plan{}, dbErr(err, "GetPlan: querying steps")
	}
	return plan, nil
}

func (s SQLiteStore) SetPlanStep(planID string, step int, requestID string) error {
	res, err := s.db.Exec("UPDATE plan_step SET request_id = ? WHERE plan_id = ? AND idx = ?",
		requestID, planID, step)
	if err != nil {
		return dbErr(err, "SetPlanStep: executing update")
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return dbErr(err, "SetPlanStep: rows affected")
	}
	if rows == 0 {
		return forge.NewErr(forge.NotFound, "plan %s has no step %d", planID, step)
	}
	return nil
}

func dbErr(err error, where string) error {
	if sqErr, isSq := err.(sqlite3.Error); isSq {
		if sqErr.Code == sqlite3.ErrConstraint {
			// MUST detect 'AlreadyExists' to fulfil the API contract!
			return forge.NewErr(forge.AlreadyExists, "SQLiteStore error: %s: %v", where, err)
		}
		if sqErr.Code == sqlite3.ErrBusy || sqErr.Code == sqlite3.ErrLocked {
			// Transient database conflict: the caller should retry.
			return forge.NewErr(forge.DBConflict, "SQLiteStore error: %s: %v", where, err)
		}
	}
	return forge.NewErr(forge.NotAvailable, "SQLiteStore error: %s: %v", where, err)
}
