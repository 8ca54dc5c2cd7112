package shared

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ApprovalAction enumerates approval log actions.
type ApprovalAction string

const (
	// ApprovalSubmit marks a submit action.
	ApprovalSubmit ApprovalAction = "SUBMIT"
	// ApprovalApprove marks an approve action.
	ApprovalApprove ApprovalAction = "APPROVE"
	// ApprovalReject marks a reject action.
	ApprovalReject ApprovalAction = "REJECT"
)

// ApprovalLog represents a single approval record.
type ApprovalLog struct {
	ID        int64          `json:"id"`
	CompanyID int64          `json:"companyId"`
	Module    string         `json:"module"`
	RefID     int64          `json:"refId"`
	ActorID   int64          `json:"actorId"`
	Action    ApprovalAction `json:"action"`
	Note      string         `json:"note,omitempty"`
	At        time.Time      `json:"at"`
}

// ApprovalPort records approval history for documents.
type ApprovalPort interface {
	Record(ctx context.Context, log ApprovalLog) error
}

// ApprovalRecorder persists approval history.
type ApprovalRecorder struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewApprovalRecorder constructs ApprovalRecorder.
func NewApprovalRecorder(pool *pgxpool.Pool, logger *slog.Logger) *ApprovalRecorder {
	return &ApprovalRecorder{pool: pool, logger: logger}
}

// Record writes approval entry to database.
func (r *ApprovalRecorder) Record(ctx context.Context, log ApprovalLog) error {
	if r == nil {
		return errors.New("approval recorder not initialised")
	}
	if log.Module == "" || log.RefID == 0 || log.Action == "" {
		return errors.New("approval module, ref id and action required")
	}
	if log.At.IsZero() {
		log.At = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO approvals (company_id, module, ref_id, actor_id, action, note, at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`, log.CompanyID, log.Module, log.RefID, log.ActorID, string(log.Action), log.Note, log.At)
	if err != nil {
		r.logger.Error("record approval", slog.String("module", log.Module), slog.Any("error", err))
		return err
	}
	return nil
}

// List returns approvals for module/ref.
func (r *ApprovalRecorder) List(ctx context.Context, companyID int64, module string, refID int64) ([]ApprovalLog, error) {
	if r == nil {
		return nil, errors.New("approval recorder not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT id, company_id, module, ref_id, actor_id, action, note, at
FROM approvals WHERE company_id=$1 AND module=$2 AND ref_id=$3 ORDER BY at ASC`, companyID, module, refID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var logs []ApprovalLog
	for rows.Next() {
		var l ApprovalLog
		var action string
		if err := rows.Scan(&l.ID, &l.CompanyID, &l.Module, &l.RefID, &l.ActorID, &action, &l.Note, &l.At); err != nil {
			return nil, err
		}
		l.Action = ApprovalAction(action)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
