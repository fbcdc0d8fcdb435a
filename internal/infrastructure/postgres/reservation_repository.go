package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sanosuguru/go-space-reservation/internal/domain/apperror"
	"github.com/sanosuguru/go-space-reservation/internal/domain/reservation"
	"github.com/sanosuguru/go-space-reservation/internal/domain/transaction"
)

type reservationRow struct {
	ID                   string         `db:"id"`
	ResourceID           string         `db:"resource_id"`
	BeginAt              time.Time      `db:"begin_at"`
	EndAt                time.Time      `db:"end_at"`
	State                string         `db:"state"`
	UserID               *string        `db:"user_id"`
	ApproverID           *string        `db:"approver_id"`
	StaffEvent           bool           `db:"staff_event"`
	AccessCode           sql.NullString `db:"access_code"`
	Comments             sql.NullString `db:"comments"`
	ReserverName         sql.NullString `db:"reserver_name"`
	ReserverID           sql.NullString `db:"reserver_id"`
	ReserverEmailAddress sql.NullString `db:"reserver_email_address"`
	ReserverPhoneNumber  sql.NullString `db:"reserver_phone_number"`
	ReserverAddrStreet   sql.NullString `db:"reserver_address_street"`
	ReserverAddrZip      sql.NullString `db:"reserver_address_zip"`
	ReserverAddrCity     sql.NullString `db:"reserver_address_city"`
	BillingAddrStreet    sql.NullString `db:"billing_address_street"`
	BillingAddrZip       sql.NullString `db:"billing_address_zip"`
	BillingAddrCity      sql.NullString `db:"billing_address_city"`
	Company              sql.NullString `db:"company"`
	EventSubject         sql.NullString `db:"event_subject"`
	EventDescription     sql.NullString `db:"event_description"`
	NumberOfParticipants *int           `db:"number_of_participants"`
	HostName             sql.NullString `db:"host_name"`
	Language             sql.NullString `db:"language"`
	OriginID             sql.NullString `db:"origin_id"`
	CreatedAt            time.Time      `db:"created_at"`
	ModifiedAt           time.Time      `db:"modified_at"`
}

const reservationColumns = `r.id, r.resource_id, r.begin_at, r.end_at, r.state, r.user_id, r.approver_id, r.staff_event, r.access_code, r.comments, r.reserver_name, r.reserver_id, r.reserver_email_address, r.reserver_phone_number, r.reserver_address_street, r.reserver_address_zip, r.reserver_address_city, r.billing_address_street, r.billing_address_zip, r.billing_address_city, r.company, r.event_subject, r.event_description, r.number_of_participants, r.host_name, r.language, r.origin_id, r.created_at, r.modified_at`

type ReservationRepository struct{ db *sqlx.DB }

func NewReservationRepository(db *sqlx.DB) *ReservationRepository {
	return &ReservationRepository{db: db}
}

func (r *ReservationRepository) Create(ctx context.Context, tx transaction.Tx, rsv *reservation.Reservation) error {
	sqlxTx := UnwrapTx(tx)
	if sqlxTx == nil {
		return errTxRequired
	}
	if rsv.ID == "" {
		rsv.ID = uuid.NewString()
	}
	query := `INSERT INTO reservations (id, resource_id, begin_at, end_at, state, user_id, approver_id, staff_event, access_code, comments, reserver_name, reserver_id, reserver_email_address, reserver_phone_number, reserver_address_street, reserver_address_zip, reserver_address_city, billing_address_street, billing_address_zip, billing_address_city, company, event_subject, event_description, number_of_participants, host_name, language, origin_id, created_at, modified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29)`
	if _, err := sqlxTx.ExecContext(ctx, query, reservationArgs(rsv)...); err != nil {
		return mapReservationWriteErr(err, "予約作成に失敗")
	}
	return nil
}

func (r *ReservationRepository) Update(ctx context.Context, tx transaction.Tx, rsv *reservation.Reservation) error {
	sqlxTx := UnwrapTx(tx)
	if sqlxTx == nil {
		return errTxRequired
	}
	query := `UPDATE reservations SET resource_id = $2, begin_at = $3, end_at = $4, state = $5, user_id = $6, approver_id = $7, staff_event = $8, access_code = $9, comments = $10, reserver_name = $11, reserver_id = $12, reserver_email_address = $13, reserver_phone_number = $14, reserver_address_street = $15, reserver_address_zip = $16, reserver_address_city = $17, billing_address_street = $18, billing_address_zip = $19, billing_address_city = $20, company = $21, event_subject = $22, event_description = $23, number_of_participants = $24, host_name = $25, language = $26, origin_id = $27, created_at = $28, modified_at = $29 WHERE id = $1`
	result, err := sqlxTx.ExecContext(ctx, query, reservationArgs(rsv)...)
	if err != nil {
		return mapReservationWriteErr(err, "予約更新に失敗")
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return reservation.ErrReservationNotFound
	}
	return nil
}

func (r *ReservationRepository) GetByID(ctx context.Context, id string) (*reservation.Reservation, error) {
	var row reservationRow
	query := `SELECT ` + reservationColumns + ` FROM reservations r WHERE r.id = $1`
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, reservation.ErrReservationNotFound
		}
		return nil, fmt.Errorf("予約取得に失敗: %w", err)
	}
	return toReservationEntity(&row), nil
}

func (r *ReservationRepository) GetByIDForUpdate(ctx context.Context, tx transaction.Tx, id string) (*reservation.Reservation, error) {
	sqlxTx := UnwrapTx(tx)
	if sqlxTx == nil {
		return nil, errTxRequired
	}
	var row reservationRow
	query := `SELECT ` + reservationColumns + ` FROM reservations r WHERE r.id = $1 FOR UPDATE`
	if err := sqlxTx.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, reservation.ErrReservationNotFound
		}
		return nil, fmt.Errorf("予約取得に失敗: %w", err)
	}
	return toReservationEntity(&row), nil
}

// ListOverlapping は行ロック下で [begin, end) と交差する容量占有予約を返す
// 背中合わせ（end == 相手のbegin）は交差に含めない
func (r *ReservationRepository) ListOverlapping(ctx context.Context, tx transaction.Tx, resourceID string, begin, end time.Time, excludeID string) ([]*reservation.Reservation, error) {
	sqlxTx := UnwrapTx(tx)
	if sqlxTx == nil {
		return nil, errTxRequired
	}
	var rows []reservationRow
	query := `SELECT ` + reservationColumns + ` FROM reservations r
		WHERE r.resource_id = $1
		  AND r.state = ANY($2)
		  AND r.begin_at < $4 AND $3 < r.end_at
		  AND ($5 = '' OR r.id <> $5)
		ORDER BY r.begin_at`
	if err := sqlxTx.SelectContext(ctx, &rows, query,
		resourceID, pq.Array(stateStrings(reservation.OverlapStates)), begin, end, excludeID); err != nil {
		return nil, fmt.Errorf("重複予約取得に失敗: %w", err)
	}
	return toReservationEntities(rows), nil
}

// CountActiveForUser はクォータ対象（requested/confirmed かつ未終了）の予約数を数える
func (r *ReservationRepository) CountActiveForUser(ctx context.Context, tx transaction.Tx, resourceID, userID string, now time.Time) (int, error) {
	sqlxTx := UnwrapTx(tx)
	if sqlxTx == nil {
		return 0, errTxRequired
	}
	var count int
	query := `SELECT COUNT(*) FROM reservations
		WHERE resource_id = $1 AND user_id = $2 AND state = ANY($3) AND end_at >= $4`
	if err := sqlxTx.GetContext(ctx, &count, query,
		resourceID, userID, pq.Array(stateStrings(reservation.QuotaStates)), now); err != nil {
		return 0, fmt.Errorf("予約数集計に失敗: %w", err)
	}
	return count, nil
}

func (r *ReservationRepository) ListForRange(ctx context.Context, resourceID string, begin, end time.Time) ([]*reservation.Reservation, error) {
	var rows []reservationRow
	query := `SELECT ` + reservationColumns + ` FROM reservations r
		WHERE r.resource_id = $1
		  AND r.state = ANY($2)
		  AND r.begin_at < $4 AND $3 < r.end_at
		ORDER BY r.begin_at`
	if err := r.db.SelectContext(ctx, &rows, query,
		resourceID, pq.Array(stateStrings(reservation.OverlapStates)), begin, end); err != nil {
		return nil, fmt.Errorf("予約一覧取得に失敗: %w", err)
	}
	return toReservationEntities(rows), nil
}

func (r *ReservationRepository) List(ctx context.Context, filter reservation.ListFilter) ([]*reservation.Reservation, error) {
	var (
		conds []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.ResourceID != "" {
		conds = append(conds, "r.resource_id = "+arg(filter.ResourceID))
	}
	if filter.UnitID != "" {
		conds = append(conds, "res.unit_id = "+arg(filter.UnitID))
	}
	if filter.UserID != "" {
		conds = append(conds, "r.user_id = "+arg(filter.UserID))
	}
	if filter.ResourceGroupID != "" {
		conds = append(conds, "r.resource_id IN (SELECT resource_id FROM resource_group_members WHERE resource_group_id = "+arg(filter.ResourceGroupID)+")")
	}
	if len(filter.States) > 0 {
		conds = append(conds, "r.state = ANY("+arg(pq.Array(stateStrings(filter.States)))+")")
	}
	if filter.Start != nil {
		conds = append(conds, "r.end_at > "+arg(*filter.Start))
	}
	if filter.End != nil {
		conds = append(conds, "r.begin_at < "+arg(*filter.End))
	}
	if filter.NeedManualConfirmation != nil {
		conds = append(conds, "res.need_manual_confirmation = "+arg(*filter.NeedManualConfirmation))
	}
	if filter.ApprovableUnitIDs != nil {
		conds = append(conds, "res.unit_id = ANY("+arg(pq.Array(filter.ApprovableUnitIDs))+")")
	}
	if filter.FreeText != "" {
		p := arg("%" + filter.FreeText + "%")
		conds = append(conds, "(r.reserver_name ILIKE "+p+" OR r.reserver_email_address ILIKE "+p+" OR r.event_subject ILIKE "+p+" OR r.event_description ILIKE "+p+" OR r.host_name ILIKE "+p+")")
	}

	query := `SELECT ` + reservationColumns + ` FROM reservations r JOIN resources res ON res.id = r.resource_id`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY r.begin_at LIMIT " + arg(filter.Limit) + " OFFSET " + arg(filter.Offset)

	var rows []reservationRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("予約一覧取得に失敗: %w", err)
	}
	return toReservationEntities(rows), nil
}

func (r *ReservationRepository) ListExpiredWaiting(ctx context.Context, olderThan time.Time) ([]*reservation.Reservation, error) {
	var rows []reservationRow
	query := `SELECT ` + reservationColumns + ` FROM reservations r
		WHERE r.state = $1 AND r.created_at < $2 ORDER BY r.created_at`
	if err := r.db.SelectContext(ctx, &rows, query,
		string(reservation.StateWaitingForPayment), olderThan); err != nil {
		return nil, fmt.Errorf("期限切れ支払い待ち予約の取得に失敗: %w", err)
	}
	return toReservationEntities(rows), nil
}

var errTxRequired = errors.New("トランザクションがPostgreSQL実装ではありません")

// mapReservationWriteErr は排他制約違反を重複エラーに写像する
// 23P01 は行ロック検証をすり抜けた場合の最終防衛線
func mapReservationWriteErr(err error, msg string) error {
	if pgErr, ok := err.(*pq.Error); ok && (pgErr.Code == "23P01" || pgErr.Code == "23505") {
		return apperror.New(apperror.KindOverlapConflict, "指定時間帯は既に予約されています")
	}
	return fmt.Errorf(msg+": %w", err)
}

func stateStrings(states []reservation.State) []string {
	out := make([]string, len(states))
	for i, s := range states {
		out[i] = string(s)
	}
	return out
}

func reservationArgs(rsv *reservation.Reservation) []interface{} {
	return []interface{}{
		rsv.ID, rsv.ResourceID, rsv.Begin, rsv.End, string(rsv.State),
		rsv.UserID, rsv.ApproverID, rsv.StaffEvent, rsv.AccessCode, rsv.Comments,
		rsv.Reserver.ReserverName, rsv.Reserver.ReserverID, rsv.Reserver.ReserverEmailAddress,
		rsv.Reserver.ReserverPhoneNumber, rsv.Reserver.ReserverAddressStreet,
		rsv.Reserver.ReserverAddressZip, rsv.Reserver.ReserverAddressCity,
		rsv.Reserver.BillingAddressStreet, rsv.Reserver.BillingAddressZip,
		rsv.Reserver.BillingAddressCity, rsv.Reserver.Company,
		rsv.Event.EventSubject, rsv.Event.EventDescription, rsv.Event.NumberOfParticipants,
		rsv.Event.HostName, rsv.Language, rsv.OriginID, rsv.CreatedAt, rsv.ModifiedAt,
	}
}

func toReservationEntities(rows []reservationRow) []*reservation.Reservation {
	result := make([]*reservation.Reservation, len(rows))
	for i := range rows {
		result[i] = toReservationEntity(&rows[i])
	}
	return result
}

func toReservationEntity(row *reservationRow) *reservation.Reservation {
	return &reservation.Reservation{
		ID:         row.ID,
		ResourceID: row.ResourceID,
		Begin:      row.BeginAt,
		End:        row.EndAt,
		State:      reservation.State(row.State),
		UserID:     row.UserID,
		ApproverID: row.ApproverID,
		StaffEvent: row.StaffEvent,
		AccessCode: row.AccessCode.String,
		Comments:   row.Comments.String,
		Reserver: reservation.ReserverInfo{
			ReserverName:          row.ReserverName.String,
			ReserverID:            row.ReserverID.String,
			ReserverEmailAddress:  row.ReserverEmailAddress.String,
			ReserverPhoneNumber:   row.ReserverPhoneNumber.String,
			ReserverAddressStreet: row.ReserverAddrStreet.String,
			ReserverAddressZip:    row.ReserverAddrZip.String,
			ReserverAddressCity:   row.ReserverAddrCity.String,
			BillingAddressStreet:  row.BillingAddrStreet.String,
			BillingAddressZip:     row.BillingAddrZip.String,
			BillingAddressCity:    row.BillingAddrCity.String,
			Company:               row.Company.String,
		},
		Event: reservation.EventInfo{
			EventSubject:         row.EventSubject.String,
			EventDescription:     row.EventDescription.String,
			NumberOfParticipants: row.NumberOfParticipants,
			HostName:             row.HostName.String,
		},
		Language:   row.Language.String,
		OriginID:   row.OriginID.String,
		CreatedAt:  row.CreatedAt,
		ModifiedAt: row.ModifiedAt,
	}
}

var _ reservation.Repository = (*ReservationRepository)(nil)
