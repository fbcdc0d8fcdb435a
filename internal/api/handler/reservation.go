package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sanosuguru/go-space-reservation/internal/application"
	"github.com/sanosuguru/go-space-reservation/internal/domain/apperror"
	"github.com/sanosuguru/go-space-reservation/internal/domain/permission"
	"github.com/sanosuguru/go-space-reservation/internal/domain/reservation"
)

type ReservationHandler struct {
	service ReservationServiceInterface
}

func NewReservationHandler(s ReservationServiceInterface) *ReservationHandler {
	return &ReservationHandler{service: s}
}

type ReservationRequest struct {
	ResourceID string `json:"resource" validate:"required" example:"550e8400-e29b-41d4-a716-446655440000"`
	Begin      string `json:"begin" validate:"required" example:"2026-04-04T09:00:00Z"`
	End        string `json:"end" validate:"required" example:"2026-04-04T10:00:00Z"`
	// State は更新時の遷移先（作成時は無視され、状態機械が決める）
	State      string  `json:"state,omitempty" example:"confirmed"`
	UserID     *string `json:"user,omitempty"`
	StaffEvent bool    `json:"staff_event,omitempty"`
	AccessCode string  `json:"access_code,omitempty"`
	Comments   string  `json:"comments,omitempty"`

	ReserverName          string `json:"reserver_name,omitempty"`
	ReserverID            string `json:"reserver_id,omitempty"`
	ReserverEmailAddress  string `json:"reserver_email_address,omitempty"`
	ReserverPhoneNumber   string `json:"reserver_phone_number,omitempty"`
	ReserverAddressStreet string `json:"reserver_address_street,omitempty"`
	ReserverAddressZip    string `json:"reserver_address_zip,omitempty"`
	ReserverAddressCity   string `json:"reserver_address_city,omitempty"`
	BillingAddressStreet  string `json:"billing_address_street,omitempty"`
	BillingAddressZip     string `json:"billing_address_zip,omitempty"`
	BillingAddressCity    string `json:"billing_address_city,omitempty"`
	Company               string `json:"company,omitempty"`
	EventSubject          string `json:"event_subject,omitempty"`
	EventDescription      string `json:"event_description,omitempty"`
	NumberOfParticipants  *int   `json:"number_of_participants,omitempty"`
	HostName              string `json:"host_name,omitempty"`
}

func (req *ReservationRequest) toInput() (application.ReservationInput, error) {
	begin, err := time.Parse(time.RFC3339, req.Begin)
	if err != nil {
		return application.ReservationInput{}, echo.NewHTTPError(http.StatusBadRequest, "beginの形式が不正です")
	}
	end, err := time.Parse(time.RFC3339, req.End)
	if err != nil {
		return application.ReservationInput{}, echo.NewHTTPError(http.StatusBadRequest, "endの形式が不正です")
	}
	fields := map[string]string{
		"reserver_name":           req.ReserverName,
		"reserver_id":             req.ReserverID,
		"reserver_email_address":  req.ReserverEmailAddress,
		"reserver_phone_number":   req.ReserverPhoneNumber,
		"reserver_address_street": req.ReserverAddressStreet,
		"reserver_address_zip":    req.ReserverAddressZip,
		"reserver_address_city":   req.ReserverAddressCity,
		"billing_address_street":  req.BillingAddressStreet,
		"billing_address_zip":     req.BillingAddressZip,
		"billing_address_city":    req.BillingAddressCity,
		"company":                 req.Company,
		"event_subject":           req.EventSubject,
		"event_description":       req.EventDescription,
		"host_name":               req.HostName,
	}
	if req.NumberOfParticipants != nil {
		fields["number_of_participants"] = strconv.Itoa(*req.NumberOfParticipants)
	}
	return application.ReservationInput{
		ResourceID: req.ResourceID,
		Begin:      begin,
		End:        end,
		UserID:     req.UserID,
		StaffEvent: req.StaffEvent,
		AccessCode: req.AccessCode,
		Comments:   req.Comments,
		Fields:     fields,
	}, nil
}

type ReservationResponse struct {
	ID         string            `json:"id"`
	ResourceID string            `json:"resource"`
	Begin      time.Time         `json:"begin"`
	End        time.Time         `json:"end"`
	State      string            `json:"state"`
	UserID     *string           `json:"user,omitempty"`
	ApproverID *string           `json:"approver,omitempty"`
	StaffEvent bool              `json:"staff_event"`
	AccessCode string            `json:"access_code,omitempty"`
	Comments   string            `json:"comments,omitempty"`
	Fields     map[string]string `json:"fields,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	ModifiedAt time.Time         `json:"modified_at"`
}

// toReservationResponse は可視性フラグに従って機微フィールドを落とす
func toReservationResponse(view application.ReservationView) ReservationResponse {
	r := view.Reservation
	resp := ReservationResponse{
		ID:         r.ID,
		ResourceID: r.ResourceID,
		Begin:      r.Begin,
		End:        r.End,
		State:      string(r.State),
		StaffEvent: r.StaffEvent,
		CreatedAt:  r.CreatedAt,
		ModifiedAt: r.ModifiedAt,
	}
	if view.ShowUser {
		resp.UserID = r.UserID
		resp.ApproverID = r.ApproverID
	}
	if view.ShowAccessCode {
		resp.AccessCode = r.AccessCode
	}
	if view.ShowComments {
		resp.Comments = r.Comments
	}
	if view.ShowExtraFields {
		fields := r.FieldMap()
		for name, value := range fields {
			if value == "" {
				delete(fields, name)
			}
		}
		resp.Fields = fields
	}
	return resp
}

func (h *ReservationHandler) checker(c echo.Context) (*permission.Checker, error) {
	userID := c.Request().Header.Get("X-User-ID")
	checker, err := h.service.LoadChecker(c.Request().Context(), userID)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "認可情報の取得に失敗しました")
	}
	return checker, nil
}

// Create godoc
// @Summary 予約を作成
// @Description リソースの時間帯を予約します。初期状態は状態機械が決めます
// @Tags reservations
// @Accept json
// @Produce json
// @Param X-User-ID header string true "ユーザーID"
// @Param request body ReservationRequest true "予約情報"
// @Success 201 {object} ReservationResponse
// @Failure 400 {object} api.ErrorResponse
// @Failure 401 {object} api.ErrorResponse
// @Failure 409 {object} api.ErrorResponse "時間帯が既に予約済み"
// @Router /reservations [post]
func (h *ReservationHandler) Create(c echo.Context) error {
	if c.Request().Header.Get("X-User-ID") == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "ユーザーIDが必要です")
	}
	checker, err := h.checker(c)
	if err != nil {
		return err
	}
	var req ReservationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	input, err := req.toInput()
	if err != nil {
		return err
	}
	rsv, err := h.service.CreateReservation(c.Request().Context(), checker, input)
	if err != nil {
		return err
	}
	view, err := h.service.BuildView(c.Request().Context(), checker, rsv)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toReservationResponse(view))
}

// GetByID godoc
// @Summary 予約を取得
// @Description 指定IDの予約を取得します。機微フィールドは権限に応じて隠されます
// @Tags reservations
// @Produce json
// @Param id path string true "予約ID"
// @Success 200 {object} ReservationResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /reservations/{id} [get]
func (h *ReservationHandler) GetByID(c echo.Context) error {
	checker, err := h.checker(c)
	if err != nil {
		return err
	}
	rsv, err := h.service.GetReservation(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	view, err := h.service.BuildView(c.Request().Context(), checker, rsv)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toReservationResponse(view))
}

// List godoc
// @Summary 予約一覧を取得
// @Description フィルターに一致する予約一覧を返します
// @Tags reservations
// @Produce json
// @Param resource query string false "リソースID"
// @Param unit query string false "ユニットID"
// @Param user query string false "ユーザーID（me で自分）"
// @Param is_own query bool false "自分の予約のみ"
// @Param state query string false "状態（カンマ区切り）"
// @Param need_manual_confirmation query bool false "手動承認が必要なリソースの予約のみ"
// @Param start query string false "範囲開始（RFC3339）"
// @Param end query string false "範囲終了（RFC3339）"
// @Param can_approve query bool false "承認可能な予約のみ"
// @Param include_past query bool false "終了済みも含める"
// @Param all query bool false "include_pastの別名"
// @Success 200 {array} ReservationResponse
// @Router /reservations [get]
func (h *ReservationHandler) List(c echo.Context) error {
	checker, err := h.checker(c)
	if err != nil {
		return err
	}
	filter, err := h.buildFilter(c, checker)
	if err != nil {
		return err
	}
	reservations, err := h.service.ListReservations(c.Request().Context(), filter)
	if err != nil {
		return err
	}
	resp := make([]ReservationResponse, 0, len(reservations))
	for _, rsv := range reservations {
		view, err := h.service.BuildView(c.Request().Context(), checker, rsv)
		if err != nil {
			return err
		}
		resp = append(resp, toReservationResponse(view))
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *ReservationHandler) buildFilter(c echo.Context, checker *permission.Checker) (reservation.ListFilter, error) {
	// ケータリング注文・お気に入りは連携側のデータで、このコアでは絞り込めない
	for _, param := range []string{"has_catering_order", "is_favorite_resource"} {
		if c.QueryParam(param) != "" {
			return reservation.ListFilter{}, apperror.NewField(apperror.KindFieldNotAllowed, param, "このフィルターは利用できません")
		}
	}
	filter := reservation.ListFilter{
		ResourceID:      c.QueryParam("resource"),
		UnitID:          c.QueryParam("unit"),
		ResourceGroupID: c.QueryParam("resource_group"),
	}
	if userParam := c.QueryParam("user"); userParam != "" {
		if userParam == "me" {
			filter.UserID = checker.User().ID
		} else {
			filter.UserID = userParam
		}
	}
	if isOwn, _ := strconv.ParseBool(c.QueryParam("is_own")); isOwn {
		filter.UserID = checker.User().ID
	}
	if stateParam := c.QueryParam("state"); stateParam != "" {
		for _, s := range splitCSV(stateParam) {
			st := reservation.State(s)
			if !st.IsValid() {
				return filter, echo.NewHTTPError(http.StatusBadRequest, "未知の状態です: "+s)
			}
			filter.States = append(filter.States, st)
		}
	}
	if startParam := c.QueryParam("start"); startParam != "" {
		t, err := time.Parse(time.RFC3339, startParam)
		if err != nil {
			return filter, echo.NewHTTPError(http.StatusBadRequest, "startの形式が不正です")
		}
		filter.Start = &t
	}
	if endParam := c.QueryParam("end"); endParam != "" {
		t, err := time.Parse(time.RFC3339, endParam)
		if err != nil {
			return filter, echo.NewHTTPError(http.StatusBadRequest, "endの形式が不正です")
		}
		filter.End = &t
	}
	filter.IncludePast, _ = strconv.ParseBool(c.QueryParam("include_past"))
	if all, _ := strconv.ParseBool(c.QueryParam("all")); all {
		filter.IncludePast = true
	}
	if param := c.QueryParam("need_manual_confirmation"); param != "" {
		need, err := strconv.ParseBool(param)
		if err != nil {
			return filter, echo.NewHTTPError(http.StatusBadRequest, "need_manual_confirmationの形式が不正です")
		}
		filter.NeedManualConfirmation = &need
	}

	// 承認待ちビュー: 承認権限のあるユニットに限定する
	if canApprove, _ := strconv.ParseBool(c.QueryParam("can_approve")); canApprove {
		filter.ApprovableUnitIDs = checker.ApprovableUnitIDs()
		needConfirmation := true
		filter.NeedManualConfirmation = &needConfirmation
	}

	// 自由文検索は承認スコープを持つアクターのみ
	if freeText := c.QueryParam("search"); freeText != "" {
		ids := checker.ApprovableUnitIDs()
		if ids != nil && len(ids) == 0 {
			return filter, echo.NewHTTPError(http.StatusForbidden, "検索を利用する権限がありません")
		}
		filter.FreeText = freeText
		if filter.ApprovableUnitIDs == nil {
			filter.ApprovableUnitIDs = ids
		}
	}

	if limit, err := strconv.Atoi(c.QueryParam("limit")); err == nil {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(c.QueryParam("offset")); err == nil {
		filter.Offset = offset
	}
	return filter, nil
}

// Update godoc
// @Summary 予約を更新
// @Description 予約の時刻・フィールドを更新し、stateが指定されていれば遷移も行います
// @Tags reservations
// @Accept json
// @Produce json
// @Param X-User-ID header string true "ユーザーID"
// @Param id path string true "予約ID"
// @Param request body ReservationRequest true "予約情報"
// @Success 200 {object} ReservationResponse
// @Failure 400 {object} api.ErrorResponse
// @Failure 403 {object} api.ErrorResponse
// @Failure 409 {object} api.ErrorResponse
// @Router /reservations/{id} [put]
func (h *ReservationHandler) Update(c echo.Context) error {
	if c.Request().Header.Get("X-User-ID") == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "ユーザーIDが必要です")
	}
	checker, err := h.checker(c)
	if err != nil {
		return err
	}
	var req ReservationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	input, err := req.toInput()
	if err != nil {
		return err
	}
	targetState := reservation.State(req.State)
	if req.State != "" && !targetState.IsValid() {
		return echo.NewHTTPError(http.StatusBadRequest, "未知の状態です: "+req.State)
	}
	rsv, err := h.service.UpdateReservation(c.Request().Context(), checker, c.Param("id"), input, targetState)
	if err != nil {
		return err
	}
	view, err := h.service.BuildView(c.Request().Context(), checker, rsv)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toReservationResponse(view))
}

// Cancel godoc
// @Summary 予約をキャンセル
// @Description 予約をキャンセル状態にします（物理削除はしません）
// @Tags reservations
// @Param X-User-ID header string true "ユーザーID"
// @Param id path string true "予約ID"
// @Success 204
// @Failure 403 {object} api.ErrorResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /reservations/{id} [delete]
func (h *ReservationHandler) Cancel(c echo.Context) error {
	if c.Request().Header.Get("X-User-ID") == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "ユーザーIDが必要です")
	}
	checker, err := h.checker(c)
	if err != nil {
		return err
	}
	if _, err := h.service.CancelReservation(c.Request().Context(), checker, c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Approve godoc
// @Summary 予約を承認
// @Description requested状態の予約をconfirmedに遷移させます
// @Tags reservations
// @Produce json
// @Param X-User-ID header string true "ユーザーID"
// @Param id path string true "予約ID"
// @Success 200 {object} ReservationResponse
// @Failure 400 {object} api.ErrorResponse
// @Failure 403 {object} api.ErrorResponse
// @Router /reservations/{id}/approve [post]
func (h *ReservationHandler) Approve(c echo.Context) error {
	return h.transition(c, reservation.StateConfirmed, false)
}

// Deny godoc
// @Summary 予約を拒否
// @Description requested状態の予約をdeniedに遷移させます
// @Tags reservations
// @Produce json
// @Param X-User-ID header string true "ユーザーID"
// @Param id path string true "予約ID"
// @Success 200 {object} ReservationResponse
// @Failure 400 {object} api.ErrorResponse
// @Failure 403 {object} api.ErrorResponse
// @Router /reservations/{id}/deny [post]
func (h *ReservationHandler) Deny(c echo.Context) error {
	return h.transition(c, reservation.StateDenied, false)
}

// ConfirmPayment godoc
// @Summary 決済完了を通知
// @Description 決済アダプターからの完了シグナルで waiting_for_payment を confirmed へ
// @Tags payments
// @Produce json
// @Param id path string true "予約ID"
// @Success 200 {object} ReservationResponse
// @Failure 400 {object} api.ErrorResponse
// @Router /reservations/{id}/payment/confirm [post]
func (h *ReservationHandler) ConfirmPayment(c echo.Context) error {
	return h.transition(c, reservation.StateConfirmed, true)
}

// FailPayment godoc
// @Summary 決済失敗を通知
// @Description 決済アダプターからの失敗シグナルで waiting_for_payment を denied へ
// @Tags payments
// @Produce json
// @Param id path string true "予約ID"
// @Success 200 {object} ReservationResponse
// @Failure 400 {object} api.ErrorResponse
// @Router /reservations/{id}/payment/fail [post]
func (h *ReservationHandler) FailPayment(c echo.Context) error {
	return h.transition(c, reservation.StateDenied, true)
}

func (h *ReservationHandler) transition(c echo.Context, target reservation.State, paymentSignal bool) error {
	checker, err := h.checker(c)
	if err != nil {
		return err
	}
	rsv, err := h.service.TransitionState(c.Request().Context(), checker, c.Param("id"), target, paymentSignal)
	if err != nil {
		return err
	}
	view, err := h.service.BuildView(c.Request().Context(), checker, rsv)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toReservationResponse(view))
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
