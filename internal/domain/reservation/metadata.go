package reservation

import (
	"strconv"

	"github.com/sanosuguru/go-space-reservation/internal/domain/apperror"
)

// 予約者ブロックとイベントメタデータの既知フィールド名（正規化の順序もこの並び）
var KnownFields = []string{
	"reserver_name",
	"reserver_id",
	"reserver_email_address",
	"reserver_phone_number",
	"reserver_address_street",
	"reserver_address_zip",
	"reserver_address_city",
	"billing_address_street",
	"billing_address_zip",
	"billing_address_city",
	"company",
	"event_subject",
	"event_description",
	"number_of_participants",
	"host_name",
}

// MetadataSet はリソースごとに受理・必須となるフィールドを宣言する
type MetadataSet struct {
	ID        string
	Name      string
	Supported []string
	Required  []string
}

// IsSupported はフィールドがこのセットで受理されるかを返す
func (m *MetadataSet) IsSupported(field string) bool {
	for _, f := range m.Supported {
		if f == field {
			return true
		}
	}
	return false
}

// Normalize は未対応フィールドを黙って落とした入力を返す
// セットがnilの場合は全既知フィールドを受理する
func (m *MetadataSet) Normalize(fields map[string]string) map[string]string {
	out := make(map[string]string, len(fields))
	for name, value := range fields {
		if !isKnownField(name) {
			continue
		}
		if m != nil && !m.IsSupported(name) {
			continue
		}
		out[name] = value
	}
	return out
}

// CheckRequired は必須フィールドが全て非空で存在するかを検証する
// 最初に欠けたフィールドで missing_required_field を返す
func (m *MetadataSet) CheckRequired(fields map[string]string) error {
	if m == nil {
		return nil
	}
	for _, name := range m.Required {
		if fields[name] == "" {
			return apperror.NewField(apperror.KindMissingRequiredField, name, "必須フィールドが未入力です")
		}
	}
	return nil
}

func isKnownField(name string) bool {
	for _, f := range KnownFields {
		if f == name {
			return true
		}
	}
	return false
}

// FieldMap は予約者・イベントメタデータをフィールド名→値のマップに変換する
func (r *Reservation) FieldMap() map[string]string {
	out := map[string]string{
		"reserver_name":           r.Reserver.ReserverName,
		"reserver_id":             r.Reserver.ReserverID,
		"reserver_email_address":  r.Reserver.ReserverEmailAddress,
		"reserver_phone_number":   r.Reserver.ReserverPhoneNumber,
		"reserver_address_street": r.Reserver.ReserverAddressStreet,
		"reserver_address_zip":    r.Reserver.ReserverAddressZip,
		"reserver_address_city":   r.Reserver.ReserverAddressCity,
		"billing_address_street":  r.Reserver.BillingAddressStreet,
		"billing_address_zip":     r.Reserver.BillingAddressZip,
		"billing_address_city":    r.Reserver.BillingAddressCity,
		"company":                 r.Reserver.Company,
		"event_subject":           r.Event.EventSubject,
		"event_description":       r.Event.EventDescription,
		"host_name":               r.Event.HostName,
	}
	if r.Event.NumberOfParticipants != nil {
		out["number_of_participants"] = strconv.Itoa(*r.Event.NumberOfParticipants)
	} else {
		out["number_of_participants"] = ""
	}
	return out
}

// ApplyFieldMap は正規化済みフィールドをエンティティへ書き戻す
// マップに無いフィールドはゼロ値になる（未対応フィールドの黙殺を含む）
func (r *Reservation) ApplyFieldMap(fields map[string]string) {
	r.Reserver = ReserverInfo{
		ReserverName:          fields["reserver_name"],
		ReserverID:            fields["reserver_id"],
		ReserverEmailAddress:  fields["reserver_email_address"],
		ReserverPhoneNumber:   fields["reserver_phone_number"],
		ReserverAddressStreet: fields["reserver_address_street"],
		ReserverAddressZip:    fields["reserver_address_zip"],
		ReserverAddressCity:   fields["reserver_address_city"],
		BillingAddressStreet:  fields["billing_address_street"],
		BillingAddressZip:     fields["billing_address_zip"],
		BillingAddressCity:    fields["billing_address_city"],
		Company:               fields["company"],
	}
	r.Event = EventInfo{
		EventSubject:     fields["event_subject"],
		EventDescription: fields["event_description"],
		HostName:         fields["host_name"],
	}
	if v := fields["number_of_participants"]; v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			r.Event.NumberOfParticipants = &n
		}
	}
}
