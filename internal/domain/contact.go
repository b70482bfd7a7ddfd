package domain

import "time"

// Contact is one phone-addressable entry in the roster. The raw phone string
// is authoritative; the normalized form is derived at index-build time and
// never stored on the record.
type Contact struct {
	ID                 int64      `json:"id"`
	Name               string     `json:"name"`
	Phone              string     `json:"phone"`
	LastDeliveryStatus string     `json:"last_delivery_status,omitempty"`
	LastReplyBody      string     `json:"last_reply_body,omitempty"`
	LastReplyAt        *time.Time `json:"last_reply_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// DeliveryReceipt is the outcome of one outbound send attempt. It only lives
// long enough to be written into the contact's last_delivery_status.
type DeliveryReceipt struct {
	ContactID int64
	Status    string
	At        time.Time
}

// InboundReply is one webhook-delivered reply. It exists for the duration of
// a single webhook invocation: either correlated onto a contact or dropped.
type InboundReply struct {
	From       string
	Body       string
	ReceivedAt time.Time
}

// Column names accepted by RecordStore.UpdateFields.
const (
	FieldName           = "name"
	FieldPhone          = "phone"
	FieldDeliveryStatus = "last_delivery_status"
	FieldReplyBody      = "last_reply_body"
	FieldReplyAt        = "last_reply_at"
)
