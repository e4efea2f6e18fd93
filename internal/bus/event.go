package bus

import (
	"time"

	"github.com/google/uuid"

	"github.com/bcgov/sbc-pay-sub002/internal/domain"
)

// Topic names this engine publishes to (spec §6). Each corresponds to one
// NATS subject "sub002.<topic>".
const (
	TopicInvoicePaid       = "invoice.paid"
	TopicInvoiceRefunded   = "invoice.refunded"
	TopicAccountNSF        = "account.nsf"
	TopicAccountUnlocked   = "account.unlocked"
	TopicDisbursementDone  = "disbursement.completed"
	TopicReconciliationRun = "reconciliation.run_completed"
	TopicPADInvoiceCreated = "invoice.pad_created"
	TopicOnlineBankingPaid = "invoice.online_banking_paid"
	TopicEjvFailed         = "disbursement.ejv_failed"
)

// TopicFileUploaded is the inbound subject the object-store upload notifier
// publishes to when a CAS, TDI17, or JV feedback file lands in the bucket.
// The orchestrator's file-event subscriber consumes it to trigger the
// matching reconciler (spec §4.4, §4.7, §4.9).
const TopicFileUploaded = "file.uploaded"

// FileUploadedPayload is the message body carried on TopicFileUploaded.
type FileUploadedPayload struct {
	FileType string `json:"fileType"` // "CAS", "TDI17", or "JV"
	Location string `json:"location"`
	FileName string `json:"fileName"`
}

// EventSource identifies this engine as the CloudEvents source for every
// event it publishes.
const EventSource = "sbc-pay-sub002"

// NewEvent builds a CloudEvents-shaped domain.Event for eventType with data
// as its payload.
func NewEvent(eventType, source string, data any) domain.Event {
	return domain.Event{
		SpecVersion: "1.0",
		Type:        eventType,
		Source:      source,
		ID:          uuid.NewString(),
		Time:        time.Now().UTC(),
		Data:        data,
	}
}
