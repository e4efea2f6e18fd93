package domain

// DispatchOutcome is the result of a probe-and-adopt CFS create-invoice
// attempt (spec §9 design note). A timeout or 5xx from CFS does not tell the
// caller whether the invoice was actually created, so the caller probes for
// an existing invoice under the same transaction number before deciding.
type DispatchOutcome struct {
	Kind          DispatchOutcomeKind
	CfsInvoice    *CFSInvoice
}

// DispatchOutcomeKind enumerates the three shapes a dispatch attempt can
// settle into.
type DispatchOutcomeKind int

const (
	// DispatchCreated means CFS accepted a fresh create-invoice call and
	// returned the new invoice synchronously.
	DispatchCreated DispatchOutcomeKind = iota
	// DispatchAdoptedOnProbe means the create-invoice call itself failed
	// (timeout/5xx) but a follow-up GetInvoice by transaction number found
	// an invoice CFS had in fact created; the caller adopts it rather than
	// creating a duplicate.
	DispatchAdoptedOnProbe
	// DispatchSkipUnknown means the create-invoice call failed and the probe
	// found nothing; the caller must leave the invoice in its prior state
	// and retry on a later run rather than risk a duplicate.
	DispatchSkipUnknown
)

func (k DispatchOutcomeKind) String() string {
	switch k {
	case DispatchCreated:
		return "CREATED"
	case DispatchAdoptedOnProbe:
		return "ADOPTED_ON_PROBE"
	case DispatchSkipUnknown:
		return "SKIP_UNKNOWN"
	default:
		return "UNKNOWN"
	}
}
