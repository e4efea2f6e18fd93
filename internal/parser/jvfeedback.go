package parser

import (
	"strconv"
	"strings"
	"time"
)

// JV feedback record classes, found at offset 2 width 2 (spec §6).
const (
	RecordClassBG = "BG"
	RecordClassBH = "BH"
	RecordClassJH = "JH"
	RecordClassJD = "JD"
	RecordClassBT = "BT"
	RecordClassIH = "IH"
)

// Column windows fixed on the wire (spec §6). JD's flowthrough window
// contains a known CAS quirk: spurious zeros inserted into [300,315)
// relative to the line start, which must be stripped before interpreting
// the flowthrough string.
const (
	bgBatchNumberStart   = 15
	bgBatchNumberEnd     = 24
	bhReturnCodeStart    = 7
	bhReturnCodeWidth    = 4
	jhJournalNameStart   = 7
	jhJournalNameEnd     = 17
	jhReceiptNumberStart = 0
	jhReceiptNumberEnd   = 42
	jhAmountStart        = 42
	jhAmountEnd          = 57
	jhReturnCodeStart    = 271
	jhReturnCodeWidth    = 4
	jdEffectiveDateStart = 22
	jdEffectiveDateEnd   = 30
	jdObjectCodeStart    = 30
	jdObjectCodeEnd      = 33
	jdCreditDebitStart   = 104
	jdFlowthroughStart   = 205
	jdFlowthroughEnd     = 315
	jdQuirkZerosStart    = 300
	jdQuirkZerosEnd      = 315
	jdReturnCodeStart    = 315
	jdReturnCodeWidth    = 4
	errorMessageWidth    = 150
)

// RecordClass returns the two-character class at offset 2 of line, or "" if
// the line is too short to carry one.
func RecordClass(line string) string {
	if len(line) < 4 {
		return ""
	}
	return line[2:4]
}

// BGRecord carries the batch number identifying one EjvFile.
type BGRecord struct {
	BatchNumber string
}

// ParseBG extracts the batch number from its fixed column (spec §4.9).
func ParseBG(line string) BGRecord {
	return BGRecord{BatchNumber: strings.TrimSpace(sliceSafe(line, bgBatchNumberStart, bgBatchNumberEnd))}
}

// BHRecord carries the file-level return code and message.
type BHRecord struct {
	ReturnCode string
	Message    string
}

func ParseBH(line string) BHRecord {
	return BHRecord{
		ReturnCode: returnCodeAt(line, bhReturnCodeStart, bhReturnCodeWidth),
		Message:    errorMessageAfter(line, bhReturnCodeStart, bhReturnCodeWidth),
	}
}

// JHRecord is one journal header line. The journal name is a 10-char field
// whose first two characters are a ministry code and remaining eight are
// this engine's EjvHeader id, zero-padded.
type JHRecord struct {
	JournalName   string
	EjvHeaderID   int32
	ReturnCode    string
	Message       string
	ReceiptNumber string
	Amount        string
}

// ParseJH extracts the EjvHeader id from the journal name token and the
// receipt number/amount CAS carries for gov-account payment JVs (spec §4.9).
func ParseJH(line string) JHRecord {
	jh := JHRecord{}
	journalName := sliceSafe(line, jhJournalNameStart, jhJournalNameEnd)
	jh.JournalName = journalName
	if len(journalName) > 2 {
		if id, err := strconv.ParseInt(strings.TrimSpace(journalName[2:]), 10, 32); err == nil {
			jh.EjvHeaderID = int32(id)
		}
	}
	jh.ReceiptNumber = strings.TrimSpace(sliceSafe(line, jhReceiptNumberStart, jhReceiptNumberEnd))
	jh.Amount = strings.TrimSpace(sliceSafe(line, jhAmountStart, jhAmountEnd))
	jh.ReturnCode = returnCodeAt(line, jhReturnCodeStart, jhReturnCodeWidth)
	jh.Message = errorMessageAfter(line, jhReturnCodeStart, jhReturnCodeWidth)
	return jh
}

// JDRecord is one journal detail line.
type JDRecord struct {
	EjvHeaderID           int32
	Flowthrough           string
	InvoiceID             int32
	PartnerDisbursementID int32
	IsCredit              bool
	ObjectCode            string
	EffectiveDate         time.Time
	ReturnCode            string
	Message               string
}

// ParseJD extracts the flowthrough window, correcting the CAS zero-insertion
// quirk before splitting "invoice_id" or "invoice_id-partner_disbursement_id",
// and reads the credit/debit marker and object code straight from the line
// (spec §4.9, §4.10).
func ParseJD(line string) JDRecord {
	jd := JDRecord{}
	journalName := sliceSafe(line, jhJournalNameStart, jhJournalNameEnd)
	if len(journalName) > 2 {
		if id, err := strconv.ParseInt(strings.TrimSpace(journalName[2:]), 10, 32); err == nil {
			jd.EjvHeaderID = int32(id)
		}
	}
	jd.IsCredit = sliceSafe(line, jdCreditDebitStart, jdCreditDebitStart+1) == "C"
	jd.ObjectCode = sliceSafe(line, jdObjectCodeStart, jdObjectCodeEnd)
	if t, err := time.Parse("20060102", sliceSafe(line, jdEffectiveDateStart, jdEffectiveDateEnd)); err == nil {
		jd.EffectiveDate = t
	}

	window := sliceSafe(line, jdFlowthroughStart, jdFlowthroughEnd)
	window = stripQuirkZeros(window, jdFlowthroughStart, jdQuirkZerosStart, jdQuirkZerosEnd)
	jd.Flowthrough = strings.TrimSpace(window)

	parts := strings.SplitN(jd.Flowthrough, "-", 2)
	if len(parts) >= 1 {
		if id, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 32); err == nil {
			jd.InvoiceID = int32(id)
		}
	}
	if len(parts) == 2 {
		if id, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 32); err == nil {
			jd.PartnerDisbursementID = int32(id)
		}
	}

	jd.ReturnCode = returnCodeAt(line, jdReturnCodeStart, jdReturnCodeWidth)
	jd.Message = errorMessageAfter(line, jdReturnCodeStart, jdReturnCodeWidth)
	return jd
}

// stripQuirkZeros removes the spurious zero padding CAS inserts in
// [quirkStart,quirkEnd) of the full line, expressed relative to windowStart
// since window is already a substring of the line.
func stripQuirkZeros(window string, windowStart, quirkStart, quirkEnd int) string {
	relStart := quirkStart - windowStart
	relEnd := quirkEnd - windowStart
	if relStart < 0 || relStart >= len(window) {
		return window
	}
	if relEnd > len(window) {
		relEnd = len(window)
	}
	return window[:relStart] + strings.ReplaceAll(window[relStart:relEnd], "0", "") + window[relEnd:]
}

func sliceSafe(line string, start, end int) string {
	if start >= len(line) {
		return ""
	}
	if end > len(line) {
		end = len(line)
	}
	return line[start:end]
}

// Window exports sliceSafe for AP (IH) line parsing, whose column windows
// (spec §4.9) are read directly by the reconciler rather than through a
// dedicated record type.
func Window(line string, start, end int) string {
	return sliceSafe(line, start, end)
}

func returnCodeAt(line string, start, width int) string {
	return strings.TrimSpace(sliceSafe(line, start, start+width))
}

func errorMessageAfter(line string, codeStart, codeWidth int) string {
	return strings.TrimSpace(sliceSafe(line, codeStart+codeWidth, codeStart+codeWidth+errorMessageWidth))
}

// IsReturnCodeSuccess reports whether code signals success. CAS success
// codes are all-zero.
func IsReturnCodeSuccess(code string) bool {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return false
	}
	for _, c := range trimmed {
		if c != '0' {
			return false
		}
	}
	return true
}

// ObjectCodeReversal is the CAS object code signalling a reversal on a
// Credit detail line in a DISBURSEMENT file (spec §4.9).
const ObjectCodeReversal = "112"
