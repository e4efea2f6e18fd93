// Package parser turns the three wire formats this engine consumes — CAS
// settlement CSVs, TDI17 fixed-width deposit files, and JV feedback
// fixed-width files — into row/record structs. No ecosystem library in the
// example pack does fixed-width EDI-style parsing, so TDI17 and JV feedback
// are hand-rolled against stdlib; CAS uses encoding/csv.
package parser

import (
	"encoding/csv"
	"io"
	"strings"
)

// CasRow is one data row of a CAS settlement CSV, with column access
// normalized to lowercase and missing recognized columns evaluating to the
// empty string (spec §4.10) so callers must explicitly check for blanks.
type CasRow struct {
	columns map[string]string
}

// Get returns the value of a recognized column, or "" if the column was not
// present in this file's header.
func (r CasRow) Get(column string) string {
	return r.columns[strings.ToLower(column)]
}

// ParseCAS reads a CAS settlement CSV. The first row is the header; unknown
// columns are ignored, and a row with fewer fields than the header pads the
// remainder with empty strings.
func ParseCAS(r io.Reader) ([]CasRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, err
	}
	lowerHeader := make([]string, len(header))
	for i, h := range header {
		lowerHeader[i] = strings.ToLower(strings.TrimSpace(h))
	}

	var rows []CasRow
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		row := CasRow{columns: make(map[string]string, len(lowerHeader))}
		for i, col := range lowerHeader {
			if i < len(record) {
				row.columns[col] = record[i]
			} else {
				row.columns[col] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// CAS column names, as CAS actually spells them (case-insensitive on read).
const (
	ColRecordType             = "Record type"
	ColSourceTxnType          = "Source transaction type"
	ColSourceTxnNumber        = "Source Transaction Number"
	ColAppID                  = "Application Id"
	ColAppDate                = "Application Date"
	ColAppAmount              = "Application amount"
	ColCustomerAccount        = "Customer Account"
	ColTargetTxnType          = "Target transaction type"
	ColTargetTxnNumber        = "Target transaction Number"
	ColTargetTxnOriginal      = "Target Transaction Original amount"
	ColTargetTxnOutstanding   = "Target Transaction Outstanding Amount"
	ColTargetTxnStatus        = "Target transaction status"
	ColReversalReasonCode     = "Reversal Reason code"
	ColReversalReasonDesc     = "Reversal reason desc"
)

// Recognized CAS record types (spec §4.4, first column RECORD_TYPE).
const (
	RecordPAD  = "PADP"
	RecordPADR = "PADR"
	RecordPAYR = "PAYR"
	RecordBOLP = "BOLP"
	RecordEFTP = "EFTP"
	RecordONAC = "ONAC"
	RecordONAP = "ONAP"
	RecordCMAP = "CMAP"
	RecordDRWP = "DRWP"
	RecordADJS = "ADJS"
	RecordEFTR = "EFTR"
)

// Recognized CAS target-transaction types.
const (
	TargetTxnInvoice     = "INV"
	TargetTxnDebitMemo   = "DM"
	TargetTxnCreditMemo  = "CM"
	TargetTxnReceipt     = "RECEIPT"
)

// Recognized CAS target-transaction statuses.
const (
	TxnStatusPaid    = "Fully PAID"
	TxnStatusNotPaid = "Not PAID"
	TxnStatusOnAcc   = "On Account"
	TxnStatusPartial = "Partially PAID"
)

// IsNSFRecord reports whether record_type signals a PAD reversal/NSF row.
func IsNSFRecord(recordType string) bool {
	return recordType == RecordPADR || recordType == RecordPAYR
}

// StatusEquals compares a Target transaction status value case-insensitively,
// matching CAS's own inconsistent casing across files.
func StatusEquals(value, want string) bool {
	return strings.EqualFold(strings.TrimSpace(value), want)
}
