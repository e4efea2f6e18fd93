package parser

import (
	"strconv"
	"strings"
	"time"
)

// TDI17 record types, found at offset 2 width 2 (spec §6).
const (
	tdi17Header  = "1 "
	tdi17Detail  = "2 "
	tdi17Trailer = "7 "
)

// Transaction-description prefixes that classify an EFT short-name type
// (spec §6).
const (
	PrefixEFT            = "EFT"
	PrefixWire            = "WIRE"
	PrefixPAD             = "PAD"
	PrefixFederalPayment  = "FEDERAL PAYMENT"
)

// FieldError is one field-level parse failure, recorded with the line index
// so the whole file's error surface can be reported in one pass (spec §4.10).
type FieldError struct {
	LineIndex int
	Field     string
	Message   string
}

func (e FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// TDI17Header is the single header line of a TDI17 file.
type TDI17Header struct {
	LineIndex          int
	RecordType         string
	CreationDateTime   time.Time
	DepositDateStart   time.Time
	DepositDateEnd     time.Time
	Errors             []FieldError
}

// TDI17Trailer is the single trailer line of a TDI17 file.
type TDI17Trailer struct {
	LineIndex            int
	RecordType           string
	NumberOfDetails      int
	TotalDepositAmountCents int64
	Errors               []FieldError
}

// TDI17Detail is one EFT/wire/PAD deposit row.
type TDI17Detail struct {
	LineIndex              int
	RecordType             string
	MinistryCode           string
	ProgramCode            string
	DepositDate            time.Time
	DepositTime            string
	LocationID             string
	TransactionSequence    string
	TransactionDescription string
	DepositAmountCents     int64
	Currency               string
	ExchangeAdj            string
	DepositAmountCADCents  int64
	DestinationBankNumber  string
	BatchNumber            string
	JVType                 string
	JVNumber               string
	TransactionDate        time.Time
	Errors                 []FieldError
}

// field widths for the fixed-width detail record, in the order the columns
// are laid out on the wire.
const (
	fRecordType = 2
	fMinistryCode = 3
	fProgramCode = 3
	fDepositDate = 8
	fDepositTime = 4
	fLocationID = 5
	fTxnSequence = 7
	fTxnDescription = 40
	fDepositAmount = 11
	fCurrency = 3
	fExchangeAdj = 11
	fDepositAmountCAD = 11
	fDestinationBank = 4
	fBatchNumber = 7
	fJVType = 1
	fJVNumber = 10
	fTxnDate = 8
)

// fieldScanner walks a fixed-width line left to right, tracking the errors
// that accumulate instead of aborting the record (spec §4.10).
type fieldScanner struct {
	line   string
	pos    int
	lineNo int
	errs   []FieldError
}

func newFieldScanner(line string, lineNo int) *fieldScanner {
	return &fieldScanner{line: line, lineNo: lineNo}
}

func (s *fieldScanner) next(width int) string {
	if s.pos+width > len(s.line) {
		s.pos = len(s.line)
		return ""
	}
	v := s.line[s.pos : s.pos+width]
	s.pos += width
	return strings.TrimSpace(v)
}

func (s *fieldScanner) fail(field, message string) {
	s.errs = append(s.errs, FieldError{LineIndex: s.lineNo, Field: field, Message: message})
}

func (s *fieldScanner) nextInt(width int, field string) int64 {
	raw := s.next(width)
	if raw == "" {
		return 0
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		s.fail(field, "not a valid integer: "+raw)
		return 0
	}
	return n
}

func (s *fieldScanner) nextDate(width int, field, layout string) time.Time {
	raw := s.next(width)
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(layout, raw)
	if err != nil {
		s.fail(field, "invalid date: "+raw)
		return time.Time{}
	}
	return t
}

// ParseTDI17Header parses the file's single header line.
func ParseTDI17Header(line string, lineIndex int) *TDI17Header {
	if len(line) < fRecordType {
		return &TDI17Header{LineIndex: lineIndex, Errors: []FieldError{{LineIndex: lineIndex, Field: "line", Message: "invalid line length"}}}
	}
	s := newFieldScanner(line, lineIndex)
	recordType := s.next(fRecordType)
	h := &TDI17Header{LineIndex: lineIndex, RecordType: recordType}
	if recordType != "1" {
		s.fail("record_type", "expected header record type 1, got "+recordType)
	}

	dateRaw := s.next(8)
	timeRaw := s.next(4)
	if dateRaw != "" && timeRaw != "" {
		if t, err := time.Parse("20060102 1504", dateRaw+" "+timeRaw); err == nil {
			h.CreationDateTime = t
		} else {
			s.fail("creation_datetime", "invalid creation date/time")
		}
	} else {
		s.fail("creation_datetime", "missing creation date/time")
	}

	h.DepositDateStart = s.nextDate(8, "deposit_date_start", "20060102")
	h.DepositDateEnd = s.nextDate(8, "deposit_date_end", "20060102")
	h.Errors = s.errs
	return h
}

// ParseTDI17Trailer parses the file's single trailer line.
func ParseTDI17Trailer(line string, lineIndex int) *TDI17Trailer {
	if len(line) < fRecordType {
		return &TDI17Trailer{LineIndex: lineIndex, Errors: []FieldError{{LineIndex: lineIndex, Field: "line", Message: "invalid line length"}}}
	}
	s := newFieldScanner(line, lineIndex)
	recordType := s.next(fRecordType)
	t := &TDI17Trailer{LineIndex: lineIndex, RecordType: recordType}
	if recordType != "7" {
		s.fail("record_type", "expected trailer record type 7, got "+recordType)
	}
	t.NumberOfDetails = int(s.nextInt(6, "number_of_details"))
	t.TotalDepositAmountCents = s.nextInt(15, "total_deposit_amount")
	t.Errors = s.errs
	return t
}

// ParseTDI17Detail parses one detail line. Returns the parsed detail with
// false if the line's
// transaction description doesn't match an EFT-category prefix — such lines
// are descriptive, non-EFT rows to be ignored per spec §4.10.
func ParseTDI17Detail(line string, lineIndex int) (*TDI17Detail, bool) {
	if len(line) < fRecordType {
		return &TDI17Detail{LineIndex: lineIndex, Errors: []FieldError{{LineIndex: lineIndex, Field: "line", Message: "invalid line length"}}}, true
	}
	s := newFieldScanner(line, lineIndex)
	recordType := s.next(fRecordType)
	d := &TDI17Detail{LineIndex: lineIndex, RecordType: recordType}
	if recordType != "2" {
		s.fail("record_type", "expected detail record type 2, got "+recordType)
	}

	d.MinistryCode = s.next(fMinistryCode)
	d.ProgramCode = s.next(fProgramCode)
	d.DepositDate = s.nextDate(fDepositDate, "deposit_date", "20060102")
	d.DepositTime = s.next(fDepositTime)
	d.LocationID = s.next(fLocationID)
	d.TransactionSequence = s.next(fTxnSequence)
	d.TransactionDescription = s.next(fTxnDescription)
	d.DepositAmountCents = s.nextInt(fDepositAmount, "deposit_amount")
	d.Currency = s.next(fCurrency)
	d.ExchangeAdj = s.next(fExchangeAdj)
	d.DepositAmountCADCents = s.nextInt(fDepositAmountCAD, "deposit_amount_cad")
	d.DestinationBankNumber = s.next(fDestinationBank)
	d.BatchNumber = s.next(fBatchNumber)
	d.JVType = s.next(fJVType)
	d.JVNumber = s.next(fJVNumber)
	d.TransactionDate = s.nextDate(fTxnDate, "transaction_date", "20060102")
	d.Errors = s.errs

	if !isEFTCategoryDescription(d.TransactionDescription) {
		return d, false
	}
	return d, true
}

func isEFTCategoryDescription(desc string) bool {
	upper := strings.ToUpper(desc)
	for _, prefix := range []string{PrefixEFT, PrefixWire, PrefixPAD, PrefixFederalPayment} {
		if strings.HasPrefix(upper, prefix) {
			return true
		}
	}
	return false
}

// ShortNameFromDescription derives the EFT short name from a transaction
// description: the token after the classifying prefix, or a synthesized name
// for federal-payment rows (spec §6).
func ShortNameFromDescription(desc string) string {
	upper := strings.ToUpper(strings.TrimSpace(desc))
	for _, prefix := range []string{PrefixEFT, PrefixWire, PrefixPAD} {
		if strings.HasPrefix(upper, prefix) {
			rest := strings.TrimSpace(desc[len(prefix):])
			if rest != "" {
				return rest
			}
		}
	}
	if strings.HasPrefix(upper, PrefixFederalPayment) {
		return "FEDERAL PAYMENT"
	}
	return strings.TrimSpace(desc)
}
