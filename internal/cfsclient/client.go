// Package cfsclient implements domain.CFSOperations against the CFS
// financial system's REST API, authenticating with an OAuth2 client
// credentials grant (spec §4.2).
package cfsclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/bcgov/sbc-pay-sub002/internal/domain"
)

// Client implements domain.CFSOperations over CFS's REST API. The http.Client
// it holds is produced by an oauth2/clientcredentials config, so every
// request carries a fresh bearer token, refreshed transparently on expiry.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// Config is the set of settings needed to reach CFS.
type Config struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// New constructs a Client whose requests are authorized via client
// credentials grant against cfg.TokenURL.
func New(cfg Config) *Client {
	ccCfg := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	httpClient := ccCfg.Client(context.Background())
	httpClient.Timeout = timeout

	return &Client{
		httpClient: httpClient,
		baseURL:    cfg.BaseURL,
	}
}

// cfsError is a non-2xx response from CFS; Is4xx distinguishes the
// caller-fatal 4xx class from the probe-worthy 5xx/timeout class per the
// policy table in spec §4.2.
type cfsError struct {
	StatusCode int
	Body       string
}

func (e *cfsError) Error() string {
	return fmt.Sprintf("cfs request failed: status=%d body=%s", e.StatusCode, e.Body)
}

func (e *cfsError) Is4xx() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reqBody *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal cfs request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build cfs request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("cfs request error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errNotFoundSentinel
	}

	if resp.StatusCode >= 300 {
		buf := new(bytes.Buffer)
		_, _ = buf.ReadFrom(resp.Body)
		return &cfsError{StatusCode: resp.StatusCode, Body: buf.String()}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

var errNotFoundSentinel = fmt.Errorf("cfs: not found")

type invoiceLineRequest struct {
	Description string `json:"description"`
	FilingType  string `json:"filing_type"`
	Total       string `json:"total"`
}

type createInvoiceRequest struct {
	CfsAccountNum     string               `json:"cfs_account_number"`
	CfsSite           string               `json:"cfs_site"`
	TransactionNumber string               `json:"transaction_number"`
	LineItems         []invoiceLineRequest `json:"line_items"`
}

type invoiceResponse struct {
	InvoiceNumber string `json:"invoice_number"`
	PbcRefNumber  string `json:"pbc_ref_number"`
	Total         string `json:"total"`
}

// CreateAccountInvoice creates a CFS invoice for acct, keyed by
// transactionNumber for idempotent retries. A timeout or 5xx is surfaced as
// an error; the caller (internal/task) is responsible for the probe-and-adopt
// follow-up of spec §9, not this method.
func (c *Client) CreateAccountInvoice(ctx context.Context, acct *domain.CfsAccount, transactionNumber string, lines []domain.LineItem) (domain.DispatchOutcome, error) {
	reqLines := make([]invoiceLineRequest, len(lines))
	for i, l := range lines {
		reqLines[i] = invoiceLineRequest{Description: l.Description, FilingType: l.FilingType, Total: l.Total.StringFixed(2)}
	}

	var resp invoiceResponse
	err := c.do(ctx, http.MethodPost, "/cfs/parties/invoices", createInvoiceRequest{
		CfsAccountNum:     acct.CfsAccountNum,
		CfsSite:           acct.CfsSite,
		TransactionNumber: transactionNumber,
		LineItems:         reqLines,
	}, &resp)
	if err != nil {
		return domain.DispatchOutcome{}, err
	}

	total, _ := decimal.NewFromString(resp.Total)
	return domain.DispatchOutcome{
		Kind: domain.DispatchCreated,
		CfsInvoice: &domain.CFSInvoice{
			InvoiceNumber: resp.InvoiceNumber,
			Total:         total,
			PbcRefNumber:  resp.PbcRefNumber,
		},
	}, nil
}

// GetInvoice probes CFS for an invoice already created under invoiceNumber,
// used both as a direct lookup and as the adoption probe after a timeout.
func (c *Client) GetInvoice(ctx context.Context, acct *domain.CfsAccount, invoiceNumber string) (*domain.CFSInvoice, error) {
	var resp invoiceResponse
	path := fmt.Sprintf("/cfs/parties/%s/sites/%s/invoices/%s", acct.CfsAccountNum, acct.CfsSite, invoiceNumber)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		if err == errNotFoundSentinel {
			return nil, domain.ErrInvoiceNotFound
		}
		return nil, err
	}
	total, _ := decimal.NewFromString(resp.Total)
	return &domain.CFSInvoice{InvoiceNumber: resp.InvoiceNumber, Total: total, PbcRefNumber: resp.PbcRefNumber}, nil
}

type createReceiptRequest struct {
	CfsAccountNum string `json:"cfs_account_number"`
	CfsSite       string `json:"cfs_site"`
	ReceiptNumber string `json:"receipt_number"`
	ReceiptDate   string `json:"receipt_date"`
	Amount        string `json:"amount"`
	PaymentMethod string `json:"payment_method"`
}

func (c *Client) CreateReceipt(ctx context.Context, acct *domain.CfsAccount, receiptNumber string, receiptDate time.Time, amount decimal.Decimal, method domain.PaymentMethod) error {
	return c.do(ctx, http.MethodPost, "/cfs/parties/receipts", createReceiptRequest{
		CfsAccountNum: acct.CfsAccountNum,
		CfsSite:       acct.CfsSite,
		ReceiptNumber: receiptNumber,
		ReceiptDate:   receiptDate.Format("2006-01-02"),
		Amount:        amount.StringFixed(2),
		PaymentMethod: string(method),
	}, nil)
}

type applyReceiptRequest struct {
	CfsAccountNum string `json:"cfs_account_number"`
	CfsSite       string `json:"cfs_site"`
	ReceiptNumber string `json:"receipt_number"`
	InvoiceNumber string `json:"invoice_number"`
}

func (c *Client) ApplyReceipt(ctx context.Context, acct *domain.CfsAccount, receiptNumber, invoiceNumber string) error {
	return c.do(ctx, http.MethodPost, "/cfs/parties/receipts/apply", applyReceiptRequest{
		CfsAccountNum: acct.CfsAccountNum, CfsSite: acct.CfsSite,
		ReceiptNumber: receiptNumber, InvoiceNumber: invoiceNumber,
	}, nil)
}

func (c *Client) UnapplyReceipt(ctx context.Context, acct *domain.CfsAccount, receiptNumber, invoiceNumber string) error {
	return c.do(ctx, http.MethodPost, "/cfs/parties/receipts/unapply", applyReceiptRequest{
		CfsAccountNum: acct.CfsAccountNum, CfsSite: acct.CfsSite,
		ReceiptNumber: receiptNumber, InvoiceNumber: invoiceNumber,
	}, nil)
}

type invoiceActionRequest struct {
	CfsAccountNum string `json:"cfs_account_number"`
	CfsSite       string `json:"cfs_site"`
	InvoiceNumber string `json:"invoice_number"`
}

func (c *Client) ReverseInvoice(ctx context.Context, acct *domain.CfsAccount, invoiceNumber string) error {
	return c.do(ctx, http.MethodPost, "/cfs/parties/invoices/reverse", invoiceActionRequest{
		CfsAccountNum: acct.CfsAccountNum, CfsSite: acct.CfsSite, InvoiceNumber: invoiceNumber,
	}, nil)
}

type adjustInvoiceRequest struct {
	CfsAccountNum string `json:"cfs_account_number"`
	CfsSite       string `json:"cfs_site"`
	InvoiceNumber string `json:"invoice_number"`
	Amount        string `json:"amount"`
	Reason        string `json:"reason"`
}

func (c *Client) AdjustInvoice(ctx context.Context, acct *domain.CfsAccount, invoiceNumber string, amount decimal.Decimal, reason string) error {
	return c.do(ctx, http.MethodPost, "/cfs/parties/invoices/adjust", adjustInvoiceRequest{
		CfsAccountNum: acct.CfsAccountNum, CfsSite: acct.CfsSite, InvoiceNumber: invoiceNumber,
		Amount: amount.StringFixed(2), Reason: reason,
	}, nil)
}

type createCreditMemoRequest struct {
	CfsAccountNum string `json:"cfs_account_number"`
	CfsSite       string `json:"cfs_site"`
	Amount        string `json:"amount"`
}

type creditMemoResponse struct {
	CmsNumber string `json:"cms_number"`
	AmountDue string `json:"amount_due"`
}

func (c *Client) CreateCreditMemo(ctx context.Context, acct *domain.CfsAccount, amount decimal.Decimal) (string, error) {
	var resp creditMemoResponse
	err := c.do(ctx, http.MethodPost, "/cfs/parties/credit-memos", createCreditMemoRequest{
		CfsAccountNum: acct.CfsAccountNum, CfsSite: acct.CfsSite, Amount: amount.StringFixed(2),
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.CmsNumber, nil
}

func (c *Client) GetCreditMemo(ctx context.Context, acct *domain.CfsAccount, cmsNumber string) (*domain.CFSCreditMemo, error) {
	var resp creditMemoResponse
	path := fmt.Sprintf("/cfs/parties/%s/sites/%s/credit-memos/%s", acct.CfsAccountNum, acct.CfsSite, cmsNumber)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		if err == errNotFoundSentinel {
			return &domain.CFSCreditMemo{Found: false}, nil
		}
		return nil, err
	}
	amountDue, _ := decimal.NewFromString(resp.AmountDue)
	return &domain.CFSCreditMemo{CmsNumber: resp.CmsNumber, AmountDue: amountDue, Found: true}, nil
}

type updateSiteReceiptMethodRequest struct {
	CfsAccountNum string `json:"cfs_account_number"`
	CfsSite       string `json:"cfs_site"`
	Method        string `json:"receipt_method"`
}

func (c *Client) UpdateSiteReceiptMethod(ctx context.Context, acct *domain.CfsAccount, method string) error {
	return c.do(ctx, http.MethodPost, "/cfs/parties/sites/receipt-method", updateSiteReceiptMethodRequest{
		CfsAccountNum: acct.CfsAccountNum, CfsSite: acct.CfsSite, Method: method,
	}, nil)
}

type addNSFAdjustmentRequest struct {
	CfsAccountNum string `json:"cfs_account_number"`
	CfsSite       string `json:"cfs_site"`
	InvoiceNumber string `json:"invoice_number"`
	Fee           string `json:"fee"`
}

func (c *Client) AddNSFAdjustment(ctx context.Context, acct *domain.CfsAccount, invoiceNumber string, fee decimal.Decimal) error {
	return c.do(ctx, http.MethodPost, "/cfs/parties/invoices/nsf-adjustment", addNSFAdjustmentRequest{
		CfsAccountNum: acct.CfsAccountNum, CfsSite: acct.CfsSite, InvoiceNumber: invoiceNumber, Fee: fee.StringFixed(2),
	}, nil)
}

type receiptBalanceResponse struct {
	ReceiptAmount string `json:"receipt_amount"`
	AmountApplied string `json:"amount_applied"`
}

func (c *Client) GetOnAccountReceipt(ctx context.Context, acct *domain.CfsAccount, receiptNumber string) (*domain.CFSReceiptBalance, error) {
	var resp receiptBalanceResponse
	path := fmt.Sprintf("/cfs/parties/%s/sites/%s/receipts/%s", acct.CfsAccountNum, acct.CfsSite, receiptNumber)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	amount, _ := decimal.NewFromString(resp.ReceiptAmount)
	applied, _ := decimal.NewFromString(resp.AmountApplied)
	return &domain.CFSReceiptBalance{ReceiptAmount: amount, AmountApplied: applied}, nil
}
