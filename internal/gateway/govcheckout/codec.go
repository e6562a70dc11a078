package govcheckout

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/veristore/veristore/internal/domain/checkout"
)

const (
	requestCreate       = "create"
	requestInvoiceState = "get_invoice_status"
)

type invoiceItem struct {
	ServiceCode string
	Amount      decimal.Decimal
	Currency    string
	Memo        string
}

type createInvoiceRequest struct {
	APIKey        string
	MDABranchCode string
	FirstName     string
	LastName      string
	PhoneNumber   string
	Email         string
	ApplicationID string
	Description   string
	Items         []invoiceItem
	RedirectURL   string
	PostURL       string
	ExtraDetails  string
}

func (r *createInvoiceRequest) Encode(e *jx.Encoder) {
	e.ObjStart()
	field := func(name, v string) {
		e.FieldStart(name)
		e.Str(v)
	}
	field("request", requestCreate)
	field("api_key", r.APIKey)
	field("mda_branch_code", r.MDABranchCode)
	field("firstname", r.FirstName)
	field("lastname", r.LastName)
	field("phonenumber", r.PhoneNumber)
	field("email", r.Email)
	field("application_id", r.ApplicationID)
	field("description", r.Description)
	e.FieldStart("invoice_items")
	e.ArrStart()
	for _, it := range r.Items {
		e.ObjStart()
		e.FieldStart("service_code")
		e.Str(it.ServiceCode)
		e.FieldStart("amount")
		e.Num(jx.Num(it.Amount.StringFixed(2)))
		e.FieldStart("currency")
		e.Str(it.Currency)
		e.FieldStart("memo")
		e.Str(it.Memo)
		e.ObjEnd()
	}
	e.ArrEnd()
	field("redirect_url", r.RedirectURL)
	field("post_url", r.PostURL)
	field("extra_details", r.ExtraDetails)
	e.ObjEnd()
}

type createInvoiceResponse struct {
	Status        int
	Message       string
	InvoiceNumber string
	CheckoutURL   string
}

func (r *createInvoiceResponse) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "status":
			r.Status, err = decodeLooseInt(d)
		case "message":
			r.Message, err = decodeOptStr(d)
		case "invoice_number":
			r.InvoiceNumber, err = decodeOptStr(d)
		case "checkout_url":
			r.CheckoutURL, err = decodeOptStr(d)
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
}

type statusResponse struct {
	Status     int
	Message    string
	HasOutput  bool
	StatusCode int
	StatusText string
}

func (r *statusResponse) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "status":
			v, err := decodeLooseInt(d)
			if err != nil {
				return errors.Wrap(err, key)
			}
			r.Status = v
			return nil
		case "message":
			v, err := decodeOptStr(d)
			if err != nil {
				return errors.Wrap(err, key)
			}
			r.Message = v
			return nil
		case "output":
			if d.Next() != jx.Object {
				return d.Skip()
			}
			r.HasOutput = true
			return d.Obj(func(d *jx.Decoder, key string) error {
				var err error
				switch key {
				case "payment_status_code":
					r.StatusCode, err = decodeLooseInt(d)
				case "payment_status_text":
					r.StatusText, err = decodeOptStr(d)
				default:
					err = d.Skip()
				}
				if err != nil {
					return errors.Wrapf(err, "output.%s", key)
				}
				return nil
			})
		default:
			return d.Skip()
		}
	})
}

// decodeLooseInt accepts a number, a numeric string or null.
func decodeLooseInt(d *jx.Decoder) (int, error) {
	switch d.Next() {
	case jx.Number:
		return d.Int()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return 0, err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, nil
		}
		return strconv.Atoi(s)
	case jx.Null:
		return 0, d.Null()
	default:
		return 0, errors.Errorf("unexpected %s", d.Next())
	}
}

func decodeOptStr(d *jx.Decoder) (string, error) {
	switch d.Next() {
	case jx.String:
		return d.Str()
	case jx.Null:
		return "", d.Null()
	default:
		raw, err := d.Raw()
		if err != nil {
			return "", err
		}
		return raw.String(), nil
	}
}

// buildCreateRequest maps a checkout request onto the gateway payload.
func buildCreateRequest(cfg Config, applicationID string, req checkout.CheckoutRequest) *createInvoiceRequest {
	out := &createInvoiceRequest{
		APIKey:        cfg.APIKey,
		MDABranchCode: cfg.MDABranch,
		FirstName:     namePart(req.Contact.Email, true),
		LastName:      namePart(req.Contact.Email, false),
		PhoneNumber:   req.Contact.MSISDN,
		Email:         req.Contact.Email,
		ApplicationID: applicationID,
		Description:   describe(req.Lines),
		RedirectURL:   cfg.RedirectURL,
		PostURL:       cfg.PostURL,
		Items:         make([]invoiceItem, 0, len(req.Lines)),
	}

	var extra strings.Builder
	for i, l := range req.Lines {
		if i > 0 {
			extra.WriteByte('|')
		}
		fmt.Fprintf(&extra, "sku=%s;quantity=%d", l.Key.SKU(), l.Quantity)

		out.Items = append(out.Items, invoiceItem{
			ServiceCode: l.Key.SKU(),
			Amount:      decimal.New(l.TotalMinor, -2),
			Currency:    string(l.UnitPrice.Currency),
			Memo:        fmt.Sprintf("%s x%d", l.Key.SKU(), l.Quantity),
		})
	}
	out.ExtraDetails = extra.String()
	return out
}

func describe(lines []checkout.CheckoutLine) string {
	switch len(lines) {
	case 0:
		return "Veristore purchase"
	case 1:
		return lines[0].Description
	default:
		return fmt.Sprintf("Veristore purchase (%d items)", len(lines))
	}
}

// namePart derives a first or last name from the local part of an email
// address, splitting on dots and underscores.
func namePart(email string, first bool) string {
	fallback := ""
	if first {
		fallback = "Customer"
	}
	local, _, _ := strings.Cut(strings.TrimSpace(email), "@")
	tokens := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == ' '
	})
	switch {
	case len(tokens) == 0:
		return fallback
	case first:
		return capitalize(tokens[0])
	case len(tokens) > 1:
		return capitalize(tokens[len(tokens)-1])
	default:
		return ""
	}
}

func capitalize(s string) string {
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
