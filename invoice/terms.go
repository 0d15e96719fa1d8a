package invoice

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"

	"github.com/xraph/invoicing/types"
)

// PaymentTerms describe when an issued invoice falls due, e.g. "Net 30".
type PaymentTerms string

const (
	TermsDueOnReceipt PaymentTerms = "Due on receipt"
	TermsNet15        PaymentTerms = "Net 15"
	TermsNet30        PaymentTerms = "Net 30"
	TermsNet60        PaymentTerms = "Net 60"

	// DefaultPaymentTerms applies when no terms are given.
	DefaultPaymentTerms = TermsNet30
)

var netPattern = regexp.MustCompile(`^net[\s-]*(\d{1,4})$`)

// Net returns "Net n" terms.
func Net(days int) PaymentTerms {
	if days == 0 {
		return TermsDueOnReceipt
	}
	return PaymentTerms(fmt.Sprintf("Net %d", days))
}

// Days returns the number of days between issue and due date.
func (p PaymentTerms) Days() (int, error) {
	s := strings.ToLower(strings.TrimSpace(string(p)))
	switch s {
	case "":
		return DefaultPaymentTerms.Days()
	case "due on receipt", "on receipt", "immediate":
		return 0, nil
	}
	m := netPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, types.NewValidationError("payment_terms", ErrInvalidPaymentTerms, "unrecognized terms %q", string(p))
	}
	days, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, types.NewValidationError("payment_terms", ErrInvalidPaymentTerms, "unrecognized terms %q", string(p))
	}
	return days, nil
}

// DueDate returns the due date for an invoice issued on issue.
func (p PaymentTerms) DueDate(issue civil.Date) (civil.Date, error) {
	days, err := p.Days()
	if err != nil {
		return civil.Date{}, err
	}
	return issue.AddDays(days), nil
}

// Validate checks the terms can be interpreted.
func (p PaymentTerms) Validate() error {
	_, err := p.Days()
	return err
}
