package recurring

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"

	"github.com/xraph/invoicing/id"
	"github.com/xraph/invoicing/invoice"
)

// NextOccurrence returns the date of boundary cycle for a schedule starting
// on start. Month-based frequencies keep the start day and clamp it to the
// last day of shorter months: a monthly schedule starting 2024-01-31 bills on
// 01-31, 02-29, 03-31, 04-30.
func NextOccurrence(start civil.Date, freq Frequency, cycle int) (civil.Date, error) {
	if cycle < 0 {
		return civil.Date{}, fmt.Errorf("%w: %d", ErrInvalidCycle, cycle)
	}
	switch freq {
	case FrequencyWeekly:
		return start.AddDays(7 * cycle), nil
	case FrequencyMonthly:
		return addMonths(start, cycle), nil
	case FrequencyQuarterly:
		return addMonths(start, 3*cycle), nil
	case FrequencyYearly:
		return addMonths(start, 12*cycle), nil
	}
	return civil.Date{}, fmt.Errorf("%w: %q", ErrInvalidFrequency, freq)
}

func addMonths(d civil.Date, n int) civil.Date {
	m := int(d.Month) - 1 + n
	year := d.Year + m/12
	month := time.Month(m%12 + 1)
	day := d.Day
	if last := daysIn(year, month); day > last {
		day = last
	}
	return civil.Date{Year: year, Month: month, Day: day}
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// DueDate returns the due date of an invoice issued on issue under terms.
func DueDate(issue civil.Date, terms invoice.PaymentTerms) (civil.Date, error) {
	return terms.DueDate(issue)
}

// DueBoundaries lists the boundaries from c.NextCycle whose date is on or
// before asOf. limit caps the result when positive; the remainder stays due
// for the next run.
func DueBoundaries(c *Config, asOf civil.Date, limit int) ([]Boundary, error) {
	var out []Boundary
	for cycle := c.NextCycle; limit <= 0 || len(out) < limit; cycle++ {
		date, err := NextOccurrence(c.StartDate, c.Frequency, cycle)
		if err != nil {
			return nil, err
		}
		if date.After(asOf) {
			break
		}
		out = append(out, Boundary{Cycle: cycle, Date: date})
	}
	return out, nil
}

// IsDue reports whether the configuration has a boundary on or before asOf.
func (c *Config) IsDue(asOf civil.Date) bool {
	return c.Status == StatusActive && !c.NextInvoiceDate.After(asOf)
}

// Advance records that boundary b was billed by invoiceID and moves the
// schedule to the following cycle.
func (c *Config) Advance(b Boundary, invoiceID id.InvoiceID) error {
	next, err := NextOccurrence(c.StartDate, c.Frequency, b.Cycle+1)
	if err != nil {
		return err
	}
	c.NextCycle = b.Cycle + 1
	c.NextInvoiceDate = next
	c.LastInvoiceDate = b.Date
	c.LastInvoiceID = invoiceID
	return nil
}
