package invoice

import "cloud.google.com/go/civil"

// Reclassify marks every pending invoice whose due date is before today as
// overdue and returns the ones it changed. It only looks at each invoice's
// own due date, so it is idempotent and independent of slice order.
func Reclassify(invoices []*Invoice, today civil.Date) []*Invoice {
	var changed []*Invoice
	for _, inv := range invoices {
		if inv == nil || !inv.IsPastDue(today) {
			continue
		}
		if err := inv.MarkOverdue(today); err == nil {
			changed = append(changed, inv)
		}
	}
	return changed
}
