package shared

// Finance permissions declared for RBAC.
const (
	PermFinanceInvoiceView = "finance.invoice.view"
	PermFinanceInvoiceEdit = "finance.invoice.edit"
	PermFinanceInvoiceVoid = "finance.invoice.void"
	PermFinancePayment     = "finance.payment.record"
	PermFinanceExpense     = "finance.expense.record"
	PermFinanceReportView  = "finance.report.view"
)

// FinanceScopes lists all permissions related to the finance module.
func FinanceScopes() []string {
	return []string{
		PermFinanceInvoiceView,
		PermFinanceInvoiceEdit,
		PermFinanceInvoiceVoid,
		PermFinancePayment,
		PermFinanceExpense,
		PermFinanceReportView,
	}
}
