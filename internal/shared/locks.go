package shared

import "fmt"

// JobLockKey builds redis keys guarding single-runner background jobs.
func JobLockKey(job string) string {
	return fmt.Sprintf("odyssey:jobs:%s:lock", job)
}

// CustomerLedgerLockKey names the advisory lock partition of a customer ledger.
func CustomerLedgerLockKey(customerID int64) string {
	return fmt.Sprintf("customer_ledger:%d", customerID)
}
