package shared

import "fmt"

// PaymentLockKey builds redis keys guarding payment submission per document.
func PaymentLockKey(entity string, documentID int64) string {
	return fmt.Sprintf("payments:%s:%d:lock", entity, documentID)
}
