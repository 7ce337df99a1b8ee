package docmath

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveStatusTable(t *testing.T) {
	cases := []struct {
		name      string
		confirmed bool
		paid      string
		total     string
		delivery  DeliveryState
		want      Status
	}{
		{"unsaved draft", false, "0", "264", DeliveryNotRequired, StatusDraft},
		{"confirmed unpaid", true, "0", "264", DeliveryNotRequired, StatusConfirmed},
		{"partial payment", true, "100", "264", DeliveryPending, StatusPartiallyPaid},
		{"paid delivery pending", true, "264", "264", DeliveryPending, StatusPaid},
		{"paid no delivery leg", true, "264", "264", DeliveryNotRequired, StatusPaid},
		{"paid and delivered", true, "264", "264", DeliveryCompleted, StatusDelivered},
		{"overshoot treated as paid", true, "264", "200", DeliveryNotRequired, StatusPaid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DeriveStatus(tc.confirmed, dec(tc.paid), dec(tc.total), tc.delivery)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestZeroPaymentNeverDelivered(t *testing.T) {
	// A fresh confirmed document with no delivery leg must read as awaiting
	// payment, not delivered.
	got := DeriveStatus(true, dec("0"), dec("500"), DeliveryNotRequired)
	assert.Equal(t, StatusConfirmed, got)
}

func TestStatusPredicates(t *testing.T) {
	assert.True(t, StatusDraft.Editable())
	assert.False(t, StatusConfirmed.Editable())
	assert.True(t, StatusDelivered.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusPaid.Terminal())
}
