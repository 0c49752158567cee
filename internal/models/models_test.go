package models

import "testing"

func TestBookingRequestTableName(t *testing.T) {
	var r BookingRequest
	if got := r.TableName(); got != "requests" {
		t.Errorf("TableName() = %q, want %q", got, "requests")
	}
}
