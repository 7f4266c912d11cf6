package transaction_test

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain guards against a transaction leaking a goroutine past its
// own Terminated state — most tests here drive a machine to
// Terminated (directly or via a real, short timer) before returning;
// the Timer 100 test leaves its IST in Proceeding with no timer
// pending. Nothing should still be running once the suite exits.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
