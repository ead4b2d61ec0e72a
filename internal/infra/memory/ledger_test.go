package memory

import (
	"testing"

	"contest-settlement/internal/ledger"
	"contest-settlement/internal/ledger/ledgertest"
)

func TestLedger(t *testing.T) {
	ledgertest.Run(t, func(*testing.T) ledger.Ledger { return NewLedger() })
}
