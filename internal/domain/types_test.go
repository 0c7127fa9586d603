package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestTradeHighestQty(t *testing.T) {
	now := time.Now()
	tr := Trade{
		InitialQty: 10,
		CurrentQty: 5,
		Adjustments: []Adjustment{
			{At: now, Kind: AdjustIncrease, Qty: 15, Price: 101},
			{At: now, Kind: AdjustDecrease, Qty: 20, Price: 104},
		},
	}
	if got := tr.HighestQty(); got != 25 {
		t.Errorf("HighestQty() = %d, want 25", got)
	}

	// No adjustments: the initial quantity is the highest.
	tr2 := Trade{InitialQty: 7, CurrentQty: 7}
	if got := tr2.HighestQty(); got != 7 {
		t.Errorf("HighestQty() = %d, want 7", got)
	}
}

func TestStatusConstants(t *testing.T) {
	if StatusSuccess != "success" || StatusError != "error" || StatusProcessing != "processing" {
		t.Errorf("status constants = %q/%q/%q", StatusSuccess, StatusError, StatusProcessing)
	}
	if OpBuy != "buy" || OpExit != "exit" || OpIncrease != "increase" || OpDecrease != "decrease" {
		t.Errorf("operation kinds = %q/%q/%q/%q", OpBuy, OpExit, OpIncrease, OpDecrease)
	}
}

func TestErrorWrapping(t *testing.T) {
	err := fmt.Errorf("%w for RELIANCE", ErrConflict)
	if !errors.Is(err, ErrConflict) {
		t.Error("wrapped conflict error should match ErrConflict")
	}
	if errors.Is(err, ErrValidation) {
		t.Error("conflict error should not match ErrValidation")
	}
}
