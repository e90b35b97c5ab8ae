package splitter

import (
	"errors"
	"math/big"
	"testing"
)

func TestSplitExactDivision(t *testing.T) {
	shares, err := Split(big.NewInt(10_000), []uint32{5000, 3000, 2000})
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	want := []int64{5000, 3000, 2000}
	for i, share := range shares {
		if share.Int64() != want[i] {
			t.Fatalf("share %d: got %d want %d", i, share.Int64(), want[i])
		}
	}
}

func TestSplitRemainderGoesToLastBucket(t *testing.T) {
	shares, err := Split(big.NewInt(9_999), []uint32{5000, 3000, 2000})
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	want := []int64{4999, 2999, 2001}
	sum := big.NewInt(0)
	for i, share := range shares {
		if share.Int64() != want[i] {
			t.Fatalf("share %d: got %d want %d", i, share.Int64(), want[i])
		}
		sum.Add(sum, share)
	}
	if sum.Int64() != 9_999 {
		t.Fatalf("shares sum to %d, want 9999", sum.Int64())
	}
}

func TestSplitConservesTotal(t *testing.T) {
	weights := []uint32{5000, 3000, 2000}
	for _, amount := range []int64{0, 1, 2, 3, 9, 10, 17, 99, 1000, 12_345_678} {
		shares, err := Split(big.NewInt(amount), weights)
		if err != nil {
			t.Fatalf("split %d: %v", amount, err)
		}
		sum := big.NewInt(0)
		for _, share := range shares {
			if share.Sign() < 0 {
				t.Fatalf("split %d produced negative share %s", amount, share)
			}
			sum.Add(sum, share)
		}
		if sum.Int64() != amount {
			t.Fatalf("split %d: shares sum to %s", amount, sum)
		}
	}
}

func TestSplitZeroAmount(t *testing.T) {
	shares, err := Split(big.NewInt(0), []uint32{5000, 3000, 2000})
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	for i, share := range shares {
		if share.Sign() != 0 {
			t.Fatalf("share %d: got %s want 0", i, share)
		}
	}
}

func TestSplitRejectsBadInput(t *testing.T) {
	if _, err := Split(nil, []uint32{5000, 5000}); !errors.Is(err, ErrNilAmount) {
		t.Fatalf("nil amount: got %v", err)
	}
	if _, err := Split(big.NewInt(-1), []uint32{5000, 5000}); !errors.Is(err, ErrNegativeAmount) {
		t.Fatalf("negative amount: got %v", err)
	}
	if _, err := Split(big.NewInt(100), nil); !errors.Is(err, ErrNoWeights) {
		t.Fatalf("no weights: got %v", err)
	}
	if _, err := Split(big.NewInt(100), []uint32{5000, 3000}); !errors.Is(err, ErrWeightSum) {
		t.Fatalf("bad weight sum: got %v", err)
	}
}

func TestPortion(t *testing.T) {
	if got := Portion(big.NewInt(1000), 15, 1000); got.Int64() != 15 {
		t.Fatalf("fee portion: got %d want 15", got.Int64())
	}
	if got := Portion(big.NewInt(1000), 5, 1000); got.Int64() != 5 {
		t.Fatalf("cashback portion: got %d want 5", got.Int64())
	}
	// Floor division.
	if got := Portion(big.NewInt(99), 15, 1000); got.Int64() != 1 {
		t.Fatalf("floor portion: got %d want 1", got.Int64())
	}
	if got := Portion(nil, 15, 1000); got.Sign() != 0 {
		t.Fatalf("nil portion: got %s want 0", got)
	}
}
