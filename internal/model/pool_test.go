package model

import (
	"errors"
	"math/big"
	"testing"
)

func validSnapshot() PoolSnapshot {
	return PoolSnapshot{
		Pool:        "0x1111111111111111111111111111111111111111",
		TokenA:      "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		TokenB:      "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
		ReserveA:    big.NewInt(1000),
		ReserveB:    big.NewInt(500),
		TotalSupply: big.NewInt(100),
	}
}

func TestPoolSnapshotValidate(t *testing.T) {
	if err := validSnapshot().Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	zeroSupply := validSnapshot()
	zeroSupply.TotalSupply = big.NewInt(0)
	if err := zeroSupply.Validate(); !errors.Is(err, ErrZeroSupply) {
		t.Fatalf("expected ErrZeroSupply, got %v", err)
	}

	zeroA := validSnapshot()
	zeroA.ReserveA = big.NewInt(0)
	if err := zeroA.Validate(); !errors.Is(err, ErrZeroReserve) {
		t.Fatalf("expected ErrZeroReserve for reserve a, got %v", err)
	}

	zeroB := validSnapshot()
	zeroB.ReserveB = nil
	if err := zeroB.Validate(); !errors.Is(err, ErrZeroReserve) || !errors.Is(err, ErrInvalidSnapshot) {
		t.Fatalf("expected ErrZeroReserve for reserve b, got %v", err)
	}
}

func TestPoolSnapshotSide(t *testing.T) {
	snap := validSnapshot()
	side, ok := snap.Side("0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB")
	if !ok {
		t.Fatalf("expected token b to be found")
	}
	if side.Reserve.Int64() != 500 || side.CounterReserve.Int64() != 1000 || side.Counter != snap.TokenA {
		t.Fatalf("side mismatch: %+v", side)
	}
	if _, ok := snap.Side("0xcccccccccccccccccccccccccccccccccccccccc"); ok {
		t.Fatalf("unexpected side for foreign token")
	}
}
