package raffle

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/big"
)

// Draw records the random unit picked for a raffle and how it was derived.
type Draw struct {
	Seed  string
	Value int64
	Total int64
}

// Drawer picks a unit number in [1, total].
type Drawer interface {
	Draw(raffleID, total int64) (Draw, error)
}

// FixedDrawer always returns the same value. Used by tests and manual replays.
type FixedDrawer struct {
	Value int64
}

func (d FixedDrawer) Draw(_ int64, total int64) (Draw, error) {
	if d.Value < 1 || d.Value > total {
		return Draw{}, fmt.Errorf("fixed draw %d out of range [1, %d]", d.Value, total)
	}
	return Draw{Value: d.Value, Total: total}, nil
}

const seedSize = 32

// SeedDrawer derives the draw from a fresh random seed so it can be replayed
// later with VerifyDraw.
type SeedDrawer struct{}

func (SeedDrawer) Draw(raffleID, total int64) (Draw, error) {
	if total <= 0 {
		return Draw{}, fmt.Errorf("total must be positive, got %d", total)
	}

	seed := make([]byte, seedSize)
	if _, err := rand.Read(seed); err != nil {
		return Draw{}, fmt.Errorf("read seed: %w", err)
	}

	return Draw{
		Seed:  hex.EncodeToString(seed),
		Value: drawFromSeed(seed, raffleID, total),
		Total: total,
	}, nil
}

// ComputeDraw recomputes the unit picked by a persisted seed.
func ComputeDraw(seedHex string, raffleID, total int64) (int64, error) {
	if total <= 0 {
		return 0, fmt.Errorf("total must be positive, got %d", total)
	}
	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		return 0, fmt.Errorf("decode seed: %w", err)
	}
	if len(seed) != seedSize {
		return 0, fmt.Errorf("seed must be %d bytes, got %d", seedSize, len(seed))
	}
	return drawFromSeed(seed, raffleID, total), nil
}

// VerifyDraw reports whether the stored draw matches its seed.
func VerifyDraw(d Draw, raffleID int64) bool {
	value, err := ComputeDraw(d.Seed, raffleID, d.Total)
	return err == nil && value == d.Value
}

// draw = (SHA-256(seed || raffleID || total) mod total) + 1
func drawFromSeed(seed []byte, raffleID, total int64) int64 {
	buf := make([]byte, 0, len(seed)+16)
	buf = append(buf, seed...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(raffleID))
	buf = binary.BigEndian.AppendUint64(buf, uint64(total))

	sum := sha256.Sum256(buf)
	n := new(big.Int).SetBytes(sum[:])
	n.Mod(n, big.NewInt(total))
	return n.Int64() + 1
}
