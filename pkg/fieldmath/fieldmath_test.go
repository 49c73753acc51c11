package fieldmath

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func curve25519() *big.Int {
	l := new(big.Int).Lsh(big.NewInt(1), 255)
	return l.Sub(l, big.NewInt(19))
}

func TestApplyModular(t *testing.T) {
	seven := big.NewInt(7)
	tests := []struct {
		op       byte
		a, b     int64
		expected int64
	}{
		{'+', 5, 4, 2},
		{'-', 2, 5, 4},
		{'*', 3, 5, 1},
		{'@', 3, 6, 1},
		{'@', 2, 0, 1},
		{'/', 1, 3, 5},
		{'/', 6, 2, 3},
	}
	for _, tt := range tests {
		got, err := Apply(tt.op, big.NewInt(tt.a), big.NewInt(tt.b), seven)
		require.NoError(t, err, "%d %c %d", tt.a, tt.op, tt.b)
		require.Equal(t, tt.expected, got.Int64(), "%d %c %d", tt.a, tt.op, tt.b)
	}
}

func TestApplyWrapsLargeLiterals(t *testing.T) {
	l := curve25519()
	a := new(big.Int).Sub(l, big.NewInt(1))
	got, err := Apply('+', a, big.NewInt(3), l)
	require.NoError(t, err)
	require.Equal(t, int64(2), got.Int64())
}

func TestApplyUnbounded(t *testing.T) {
	got, err := Apply('@', big.NewInt(2), big.NewInt(255), nil)
	require.NoError(t, err)
	got, err = Apply('-', got, big.NewInt(19), nil)
	require.NoError(t, err)
	require.Equal(t, 0, got.Cmp(curve25519()))

	got, err = Apply('/', big.NewInt(7), big.NewInt(2), nil)
	require.NoError(t, err)
	require.Equal(t, int64(3), got.Int64())
}

func TestApplyErrors(t *testing.T) {
	seven := big.NewInt(7)
	_, err := Apply('/', big.NewInt(1), big.NewInt(14), seven)
	require.ErrorIs(t, err, ErrDivideByZero)

	_, err = Apply('/', big.NewInt(1), big.NewInt(2), big.NewInt(8))
	require.ErrorIs(t, err, ErrNotInvertible)

	_, err = Apply('-', big.NewInt(1), big.NewInt(2), nil)
	require.ErrorIs(t, err, ErrNegativeResult)

	_, err = Apply('/', big.NewInt(1), big.NewInt(0), nil)
	require.ErrorIs(t, err, ErrDivideByZero)

	_, err = Apply('%', big.NewInt(1), big.NewInt(2), seven)
	require.ErrorIs(t, err, ErrUnknownOp)
}

func TestBits(t *testing.T) {
	tests := []struct {
		limit    *big.Int
		bits     int
		bytes    int
		workBits int
	}{
		{big.NewInt(2), 8, 1, 8},
		{big.NewInt(7), 8, 1, 8},
		{big.NewInt(127), 8, 1, 8},
		{big.NewInt(251), 8, 1, 16},
		{big.NewInt(256), 8, 1, 16},
		{big.NewInt(257), 16, 2, 16},
		{curve25519(), 256, 32, 256},
	}
	for _, tt := range tests {
		require.Equal(t, tt.bits, Bits(tt.limit), "Bits(%s)", tt.limit)
		require.Equal(t, tt.bytes, Bytes(tt.limit), "Bytes(%s)", tt.limit)
		require.Equal(t, tt.workBits, WorkBits(tt.limit), "WorkBits(%s)", tt.limit)
	}
}
