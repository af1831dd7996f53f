package kitty

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCombineSelectsPerBit(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for n := 0; n < 200; n++ {
		var g1, g2, sel Genome
		rng.Read(g1[:])
		rng.Read(g2[:])
		rng.Read(sel[:])

		child := Combine(g1, g2, sel)
		for i := range child {
			want := (sel[i] & g1[i]) | (^sel[i] & g2[i])
			require.Equal(t, want, child[i], "byte %d", i)
		}
	}
}

func TestCombineSelectorExtremes(t *testing.T) {
	g1 := Genome{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	g2 := Genome{0xF0, 0xE0, 0xD0, 0xC0, 0xB0, 0xA0, 0x90, 0x80, 0x70, 0x60, 0x50, 0x40, 0x30, 0x20, 0x10, 0x00}

	var ones, zeros Genome
	for i := range ones {
		ones[i] = 0xFF
	}
	assert.Equal(t, g1, Combine(g1, g2, ones))
	assert.Equal(t, g2, Combine(g1, g2, zeros))

	var mixed Genome
	mixed[0] = 0x0F
	assert.Equal(t, byte(0xF1), Combine(g1, g2, mixed)[0])
}

func TestMaxID(t *testing.T) {
	assert.Equal(t, ID(255), MaxID(8))
	assert.Equal(t, ID(65535), MaxID(16))
	assert.Equal(t, ID(4294967295), MaxID(32))
	assert.Equal(t, ID(^uint64(0)), MaxID(64))
}

func TestGenomeRoundTripHex(t *testing.T) {
	g := Genome{0xde, 0xad, 0xbe, 0xef}
	parsed, err := ParseGenome(g.String())
	require.NoError(t, err)
	assert.Equal(t, g, parsed)

	_, err = ParseGenome("abcd")
	assert.Error(t, err)
}

func TestParseAccount(t *testing.T) {
	tests := []struct {
		raw     string
		want    Account
		wantErr bool
	}{
		{raw: "alice", want: "alice"},
		{raw: "  Alice ", want: "alice"},
		{raw: "BOB", want: "bob"},
		{raw: "Ärger", want: "ärger"},
		{raw: "", wantErr: true},
		{raw: "two words", wantErr: true},
		{raw: string([]byte{0xff, 0xfe}), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.raw), func(t *testing.T) {
			got, err := ParseAccount(tt.raw)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidAccount)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCode(t *testing.T) {
	assert.Equal(t, CodeOK, Code(nil))
	assert.Equal(t, CodeNotOwner, Code(fmt.Errorf("transfer: %w", ErrNotOwner)))
	assert.Equal(t, CodeInternal, Code(fmt.Errorf("disk on fire")))
	assert.True(t, IsDomain(ErrSameParent))
	assert.False(t, IsDomain(fmt.Errorf("boom")))
}
