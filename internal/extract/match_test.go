package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var titles = []string{"Pengadaan Laptop 2026", "Lisensi Adobe", "Renovasi Gedung"}

func TestMatchPrompt(t *testing.T) {
	p := MatchPrompt("butuh laptop", titles)
	assert.Contains(t, p, "- Pengadaan Laptop 2026\n- Lisensi Adobe\n- Renovasi Gedung")
	assert.Contains(t, p, `"butuh laptop"`)
}

func TestParseMatches(t *testing.T) {
	got, err := ParseMatches("```json\n{\"matches\": [\"Lisensi Adobe\", \"Unknown\", \"Lisensi Adobe\", 3, \"Pengadaan Laptop 2026\"]}\n```", titles)
	assert.NoError(t, err)
	assert.Equal(t, []string{"Lisensi Adobe", "Pengadaan Laptop 2026"}, got)
}

func TestParseMatches_Empty(t *testing.T) {
	got, err := ParseMatches(`{"matches": []}`, titles)
	assert.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestParseMatches_Unusable(t *testing.T) {
	for _, raw := range []string{"", "no idea", `{"titles": ["Lisensi Adobe"]}`, `{"matches": "Lisensi Adobe"}`} {
		got, err := ParseMatches(raw, titles)
		assert.Error(t, err, raw)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	}
}

func TestAugment(t *testing.T) {
	got := Augment("pengadaan laptop",
		[]string{"Title", "Nilai RKAP", "PIC", "Catatan"},
		map[string]string{"Title": "Pengadaan Laptop 2026", "Nilai RKAP": "500000000", "PIC": "  Budi ", "Catatan": ""},
	)
	assert.Equal(t, "pengadaan laptop\n\n--- Additional data from spreadsheet ---\nNilai RKAP: 500000000\nPIC: Budi", got)
}
