package transform

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanName(t *testing.T) {
	assert.Equal(t, "Virginia Serrano Pastor", CleanName("  Virginia Serrano Pastor (RENTA) "))
	assert.Equal(t, "Finca (Norte) Sur", CleanName("Finca (Norte) Sur"))
	assert.Equal(t, "", CleanName(""))
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Semillando Sotillo", DisplayName("Semillando  Sotillo s.c.m."))
	assert.Equal(t, "Ana", DisplayName(" Ana "))
	assert.Equal(t, "", DisplayName(""))
}

func TestPlaceholderNIF(t *testing.T) {
	for i := 0; i < 50; i++ {
		nif := PlaceholderNIF()
		assert.Len(t, nif, 9)
		n, err := strconv.Atoi(nif[:8])
		require.NoError(t, err)
		assert.Equal(t, nifLetters[n%23], nif[8], nif)
		assert.Equal(t, nif, ExtractNIF(nif))
	}
}

func TestExtractNIF(t *testing.T) {
	assert.Equal(t, "12345678z", ExtractNIF("ES 12345678z"))
	assert.Equal(t, "1234567L", ExtractNIF("1234567L"))
	assert.Equal(t, "", ExtractNIF("B12345678"))
	assert.Equal(t, "", ExtractNIF(""))
}
