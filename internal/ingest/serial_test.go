package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGGASourceLatestBeforeAnyFix(t *testing.T) {
	g := NewGGASource(nil)
	sentence, ok := g.Latest()
	assert.False(t, ok)
	assert.Empty(t, sentence)
}

func TestGGASourceSetUpdatesLatest(t *testing.T) {
	g := NewGGASource(nil)
	const sample = "$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47"

	g.set(sample)

	got, ok := g.Latest()
	assert.True(t, ok)
	assert.Equal(t, sample, got)
}

func TestGGASourceSetOverwritesPreviousFix(t *testing.T) {
	g := NewGGASource(nil)
	g.set("$GPGGA,first*00")
	g.set("$GPGGA,second*00")

	got, ok := g.Latest()
	assert.True(t, ok)
	assert.Equal(t, "$GPGGA,second*00", got)
}
