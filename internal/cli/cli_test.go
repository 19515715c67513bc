package cli

import (
	"bytes"
	"flag"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gpsjwt "github.com/bionicotaku/lingo-utils-gpsjwt"
)

func TestMetadata_OnlySetFlagsApply(t *testing.T) {
	var meta Metadata
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	meta.Register(fs)

	require.NoError(t, fs.Parse([]string{"-accuracy", "5", "-heading=270.5"}))

	claim := gpsjwt.NewLocationClaim(1, 2)
	meta.Apply(&claim)
	require.NotNil(t, claim.Accuracy)
	assert.Equal(t, 5.0, *claim.Accuracy)
	require.NotNil(t, claim.Heading)
	assert.Equal(t, 270.5, *claim.Heading)
	assert.Nil(t, claim.Altitude)
	assert.Nil(t, claim.Speed)
	assert.Equal(t, "5", meta.Accuracy.String())
	assert.Equal(t, "", meta.Speed.String())
}

func TestOptionalFloat_RejectsText(t *testing.T) {
	var meta Metadata
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	meta.Register(fs)

	assert.Error(t, fs.Parse([]string{"-speed", "fast"}))
	assert.Nil(t, meta.Speed.Ptr())
}

func TestNewLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, false)
	assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())
	logger.Debug().Msg("hidden")
	assert.Empty(t, buf.String())

	logger = NewLogger(&buf, true)
	assert.Equal(t, zerolog.DebugLevel, logger.GetLevel())
	logger.Debug().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}
