// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package output

import (
	"bytes"
	stderrors "errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONTo(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, JSONTo(&buf, map[string]int{"count": 3}))
	assert.Contains(t, buf.String(), "\"count\": 3")
}

func TestJSONCompactToSingleLine(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, JSONCompactTo(&buf, map[string]string{"a": "b"}))
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
}

func TestJSONErrorTo(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, JSONErrorTo(&buf, stderrors.New("boom")))
	assert.Contains(t, buf.String(), "\"error\": \"boom\"")
}

func TestJSONEncodingFailure(t *testing.T) {
	var buf bytes.Buffer
	err := JSONTo(&buf, make(chan int))
	assert.Error(t, err)
}
