// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package contract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateCodePayload(t *testing.T) {
	assert.True(t, ValidateCodePayload("def f(): pass").OK)

	t.Setenv("SCALPEL_SOFT_LIMIT_BYTES", "8")
	res := ValidateCodePayload("0123456789")
	assert.False(t, res.OK)
	assert.NotEmpty(t, res.Message)
}

func TestValidateRequestID(t *testing.T) {
	assert.True(t, ValidateRequestID("").OK, "empty means the dispatcher assigns one")
	assert.True(t, ValidateRequestID("req-123").OK)
	assert.False(t, ValidateRequestID(strings.Repeat("a", RequestIDMaxBytes+1)).OK)
	assert.False(t, ValidateRequestID("bad\nid").OK)
}
