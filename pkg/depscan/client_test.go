// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package depscan

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectEcosystem(t *testing.T) {
	assert.Equal(t, "pypi", DetectEcosystem("api/requirements.txt"))
	assert.Equal(t, "npm", DetectEcosystem("web/package.json"))
	assert.Equal(t, "maven", DetectEcosystem("svc/pom.xml"))
	assert.Equal(t, "", DetectEcosystem("Makefile"))
}

func TestHTTPScannerScan(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/scan", r.URL.Path)
		var req ScanRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "pypi", req.Ecosystem)

		_ = json.NewEncoder(w).Encode(ScanResponse{
			Advisories: []Advisory{{
				ID: "GHSA-xxxx", Package: "flask", Version: "1.0",
				Severity: "high", Summary: "example", FixedIn: "2.0",
			}},
			Scanned: 1,
		})
	}))
	defer srv.Close()

	s := NewHTTPScanner(srv.URL)
	resp, err := s.Scan(context.Background(), ScanRequest{
		ManifestPath: "requirements.txt",
		Ecosystem:    "pypi",
		Content:      "flask==1.0\n",
	})
	require.NoError(t, err)
	require.Len(t, resp.Advisories, 1)
	assert.Equal(t, "flask", resp.Advisories[0].Package)
}

func TestHTTPScannerErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	s := NewHTTPScanner(srv.URL)
	_, err := s.Scan(context.Background(), ScanRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
