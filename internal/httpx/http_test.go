// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package httpx

import (
	"net/http"
	"testing"
)

type recordingClient struct {
	gotHeader http.Header
	response  *http.Response
	err       error
}

func (c *recordingClient) Do(req *http.Request) (*http.Response, error) {
	c.gotHeader = req.Header
	return c.response, c.err
}

func TestWithUserAgentSetsHeader(t *testing.T) {
	base := &recordingClient{response: &http.Response{StatusCode: http.StatusOK}}
	c := &WithUserAgent{BasicClient: base, UserAgent: "buildd/1.0"}

	req, err := http.NewRequest(http.MethodGet, "http://builder.example.org/?command=status", nil)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	if _, err := c.Do(req); err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if got := base.gotHeader.Get("User-Agent"); got != "buildd/1.0" {
		t.Errorf("User-Agent header = %q, want buildd/1.0", got)
	}
}

func TestWithUserAgentDelegatesResponse(t *testing.T) {
	want := &http.Response{StatusCode: http.StatusTeapot}
	base := &recordingClient{response: want}
	c := &WithUserAgent{BasicClient: base, UserAgent: "buildd/1.0"}

	req, _ := http.NewRequest(http.MethodGet, "http://builder.example.org/", nil)
	got, err := c.Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if got != want {
		t.Errorf("Do() returned a different response than the base client provided")
	}
}

func TestDefaultClientImplementsBasicClient(t *testing.T) {
	var _ BasicClient = http.DefaultClient
}
