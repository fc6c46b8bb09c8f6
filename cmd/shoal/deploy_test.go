package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestPromptUpstream_Default(t *testing.T) {
	var out bytes.Buffer

	got := promptUpstream(strings.NewReader("\n"), &out)
	if got != defaultUpstream {
		t.Errorf("expected default %q, got %q", defaultUpstream, got)
	}
	if !strings.Contains(out.String(), defaultUpstream) {
		t.Errorf("prompt should document the default, got: %q", out.String())
	}
}

func TestPromptUpstream_EOF(t *testing.T) {
	var out bytes.Buffer

	got := promptUpstream(strings.NewReader(""), &out)
	if got != defaultUpstream {
		t.Errorf("expected default on EOF, got %q", got)
	}
}

func TestPromptUpstream_Explicit(t *testing.T) {
	var out bytes.Buffer

	got := promptUpstream(strings.NewReader("  http://10.0.0.5:8001 \n"), &out)
	if got != "http://10.0.0.5:8001" {
		t.Errorf("expected trimmed input, got %q", got)
	}
}
