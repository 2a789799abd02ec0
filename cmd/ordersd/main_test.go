package main

import (
	"testing"
	"time"
)

func TestResolveGenesisPath(t *testing.T) {
	env := map[string]string{}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}

	if got := resolveGenesisPath("", "cfg.yaml", lookup); got != "cfg.yaml" {
		t.Fatalf("expected config path, got %q", got)
	}
	env[genesisPathEnv] = " env.yaml "
	if got := resolveGenesisPath("", "cfg.yaml", lookup); got != "env.yaml" {
		t.Fatalf("expected env path, got %q", got)
	}
	if got := resolveGenesisPath("flag.yaml", "cfg.yaml", lookup); got != "flag.yaml" {
		t.Fatalf("expected flag path, got %q", got)
	}
}

func TestSeconds(t *testing.T) {
	if seconds(15) != 15*time.Second {
		t.Fatalf("unexpected duration %v", seconds(15))
	}
	if seconds(0) != 0 {
		t.Fatalf("zero must stay zero")
	}
}
