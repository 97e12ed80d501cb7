package main

import "testing"

func TestBuildRootCmdIncludesServe(t *testing.T) {
	cmd := buildRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	if !names["serve"] {
		t.Fatalf("expected subcommand %q to be registered", "serve")
	}
}

func TestBuildServeCmdFlags(t *testing.T) {
	cmd := buildServeCmd()

	configFlag := cmd.Flags().Lookup("config")
	if configFlag == nil {
		t.Fatal("expected --config flag to be registered")
	}
	if configFlag.Shorthand != "c" {
		t.Errorf("expected --config shorthand 'c', got %q", configFlag.Shorthand)
	}
	if configFlag.DefValue != "bridge.yaml" {
		t.Errorf("expected default config path 'bridge.yaml', got %q", configFlag.DefValue)
	}

	debugFlag := cmd.Flags().Lookup("debug")
	if debugFlag == nil {
		t.Fatal("expected --debug flag to be registered")
	}
	if debugFlag.Shorthand != "d" {
		t.Errorf("expected --debug shorthand 'd', got %q", debugFlag.Shorthand)
	}
}
