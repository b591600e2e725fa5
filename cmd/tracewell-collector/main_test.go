package main

import "testing"

func TestHasConfigArg(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected bool
	}{
		{name: "no args", args: []string{}, expected: false},
		{name: "with --config", args: []string{"--config", "config.yaml"}, expected: true},
		{name: "with -c", args: []string{"-c", "config.yaml"}, expected: true},
		{name: "with --config=value", args: []string{"--config=config.yaml"}, expected: true},
		{name: "other args only", args: []string{"--help", "--version"}, expected: false},
		{name: "config in middle", args: []string{"--verbose", "--config", "config.yaml", "--debug"}, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := hasConfigArg(tt.args); got != tt.expected {
				t.Errorf("hasConfigArg(%v) = %v, want %v", tt.args, got, tt.expected)
			}
		})
	}
}

func TestComponentsRegistersExpectedTypes(t *testing.T) {
	factories, err := components()
	if err != nil {
		t.Fatalf("components() error = %v", err)
	}
	if len(factories.Receivers) != 1 {
		t.Errorf("got %d receivers, want 1", len(factories.Receivers))
	}
	if len(factories.Processors) != 2 {
		t.Errorf("got %d processors, want 2", len(factories.Processors))
	}
	if len(factories.Exporters) != 1 {
		t.Errorf("got %d exporters, want 1", len(factories.Exporters))
	}
}
