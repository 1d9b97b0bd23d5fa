package commands

import "testing"

func TestListTransformsRunEDoesNotError(t *testing.T) {
	t.Parallel()

	cmd := NewListTransformsCommand()

	if err := cmd.RunE(cmd, nil); err != nil {
		t.Fatalf("list-transforms returned error: %v", err)
	}
}
