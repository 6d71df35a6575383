package cmd

import (
	"testing"
)

func TestReadOnlyFlags_IncludesFormatAndNoColor(t *testing.T) {
	flags := ReadOnlyFlags()

	names := map[string]bool{}
	for _, f := range flags {
		names[f.Names()[0]] = true
	}

	if !names["format"] {
		t.Error("ReadOnlyFlags should include --format flag")
	}
	if !names["no-color"] {
		t.Error("ReadOnlyFlags should include --no-color flag")
	}
}
