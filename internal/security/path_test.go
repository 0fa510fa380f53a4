package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateFilePath(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"relative file", "wabadash.db", false},
		{"nested relative", "data/wabadash.db", false},
		{"absolute", "/var/lib/wabadash/wabadash.db", false},
		{"dotted file name", "backup..db", false},
		{"empty", "", true},
		{"traversal", "../etc/passwd", true},
		{"nested traversal", "data/../../secret", true},
		{"nul byte", "data\x00.db", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFilePath(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateFilePathWithBase(t *testing.T) {
	assert.NoError(t, ValidateFilePathWithBase("config.json", "/etc/wabadash"))
	assert.Error(t, ValidateFilePathWithBase("/etc/passwd", "/etc/wabadash"))
	assert.Error(t, ValidateFilePathWithBase("../passwd", "/etc/wabadash"))
}
