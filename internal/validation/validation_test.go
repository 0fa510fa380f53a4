package validation

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wabadash/internal/errors"
	"wabadash/internal/models"
	"wabadash/pkg/whatsapp/types"
)

func TestValidatePhoneNumber(t *testing.T) {
	tests := []struct {
		name        string
		phone       string
		expectError bool
	}{
		{name: "plain digits", phone: "15551234567"},
		{name: "international format", phone: "+44 7911 123456"},
		{name: "dashes and parentheses", phone: "+1 (555) 123-4567"},
		{name: "empty", phone: "", expectError: true},
		{name: "whitespace", phone: "   ", expectError: true},
		{name: "too short", phone: "+123", expectError: true},
		{name: "too long", phone: strings.Repeat("1", 21), expectError: true},
		{name: "letters", phone: "1555abc4567", expectError: true},
		{name: "whatsapp chat suffix", phone: "15551234567@c.us", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePhoneNumber(tt.phone)
			if tt.expectError {
				require.Error(t, err)
				assert.Equal(t, errors.ErrCodeInvalidInput, errors.GetCode(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestNormalizePhoneNumber(t *testing.T) {
	assert.Equal(t, "15551234567", NormalizePhoneNumber("+1 (555) 123-4567"))
	assert.Equal(t, "", NormalizePhoneNumber("+"))
}

func validDefinition() types.TemplateDefinition {
	return types.TemplateDefinition{
		Name:     "order_update",
		Category: "UTILITY",
		Language: "en_US",
		Components: []types.TemplateComponent{
			{Type: "BODY", Text: "Your order {{1}} has shipped"},
		},
	}
}

func TestValidator_TemplateDefinition(t *testing.T) {
	v := New()

	tests := []struct {
		name      string
		mutate    func(d *types.TemplateDefinition)
		wantField string
	}{
		{name: "valid", mutate: func(d *types.TemplateDefinition) {}},
		{name: "uppercase name", mutate: func(d *types.TemplateDefinition) { d.Name = "Order Update" }, wantField: "Name"},
		{name: "name too long", mutate: func(d *types.TemplateDefinition) { d.Name = strings.Repeat("a", 513) }, wantField: "Name"},
		{name: "unknown category", mutate: func(d *types.TemplateDefinition) { d.Category = "PROMO" }, wantField: "Category"},
		{name: "missing language", mutate: func(d *types.TemplateDefinition) { d.Language = "" }, wantField: "Language"},
		{name: "no components", mutate: func(d *types.TemplateDefinition) { d.Components = nil }, wantField: "Components"},
		{name: "bad component type", mutate: func(d *types.TemplateDefinition) { d.Components[0].Type = "FOOTNOTE" }, wantField: "Type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := validDefinition()
			tt.mutate(&def)

			err := v.Struct(&def)
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, errors.ErrCodeValidationFailed, errors.GetCode(err))
			assert.Contains(t, errors.GetUserMessage(err), tt.wantField)
		})
	}
}

func TestValidator_Settings(t *testing.T) {
	v := New()

	assert.NoError(t, v.Struct(&models.APISettings{AccessToken: "token", APIVersion: "v23.0", BusinessID: "123"}))
	assert.Error(t, v.Struct(&models.APISettings{}))
	assert.Error(t, v.Struct(&models.APISettings{AccessToken: "token", APIVersion: "23.0"}))
	assert.Error(t, v.Struct(&models.APISettings{AccessToken: "token", BusinessID: "abc"}))
}

func TestValidator_WAPhoneTag(t *testing.T) {
	type request struct {
		To string `validate:"required,wa_phone"`
	}
	v := New()

	assert.NoError(t, v.Struct(&request{To: "+1 555 123 4567"}))
	err := v.Struct(&request{To: "12"})
	require.Error(t, err)
	assert.Contains(t, errors.GetUserMessage(err), "phone number")
}

func TestValidateHTTPRequestSize(t *testing.T) {
	req := httptest.NewRequest("POST", "/webhook/whatsapp", strings.NewReader("12345"))
	assert.NoError(t, ValidateHTTPRequestSize(req, 10))
	assert.Error(t, ValidateHTTPRequestSize(req, 3))
}

func TestValidateNumericRange(t *testing.T) {
	assert.NoError(t, ValidateNumericRange(5, "port", 1, 10))
	assert.Error(t, ValidateNumericRange(0, "port", 1, 10))
	assert.Error(t, ValidateNumericRange(11, "port", 1, 10))
}

func TestValidateTimeout(t *testing.T) {
	assert.NoError(t, ValidateTimeout(30, "poll interval"))
	assert.Error(t, ValidateTimeout(0, "poll interval"))
	assert.Error(t, ValidateTimeout(3601, "poll interval"))
}
