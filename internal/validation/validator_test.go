package validation_test

import (
	"errors"
	"testing"
	"time"

	domainerrors "github.com/listenupapp/livewatch/internal/errors"
	"github.com/listenupapp/livewatch/internal/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type server struct {
	Port       int      `yaml:"port" validate:"min=1,max=65535"`
	Extensions []string `yaml:"extensions" validate:"dive,required,excludesall=./"`
}

type settings struct {
	Server   server        `yaml:"livereload"`
	Debounce time.Duration `yaml:"debounce" validate:"gt=0"`
	Mode     string        `yaml:"mode" validate:"oneof=dev prod"`
}

func TestValidator_ValidateSuccess(t *testing.T) {
	v := validation.New()

	err := v.Validate(settings{
		Server:   server{Port: 35729, Extensions: []string{"js", "css"}},
		Debounce: 200 * time.Millisecond,
		Mode:     "dev",
	})
	assert.NoError(t, err)
}

func TestValidator_ValidateErrors(t *testing.T) {
	v := validation.New()

	tests := []struct {
		name      string
		in        settings
		wantField string
		wantMsg   string
	}{
		{
			name:      "port out of range",
			in:        settings{Server: server{Port: 70000}, Debounce: time.Second, Mode: "dev"},
			wantField: "livereload.port",
			wantMsg:   "must not exceed 65535",
		},
		{
			name:      "zero debounce",
			in:        settings{Server: server{Port: 1}, Mode: "dev"},
			wantField: "debounce",
			wantMsg:   "must be greater than 0",
		},
		{
			name:      "extension with dot",
			in:        settings{Server: server{Port: 1, Extensions: []string{".js"}}, Debounce: time.Second, Mode: "dev"},
			wantField: "livereload.extensions[0]",
			wantMsg:   "must not contain any of: ./",
		},
		{
			name:      "unknown mode",
			in:        settings{Server: server{Port: 1}, Debounce: time.Second, Mode: "staging"},
			wantField: "mode",
			wantMsg:   "must be one of: dev prod",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.in)
			require.Error(t, err)

			var domainErr *domainerrors.Error
			require.True(t, errors.As(err, &domainErr))
			assert.Equal(t, domainerrors.CodeValidation, domainErr.Code)

			details, ok := domainErr.Details.(map[string]string)
			require.True(t, ok)
			assert.Equal(t, tt.wantMsg, details[tt.wantField])
		})
	}
}
