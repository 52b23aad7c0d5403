// ABOUTME: Tests for project resolution from credentials and explicit ids
// ABOUTME: Covers dash handling edge cases and ConfigurationError matching

package identity

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjectFromCredential(t *testing.T) {
	tests := []struct {
		credential string
		want       string
		wantErr    bool
	}{
		{"employee-myproject-secret123", "myproject", false},
		{"role-my-proj-secret", "my-proj", false},
		{"a-b-c", "b", false},
		{"nodashes", "", true},
		{"role-secret", "", true},
		{"role--secret", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.credential, func(t *testing.T) {
			got, err := ProjectFromCredential(tt.credential)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrConfiguration))
				var cfgErr *ConfigurationError
				assert.True(t, errors.As(err, &cfgErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve_ExplicitWins(t *testing.T) {
	got, err := Resolve("explicit", "employee-other-secret")
	require.NoError(t, err)
	assert.Equal(t, "explicit", got)

	// the credential is never parsed when an explicit id is present
	got, err = Resolve("explicit", "nodashes")
	require.NoError(t, err)
	assert.Equal(t, "explicit", got)
}

func TestResolve_FromCredential(t *testing.T) {
	got, err := Resolve("", "employee-myproject-secret123")
	require.NoError(t, err)
	assert.Equal(t, "myproject", got)

	_, err = Resolve("  ", "nodashes")
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = Resolve("", "")
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestNewSession(t *testing.T) {
	s, err := NewSession("https://notes.example.com/", "employee-myproject-secret123", "")
	require.NoError(t, err)

	assert.Equal(t, "myproject", s.ProjectID)
	assert.Equal(t, "https://notes.example.com", s.BaseURL)
	assert.Equal(t, "/api/projects/myproject/notes", s.ProjectPath("/notes"))
	assert.NotContains(t, s.String(), "secret123")

	_, err = NewSession("", "employee-myproject-secret123", "")
	assert.ErrorIs(t, err, ErrConfiguration)
}
