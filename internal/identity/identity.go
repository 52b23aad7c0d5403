// ABOUTME: Resolves which project the bridge acts on and holds the per-session context
// ABOUTME: An explicit project id wins, otherwise it is parsed out of the role-project-secret credential

package identity

import (
	"errors"
	"fmt"
	"strings"
)

// ErrConfiguration is the sentinel wrapped by every ConfigurationError.
var ErrConfiguration = errors.New("configuration error")

// ConfigurationError reports an identity that cannot be resolved at startup.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// ProjectFromCredential extracts the project from a credential shaped like
// role-project-secret. The project is everything between the first and the
// last '-', so it may itself contain dashes.
func ProjectFromCredential(credential string) (string, error) {
	first := strings.Index(credential, "-")
	if first < 0 {
		return "", &ConfigurationError{Reason: "credential has no '-' separated project segment"}
	}
	last := strings.LastIndex(credential, "-")
	if last == first {
		return "", &ConfigurationError{Reason: "credential needs role, project and secret segments"}
	}
	project := credential[first+1 : last]
	if project == "" {
		return "", &ConfigurationError{Reason: "credential has an empty project segment"}
	}
	return project, nil
}

// Resolve returns the project id to use. A non-empty explicit id is returned
// as is and the credential is not inspected.
func Resolve(explicitProjectID, credential string) (string, error) {
	if id := strings.TrimSpace(explicitProjectID); id != "" {
		return id, nil
	}
	if credential == "" {
		return "", &ConfigurationError{Reason: "no project id configured and no credential to derive it from"}
	}
	return ProjectFromCredential(credential)
}

// Session is the resolved context every provider call runs against.
// It is created once and never mutated.
type Session struct {
	ProjectID  string
	BaseURL    string
	Credential string
}

// NewSession resolves the project and returns the session context.
func NewSession(baseURL, credential, explicitProjectID string) (*Session, error) {
	project, err := Resolve(explicitProjectID, credential)
	if err != nil {
		return nil, err
	}
	if baseURL == "" {
		return nil, &ConfigurationError{Reason: "base URL is empty"}
	}
	return &Session{
		ProjectID:  project,
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Credential: credential,
	}, nil
}

// ProjectPath returns the API path for the session's project joined with suffix.
func (s *Session) ProjectPath(suffix string) string {
	return fmt.Sprintf("/api/projects/%s%s", s.ProjectID, suffix)
}

// String never includes the credential.
func (s *Session) String() string {
	return fmt.Sprintf("project=%s base_url=%s", s.ProjectID, s.BaseURL)
}
