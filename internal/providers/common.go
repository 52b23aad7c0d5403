// ABOUTME: Helpers shared by the knowledge API capability providers
// ABOUTME: Argument decoding, flexible note ids and the request-to-result call path

package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/2389/knowledge-bridge/internal/apiclient"
	"github.com/2389/knowledge-bridge/internal/identity"
	"github.com/2389/knowledge-bridge/internal/packs"
)

// API is the part of the API client the providers use.
type API interface {
	Request(ctx context.Context, path string, opts apiclient.RequestOptions) (*apiclient.Response, error)
}

// All returns the five providers in registration order.
func All(api API) []packs.Provider {
	return []packs.Provider{
		NotesProvider(api),
		SearchProvider(api),
		ProjectProvider(api),
		StatsProvider(api),
		CrossRefProvider(api),
	}
}

// noteID accepts either a JSON string or a JSON integer.
type noteID string

func (id *noteID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*id = noteID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		if _, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
			*id = noteID(n.String())
			return nil
		}
	}
	return errors.New("id must be a string or an integer")
}

// segment returns the id escaped for use in a URL path.
func (id noteID) segment() string {
	return url.PathEscape(string(id))
}

// idSchema is the schema fragment for note ids.
const idSchema = `{"type":["string","integer"],"description":"Note id"}`

// decodeInput unmarshals tool input, reporting failures as validation errors.
func decodeInput(tool string, input json.RawMessage, v any) error {
	if err := json.Unmarshal(input, v); err != nil {
		return packs.Invalid(tool, "%v", err)
	}
	return nil
}

func requireID(tool, field string, id noteID) error {
	if id == "" {
		return packs.Invalid(tool, "%s must not be empty", field)
	}
	return nil
}

// checkRange validates an optional integer argument.
func checkRange(tool, field string, v *int, min, max int) error {
	if v == nil {
		return nil
	}
	if *v < min || *v > max {
		return packs.Invalid(tool, "%s must be between %d and %d", field, min, max)
	}
	return nil
}

// checkEnum validates an optional string argument.
func checkEnum(tool, field, v string, allowed ...string) error {
	if v == "" {
		return nil
	}
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return packs.Invalid(tool, "%s must be one of %s", field, strings.Join(allowed, ", "))
}

func setInt(q url.Values, key string, v *int) {
	if v != nil {
		q.Set(key, strconv.Itoa(*v))
	}
}

func setString(q url.Values, key, v string) {
	if v != "" {
		q.Set(key, v)
	}
}

// call performs one API request and returns the provider success shape.
func call(ctx context.Context, api API, tool string, path string, opts apiclient.RequestOptions) (any, error) {
	resp, err := api.Request(ctx, path, opts)
	if err != nil {
		return nil, err
	}
	return packs.Success(tool, resp.Data()), nil
}

// projectPath builds a project-scoped API path from already escaped segments.
func projectPath(sess *identity.Session, format string, args ...any) string {
	if format == "" {
		return sess.ProjectPath("")
	}
	return sess.ProjectPath(fmt.Sprintf(format, args...))
}
