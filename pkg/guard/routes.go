package guard

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/tenantgate/pkg/rbac"
	"gopkg.in/yaml.v3"
)

// RouteKind classifies what a route requires before it is served
type RouteKind string

const (
	// RoutePublic routes are served without looking at the credential
	RoutePublic RouteKind = "public"
	// RouteProtected routes need any valid credential
	RouteProtected RouteKind = "protected"
	// RouteWorkspace routes need a resolved workspace and role
	RouteWorkspace RouteKind = "workspace"
)

// WorkspaceVar is the path variable naming the target workspace
const WorkspaceVar = "workspaceId"

func (k RouteKind) valid() bool {
	switch k {
	case RoutePublic, RouteProtected, RouteWorkspace:
		return true
	}
	return false
}

// Rule is one entry of the route table. Exactly one of Path (a gorilla/mux
// path template) or Prefix must be set.
type Rule struct {
	Path       string          `yaml:"path,omitempty"`
	Prefix     string          `yaml:"prefix,omitempty"`
	Methods    []string        `yaml:"methods,omitempty"`
	Kind       RouteKind       `yaml:"kind"`
	API        bool            `yaml:"api"`
	Permission rbac.Permission `yaml:"permission,omitempty"`
}

func (r Rule) String() string {
	pattern := r.Path
	if pattern == "" {
		pattern = r.Prefix + "*"
	}
	methods := "*"
	if len(r.Methods) > 0 {
		methods = strings.Join(r.Methods, ",")
	}
	return fmt.Sprintf("%s %s", methods, pattern)
}

func (r Rule) validate() error {
	if (r.Path == "") == (r.Prefix == "") {
		return fmt.Errorf("route %s: exactly one of path or prefix is required", r)
	}
	if !r.Kind.valid() {
		return fmt.Errorf("route %s: invalid kind %q", r, r.Kind)
	}
	if r.Permission != "" {
		if _, err := rbac.ParsePermission(string(r.Permission)); err != nil {
			return fmt.Errorf("route %s: %w", r, err)
		}
		if r.Kind != RouteWorkspace {
			return fmt.Errorf("route %s: only workspace routes can require a permission", r)
		}
	}
	return nil
}

// Route is the classification of one request
type Route struct {
	Rule Rule

	// WorkspaceID is the raw workspace path variable, if the rule has one
	WorkspaceID string

	// Matched is false when no rule matched and the fallback applied
	Matched bool
}

type compiledRule struct {
	rule  Rule
	route *mux.Route
}

// RouteTable is an ordered rule set; the first matching rule wins. Paths no
// rule matches are treated as protected, which fails closed.
type RouteTable struct {
	rules []compiledRule
}

// NewRouteTable compiles rules in order
func NewRouteTable(rules ...Rule) (*RouteTable, error) {
	t := &RouteTable{}
	for _, rule := range rules {
		if err := t.Add(rule); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Add appends a rule. Business handlers use this to declare the permission
// each of their operations needs.
func (t *RouteTable) Add(rule Rule) error {
	if err := rule.validate(); err != nil {
		return err
	}

	route := mux.NewRouter().NewRoute()
	if rule.Path != "" {
		route = route.Path(rule.Path)
	} else {
		prefix := rule.Prefix
		route = route.MatcherFunc(func(r *http.Request, _ *mux.RouteMatch) bool {
			return hasPathPrefix(r.URL.Path, prefix)
		})
	}
	if len(rule.Methods) > 0 {
		route = route.Methods(rule.Methods...)
	}
	if err := route.GetError(); err != nil {
		return fmt.Errorf("route %s: %w", rule, err)
	}

	t.rules = append(t.rules, compiledRule{rule: rule, route: route})
	return nil
}

// Rules returns the rules in evaluation order
func (t *RouteTable) Rules() []Rule {
	out := make([]Rule, len(t.rules))
	for i, c := range t.rules {
		out[i] = c.rule
	}
	return out
}

// Classify finds the rule governing method and p. The path is cleaned
// first, so dot segments cannot move a request under a public prefix.
func (t *RouteTable) Classify(method, p string) Route {
	p = cleanPath(p)
	req := &http.Request{Method: method, URL: &url.URL{Path: p}}
	for _, c := range t.rules {
		var match mux.RouteMatch
		if c.route.Match(req, &match) {
			return Route{Rule: c.rule, WorkspaceID: match.Vars[WorkspaceVar], Matched: true}
		}
	}
	return Route{Rule: Rule{Prefix: "/", Kind: RouteProtected, API: isAPIPath(p)}}
}

// hasPathPrefix matches whole segments: /sign-in covers /sign-in and
// /sign-in/x but not /sign-inside
func hasPathPrefix(p, prefix string) bool {
	base := strings.TrimSuffix(prefix, "/")
	return p == prefix || p == base || strings.HasPrefix(p, base+"/")
}

// cleanPath returns the canonical form of p, keeping a trailing slash
func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if p[0] != '/' {
		p = "/" + p
	}
	np := path.Clean(p)
	if p[len(p)-1] == '/' && np != "/" {
		np += "/"
	}
	return np
}

func isAPIPath(p string) bool {
	return p == "/api" || strings.HasPrefix(p, "/api/")
}

// DefaultRules are the built-in public and protected routes. Workspace API
// routes are added by the handlers that serve them.
func DefaultRules() []Rule {
	return []Rule{
		{Prefix: "/sign-in", Kind: RoutePublic},
		{Prefix: "/sign-up", Kind: RoutePublic},
		{Path: "/error", Kind: RoutePublic},
		{Prefix: "/invite/", Kind: RoutePublic},
		{Prefix: "/api/auth/", Kind: RoutePublic, API: true},
		{Path: "/healthz", Kind: RoutePublic, API: true},
		{Path: "/readyz", Kind: RoutePublic, API: true},
		{Path: "/metrics", Kind: RoutePublic, API: true},

		{Prefix: "/onboarding", Kind: RouteProtected},
		{Path: "/api/me", Kind: RouteProtected, API: true},
		{Path: "/api/workspaces", Kind: RouteProtected, API: true},
		{Path: "/api/workspaces/switch", Kind: RouteProtected, API: true},
		{Path: "/api/invitations/accept", Kind: RouteProtected, API: true},

		{Prefix: "/dashboard", Kind: RouteWorkspace},
		{Prefix: "/settings", Kind: RouteWorkspace},
	}
}

type routeFile struct {
	Routes []Rule `yaml:"routes"`
}

// LoadRules reads rules from YAML:
//
//	routes:
//	  - prefix: /reports
//	    kind: workspace
//	  - path: /api/workspaces/{workspaceId}/reports
//	    methods: [POST]
//	    kind: workspace
//	    api: true
//	    permission: report:create
func LoadRules(r io.Reader) ([]Rule, error) {
	var file routeFile
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to parse route file: %w", err)
	}
	for _, rule := range file.Routes {
		if err := rule.validate(); err != nil {
			return nil, err
		}
	}
	return file.Routes, nil
}

// LoadRulesFile reads rules from a YAML file
func LoadRulesFile(name string) ([]Rule, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("failed to open route file: %w", err)
	}
	defer f.Close()
	return LoadRules(f)
}
