// Package middleware provides request filters and security checks for the application.
// File: middleware/routes.go
package middleware

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"playjosh/models"
	"playjosh/services"
)

// Category is the routing class of a request path.
type Category string

const (
	CategoryBypass     Category = "bypass"
	CategoryPublic     Category = "public"
	CategoryAuth       Category = "auth"
	CategoryOnboarding Category = "onboarding"
	CategoryProtected  Category = "protected"
)

// Canonical redirect targets.
const (
	LoginPath      = "/login"
	OnboardingPath = services.OnboardingPath
	HomePath       = services.HomePath

	RedirectedFromParam = "redirectedFrom"
)

// Route binds a path (exact, or segment-aware prefix) to a category.
type Route struct {
	Path     string
	Exact    bool
	Category Category
}

// RouteTable classifies request paths by longest match.
type RouteTable struct {
	routes []Route
}

// NewRouteTable builds a table from routes; paths are normalized.
func NewRouteTable(routes ...Route) *RouteTable {
	t := &RouteTable{routes: make([]Route, 0, len(routes))}
	for _, r := range routes {
		r.Path = NormalizePath(r.Path)
		t.routes = append(t.routes, r)
	}
	return t
}

// DefaultRoutes is the application's route table.
func DefaultRoutes() *RouteTable {
	return NewRouteTable(
		// bypass: bundler internals, backend API routes, icons
		Route{Path: "/_next", Category: CategoryBypass},
		Route{Path: "/api", Category: CategoryBypass},
		Route{Path: "/favicon.ico", Category: CategoryBypass},

		Route{Path: "/login", Category: CategoryAuth},
		Route{Path: "/signup", Category: CategoryAuth},
		Route{Path: "/verify-email", Category: CategoryAuth},
		Route{Path: "/forgot-password", Category: CategoryAuth},
		Route{Path: "/reset-password", Category: CategoryAuth},

		Route{Path: "/onboarding", Category: CategoryOnboarding},

		Route{Path: "/", Exact: true, Category: CategoryPublic},
		Route{Path: "/auth/callback", Category: CategoryPublic},
		Route{Path: "/auth/logout", Category: CategoryPublic},
		Route{Path: "/health", Exact: true, Category: CategoryPublic},

		// application sections; listed so ids like /coach/jane.doe are never
		// mistaken for static files
		Route{Path: "/Home", Category: CategoryProtected},
		Route{Path: "/feed", Category: CategoryProtected},
		Route{Path: "/profile", Category: CategoryProtected},
		Route{Path: "/discover", Category: CategoryProtected},
		Route{Path: "/events", Category: CategoryProtected},
		Route{Path: "/messages", Category: CategoryProtected},
		Route{Path: "/coach", Category: CategoryProtected},
	)
}

// NormalizePath collapses duplicate slashes, dot segments and trailing slashes.
func NormalizePath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// Classify returns the category of p. The longest matching route wins.
// Unmatched paths naming a file are static assets and bypass the guard;
// anything else unmatched is protected.
func (t *RouteTable) Classify(p string) Category {
	p = NormalizePath(p)

	best := -1
	category := CategoryProtected
	for _, r := range t.routes {
		if !r.matches(p) || len(r.Path) <= best {
			continue
		}
		best = len(r.Path)
		category = r.Category
	}
	if best < 0 && path.Ext(path.Base(p)) != "" {
		return CategoryBypass
	}
	return category
}

func (r Route) matches(p string) bool {
	if p == r.Path {
		return true
	}
	if r.Exact || r.Path == "/" {
		return false
	}
	return strings.HasPrefix(p, r.Path+"/")
}

// ------------------ decisions ------------------

// Decision is the guard's verdict for one request.
type Decision struct {
	Redirect bool
	Target   string
}

// Allow passes the request through unchanged.
func Allow() Decision { return Decision{} }

// RedirectTo short-circuits the request to target.
func RedirectTo(target string) Decision { return Decision{Redirect: true, Target: target} }

// Outcome labels the decision for logs and metrics.
func (d Decision) Outcome() string {
	if d.Redirect {
		return "redirect"
	}
	return "allow"
}

func (d Decision) String() string {
	if d.Redirect {
		return "redirect " + d.Target
	}
	return "allow"
}

// LoginRedirect is the login page remembering where the visitor was going.
func LoginRedirect(from string) string {
	return LoginPath + "?" + url.Values{RedirectedFromParam: {from}}.Encode()
}

// Decide applies the access table. It is a pure function of its inputs.
//
//	unauthenticated:          public, auth allowed; onboarding, protected -> /login
//	onboarding incomplete:    onboarding, public allowed; auth, protected -> /onboarding
//	onboarding complete:      public, protected allowed; auth, onboarding -> /Home
func Decide(session models.Session, category Category, p string) Decision {
	if category == CategoryBypass {
		return Allow()
	}

	switch {
	case !session.Authenticated:
		switch category {
		case CategoryPublic, CategoryAuth:
			return Allow()
		default:
			return RedirectTo(LoginRedirect(p))
		}
	case !session.OnboardingDone():
		switch category {
		case CategoryOnboarding, CategoryPublic:
			return Allow()
		default:
			return RedirectTo(OnboardingPath)
		}
	default:
		switch category {
		case CategoryAuth, CategoryOnboarding:
			return RedirectTo(HomePath)
		default:
			return Allow()
		}
	}
}

// ValidateLoopFree checks that every redirect the table can produce lands on a
// path the same session is allowed to reach.
func (t *RouteTable) ValidateLoopFree() error {
	sessions := map[string]models.Session{
		"unauthenticated": models.Anonymous(),
		"onboarding incomplete": {
			Authenticated: true,
			User:          models.User{UserMetadata: models.Metadata{}},
		},
		"onboarding complete": {
			Authenticated: true,
			User:          models.User{UserMetadata: models.Metadata{models.MetaOnboardingCompleted: true}},
		},
	}
	categories := []Category{CategoryPublic, CategoryAuth, CategoryOnboarding, CategoryProtected}

	for state, s := range sessions {
		for _, c := range categories {
			d := Decide(s, c, "/loop-check")
			if !d.Redirect {
				continue
			}
			target, err := url.Parse(d.Target)
			if err != nil {
				return fmt.Errorf("%s/%s: bad redirect target %q: %w", state, c, d.Target, err)
			}
			tc := t.Classify(target.Path)
			if next := Decide(s, tc, target.Path); next.Redirect {
				return fmt.Errorf("%s/%s: redirect to %s (%s) redirects again to %s", state, c, target.Path, tc, next.Target)
			}
		}
	}
	return nil
}
