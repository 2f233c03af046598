package startup

import (
	"slices"
	"sort"
	"strings"

	"preview-watcher/internal/logging"

	"github.com/gorilla/mux"
)

// Route is one path template with the methods registered for it.
type Route struct {
	Template string
	Methods  []string
}

// ListRoutes walks router and merges methods per template, sorted by
// template. Routes without a method matcher report "*".
func ListRoutes(router *mux.Router) ([]Route, error) {
	byTemplate := make(map[string][]string)
	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		tmpl, err := route.GetPathTemplate()
		if err != nil {
			// Subrouter roots and matcher-only routes.
			return nil
		}
		methods, err := route.GetMethods()
		if err != nil {
			if route.GetHandler() == nil {
				return nil
			}
			methods = []string{"*"}
		}
		for _, m := range methods {
			if !slices.Contains(byTemplate[tmpl], m) {
				byTemplate[tmpl] = append(byTemplate[tmpl], m)
			}
		}
		return nil
	})

	routes := make([]Route, 0, len(byTemplate))
	for tmpl, methods := range byTemplate {
		routes = append(routes, Route{Template: tmpl, Methods: methods})
	}
	sort.Slice(routes, func(i, j int) bool { return routes[i].Template < routes[j].Template })
	return routes, err
}

// routeGroup names the first path segment, or two for /api routes.
func routeGroup(template string) string {
	segments := strings.Split(strings.Trim(template, "/"), "/")
	if segments[0] == "api" && len(segments) > 1 {
		return "api/" + segments[1]
	}
	return segments[0]
}

// LogHTTPRoutes prints the route table at debug level and the access log
// settings at info level.
func LogHTTPRoutes(router *mux.Router, logStaticFiles, logHealthChecks bool) {
	section("HTTP SERVER")

	if logging.IsDebugEnabled() {
		routes, err := ListRoutes(router)
		if err != nil {
			logging.Warn("  route walk stopped early: %v", err)
		}
		group := "\x00"
		for _, r := range routes {
			if g := routeGroup(r.Template); g != group {
				group = g
				logging.Debug("  [%s]", valueOr(g, "root"))
			}
			logging.Debug("    %-10s %s", strings.Join(r.Methods, ","), r.Template)
		}
	}

	logging.Info("  Access log:    W3C extended")
	logging.Info("    static files:  %s", onOff(logStaticFiles))
	logging.Info("    health checks: %s", onOff(logHealthChecks))
}
