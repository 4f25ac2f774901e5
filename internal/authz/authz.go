// Package authz evaluates permission grants: a base role/resource/action
// match narrowed by time-window, required-context, allowed-IP, and
// optional expression conditions.
package authz

import (
	"fmt"
	"net"
	"time"

	"github.com/edda-mesh/bifrost-heimdall/pkg/models"
	"github.com/expr-lang/expr"
)

// Request is the context a permission decision is evaluated against.
type Request struct {
	Subject      string
	ResourceType string
	Action       string
	ClientIP     string
	Context      map[string]string
	Now          time.Time
}

// Engine evaluates grants against requests.
type Engine struct{}

// NewEngine creates a permission engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Evaluate returns true if grant permits req. A grant only applies if its
// subject, resource type, and action all match; every configured
// condition must additionally hold.
func (e *Engine) Evaluate(grant models.PermissionGrant, req Request) (bool, error) {
	if grant.Subject != req.Subject {
		return false, nil
	}
	if grant.ResourceType != req.ResourceType || grant.Action != req.Action {
		return false, nil
	}

	c := grant.Conditions
	if c.StartHour != nil && c.EndHour != nil {
		if !hourInWindow(req.Now.UTC().Hour(), *c.StartHour, *c.EndHour) {
			return false, nil
		}
	}
	if len(c.RequiredContext) > 0 {
		for k, v := range c.RequiredContext {
			if req.Context[k] != v {
				return false, nil
			}
		}
	}
	if len(c.AllowedIPs) > 0 {
		if !ipAllowed(req.ClientIP, c.AllowedIPs) {
			return false, nil
		}
	}
	if c.Expression != "" {
		allowed, err := evalExpression(c.Expression, req)
		if err != nil {
			return false, fmt.Errorf("authz: evaluating expression: %w", err)
		}
		if !allowed {
			return false, nil
		}
	}
	return true, nil
}

// hourInWindow checks inclusive membership in [start, end], UTC hours,
// supporting windows that wrap past midnight (e.g. start=22, end=4).
func hourInWindow(hour, start, end int) bool {
	if start <= end {
		return hour >= start && hour <= end
	}
	return hour >= start || hour <= end
}

func ipAllowed(clientIP string, allowed []string) bool {
	ip := net.ParseIP(clientIP)
	for _, a := range allowed {
		if a == clientIP {
			return true
		}
		if ip == nil {
			continue
		}
		if _, cidr, err := net.ParseCIDR(a); err == nil && cidr.Contains(ip) {
			return true
		}
	}
	return false
}

func evalExpression(expression string, req Request) (bool, error) {
	env := map[string]interface{}{
		"subject":       req.Subject,
		"resource_type": req.ResourceType,
		"action":        req.Action,
		"client_ip":     req.ClientIP,
		"context":       req.Context,
	}
	program, err := expr.Compile(expression, expr.Env(env), expr.AsBool())
	if err != nil {
		return false, err
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return false, err
	}
	result, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("authz: expression did not evaluate to a bool")
	}
	return result, nil
}
