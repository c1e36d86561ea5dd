package authorization

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/asakaida/epiguard/internal/entities"
	"github.com/asakaida/epiguard/internal/services/parser"
	"github.com/asakaida/epiguard/pkg/cache"
)

// UserProvider loads users with their effective permission set installed
type UserProvider interface {
	GetUser(ctx context.Context, userID uuid.UUID) (*entities.User, error)
}

// DecisionRecorder receives the outcome of every check
type DecisionRecorder interface {
	RecordDecision(allowed bool)
}

// CheckerInterface defines the interface for permission checking
type CheckerInterface interface {
	Check(ctx context.Context, req *CheckRequest) (*CheckResponse, error)
	CheckMultiple(ctx context.Context, userID uuid.UUID, checks map[string]string) (map[string]bool, error)
	Explain(ctx context.Context, req *CheckRequest) (*TraceNode, error)
	EffectivePermissions(ctx context.Context, userID uuid.UUID) (*entities.PermissionSet, error)
	Compile(expression string) (entities.Expression, error)
}

// Checker evaluates guard expressions for stored users
type Checker struct {
	users    UserProvider
	rules    parser.RuleCompiler
	compiled cache.Cache      // Optional cache of compiled expressions
	recorder DecisionRecorder // Optional
	cacheTTL time.Duration
	logger   *slog.Logger
}

// CheckRequest contains the parameters for a permission check
type CheckRequest struct {
	UserID     uuid.UUID // User whose effective permissions are evaluated
	Expression string    // Guard expression (e.g., "case_view and bed_view")
}

// CheckResponse contains the result of a permission check
type CheckResponse struct {
	Allowed     bool                 // Whether the user satisfies the expression
	Fingerprint entities.Fingerprint // Fingerprint of the set the decision was made against
}

// NewChecker creates a new Checker without an expression cache
func NewChecker(users UserProvider, rules parser.RuleCompiler) *Checker {
	return &Checker{
		users:  users,
		rules:  rules,
		logger: slog.Default(),
	}
}

// NewCheckerWithCache creates a new Checker that caches compiled expressions.
// The cache must hold values in memory; compiled expressions carry functions.
func NewCheckerWithCache(users UserProvider, rules parser.RuleCompiler, compiled cache.Cache, cacheTTL time.Duration) *Checker {
	return &Checker{
		users:    users,
		rules:    rules,
		compiled: compiled,
		cacheTTL: cacheTTL,
		logger:   slog.Default(),
	}
}

// SetLogger replaces the logger used for cache failures
func (c *Checker) SetLogger(logger *slog.Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// SetRecorder installs a decision recorder
func (c *Checker) SetRecorder(recorder DecisionRecorder) {
	c.recorder = recorder
}

// Compile parses a guard expression, consulting the compiled-expression cache first
func (c *Checker) Compile(expression string) (entities.Expression, error) {
	expression = strings.TrimSpace(expression)
	ctx := context.Background()

	if c.compiled != nil {
		if cached, found := c.compiled.Get(ctx, expression); found {
			if expr, ok := cached.(entities.Expression); ok {
				return expr, nil
			}
		}
	}

	expr, err := parser.Compile(expression, c.rules)
	if err != nil {
		return nil, err
	}

	if c.compiled != nil {
		if err := c.compiled.Set(ctx, expression, expr, c.cacheTTL); err != nil {
			c.logger.Warn("failed to cache compiled expression", "expression", expression, "error", err)
		}
	}

	return expr, nil
}

// Check evaluates the request's expression against the user's effective permissions
func (c *Checker) Check(ctx context.Context, req *CheckRequest) (*CheckResponse, error) {
	if err := c.validateRequest(req); err != nil {
		return nil, fmt.Errorf("invalid check request: %w", err)
	}

	expr, err := c.Compile(req.Expression)
	if err != nil {
		return nil, fmt.Errorf("invalid expression: %w", err)
	}

	user, err := c.users.GetUser(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	allowed := Allowed(expr, user)
	c.record(allowed)

	return &CheckResponse{
		Allowed:     allowed,
		Fingerprint: user.Permissions().Fingerprint(),
	}, nil
}

// CheckMultiple evaluates several named expressions for one user.
// The user is loaded once, so every result is decided against the same set.
// An expression that fails to compile is reported as false.
func (c *Checker) CheckMultiple(ctx context.Context, userID uuid.UUID, checks map[string]string) (map[string]bool, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("user ID is required")
	}

	user, err := c.users.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	results := make(map[string]bool, len(checks))
	for name, expression := range checks {
		expr, err := c.Compile(expression)
		if err != nil {
			results[name] = false
			continue
		}

		allowed := Allowed(expr, user)
		c.record(allowed)
		results[name] = allowed
	}

	return results, nil
}

// Explain returns the evaluation trace of the request's expression
func (c *Checker) Explain(ctx context.Context, req *CheckRequest) (*TraceNode, error) {
	if err := c.validateRequest(req); err != nil {
		return nil, fmt.Errorf("invalid explain request: %w", err)
	}

	expr, err := c.Compile(req.Expression)
	if err != nil {
		return nil, fmt.Errorf("invalid expression: %w", err)
	}

	user, err := c.users.GetUser(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return Explain(expr, user), nil
}

// EffectivePermissions returns the user's effective permission set
func (c *Checker) EffectivePermissions(ctx context.Context, userID uuid.UUID) (*entities.PermissionSet, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("user ID is required")
	}

	user, err := c.users.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user.Permissions(), nil
}

func (c *Checker) record(allowed bool) {
	if c.recorder != nil {
		c.recorder.RecordDecision(allowed)
	}
}

// validateRequest validates the check request
func (c *Checker) validateRequest(req *CheckRequest) error {
	if req == nil {
		return fmt.Errorf("request is required")
	}
	if req.UserID == uuid.Nil {
		return fmt.Errorf("user ID is required")
	}
	if strings.TrimSpace(req.Expression) == "" {
		return fmt.Errorf("expression is required")
	}
	return nil
}
