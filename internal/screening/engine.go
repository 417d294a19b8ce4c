// Package screening provides the CEL-Go based screening rule engine.
//
// Screening rules are tenant-configured expressions evaluated against every
// transaction in an analysis window. They supplement the fixed detector
// pipeline: a rule that matches contributes one pattern of type "other" and
// never influences the engine's summary flags.
package screening

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Engine is the CEL-based screening rule engine. One engine instance serves
// all tenants; rules are keyed by (tenant, rule ID) and a screen only sees
// the requesting tenant's rules.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*CompiledRule
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.ScreeningRule
	Program cel.Program
}

// NewEngine creates a new screening rule engine.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("abs_amount", cel.DoubleType),
		cel.Variable("counterparty_id", cel.StringType),
		cel.Variable("hour", cel.IntType),
		cel.Variable("weekday", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:           env,
		compiledRules: make(map[string]*CompiledRule),
	}, nil
}

// ValidateRule compiles a rule without mutating loaded engine rules.
func (e *Engine) ValidateRule(cfg *domain.ScreeningRule) error {
	if cfg == nil {
		return fmt.Errorf("screening rule config is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *Engine) LoadRule(cfg *domain.ScreeningRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	e.compiledRules[ruleKey(cfg.TenantID, cfg.ID)] = compiled
	return nil
}

// LoadRules compiles and loads multiple rules, skipping disabled ones.
func (e *Engine) LoadRules(configs []*domain.ScreeningRule) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadRule(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadRules replaces one tenant's rules with the given set. Other tenants'
// rules are untouched. This enables hot-reloading of rules from the database.
func (e *Engine) ReloadRules(tenantID string, configs []*domain.ScreeningRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make(map[string]*CompiledRule, len(e.compiledRules))
	for key, compiled := range e.compiledRules {
		if compiled.Config.TenantID != tenantID {
			newRules[key] = compiled
		}
	}
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		newRules[ruleKey(cfg.TenantID, cfg.ID)] = compiled
	}

	e.compiledRules = newRules
	return nil
}

// RulesCount returns the number of loaded rules across all tenants.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// GetLoadedRules returns the tenant's currently loaded rule configurations.
func (e *Engine) GetLoadedRules(tenantID string) []*domain.ScreeningRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.ScreeningRule, 0, len(e.compiledRules))
	for _, compiled := range e.compiledRules {
		if compiled.Config.TenantID == tenantID {
			rules = append(rules, compiled.Config)
		}
	}
	return rules
}

// Screen evaluates the tenant's loaded rules against the transactions and
// returns one pattern per rule with at least one match. Rules are evaluated
// in rule ID order so the emitted patterns are stable. A transaction that
// fails to evaluate is skipped for that rule; it never aborts the screen.
func (e *Engine) Screen(tenantID string, txs []domain.Transaction) []domain.Pattern {
	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, rule := range e.compiledRules {
		if rule.Config.TenantID == tenantID {
			rules = append(rules, rule)
		}
	}
	e.mu.RUnlock()

	if len(rules) == 0 || len(txs) == 0 {
		return nil
	}

	sort.Slice(rules, func(i, j int) bool {
		return rules[i].Config.ID < rules[j].Config.ID
	})

	var patterns []domain.Pattern
	for _, rule := range rules {
		matches := 0
		for i := range txs {
			ok, err := evalRule(rule, &txs[i])
			if err != nil {
				continue
			}
			if ok {
				matches++
			}
		}
		if matches == 0 {
			continue
		}

		severity := rule.Config.Severity
		if severity == "" {
			severity = domain.SeverityMedium
		}

		patterns = append(patterns, domain.Pattern{
			Type:     domain.PatternOther,
			Severity: severity,
			Description: fmt.Sprintf(
				"Screening rule %q matched %d transaction(s)",
				rule.Config.Name, matches,
			),
			Value: float64(matches),
		})
	}

	return patterns
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}

func ruleKey(tenantID, ruleID string) string {
	return tenantID + "/" + ruleID
}

func evalRule(rule *CompiledRule, tx *domain.Transaction) (bool, error) {
	amount := tx.Amount
	abs := amount
	if abs < 0 {
		abs = -abs
	}

	activation := map[string]any{
		"amount":          amount,
		"abs_amount":      abs,
		"counterparty_id": tx.CounterpartyID,
		"hour":            int64(tx.Date.Hour()),
		"weekday":         int64(tx.Date.Weekday()),
	}

	out, _, err := rule.Program.Eval(activation)
	if err != nil {
		return false, err
	}

	matched, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("rule %s: expression did not return bool", rule.Config.ID)
	}
	return matched, nil
}

func (e *Engine) compileRule(cfg *domain.ScreeningRule) (*CompiledRule, error) {
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}
