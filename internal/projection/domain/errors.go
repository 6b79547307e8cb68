package projection

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidScenario is matched by InvalidScenarioError.
	ErrInvalidScenario = errors.New("projection: invalid scenario")
	// ErrNoEnvironmentalData is matched by NoEnvironmentalDataError.
	ErrNoEnvironmentalData = errors.New("projection: no environmental data")
	// ErrNoMarketData is matched by NoMarketDataError.
	ErrNoMarketData = errors.New("projection: no market data")
	// ErrArithmeticDomain is matched by ArithmeticDomainError.
	ErrArithmeticDomain = errors.New("projection: arithmetic domain error")
	// ErrIRRNotConverged is returned when no sign change brackets the IRR.
	ErrIRRNotConverged = errors.New("projection: irr not converged")
	// ErrDataTimeout is returned when data resolution for a date exceeds its bound.
	ErrDataTimeout = errors.New("projection: data resolution timeout")
	// ErrInvalidDateRange is returned when end precedes start.
	ErrInvalidDateRange = errors.New("projection: invalid date range")
	// ErrEquipmentNotFound is returned when a line item references an unknown catalog id.
	ErrEquipmentNotFound = errors.New("projection: equipment not found")
	// ErrConfigurationNotFound is returned when a system configuration cannot be found.
	ErrConfigurationNotFound = errors.New("projection: system configuration not found")
	// ErrScenarioNotFound is returned when a scenario cannot be found.
	ErrScenarioNotFound = errors.New("projection: scenario not found")
	// ErrScenarioMismatch is returned when a scenario belongs to another configuration.
	ErrScenarioMismatch = errors.New("projection: scenario does not belong to configuration")
	// ErrInvalidGranularity is returned when an output granularity is unsupported.
	ErrInvalidGranularity = errors.New("projection: invalid granularity")
	// ErrInvalidQuantity is returned for negative line item quantities.
	ErrInvalidQuantity = errors.New("projection: negative quantity")
)

// InvalidScenarioError reports a malformed override group.
type InvalidScenarioError struct {
	Group string
	Err   error
}

func (e *InvalidScenarioError) Error() string {
	return fmt.Sprintf("projection: invalid scenario %s: %v", e.Group, e.Err)
}

func (e *InvalidScenarioError) Unwrap() error { return e.Err }

// Is matches ErrInvalidScenario.
func (e *InvalidScenarioError) Is(target error) bool { return target == ErrInvalidScenario }

// NoEnvironmentalDataError reports that no granularity had a sample for a location/date.
type NoEnvironmentalDataError struct {
	LocationID string
	Date       time.Time
}

func (e *NoEnvironmentalDataError) Error() string {
	return fmt.Sprintf("projection: no environmental data for %s at location %s", e.Date.Format("2006-01-02"), e.LocationID)
}

// Is matches ErrNoEnvironmentalData.
func (e *NoEnvironmentalDataError) Is(target error) bool { return target == ErrNoEnvironmentalData }

// NoMarketDataError reports a missing market snapshot.
type NoMarketDataError struct {
	At time.Time
}

func (e *NoMarketDataError) Error() string {
	return fmt.Sprintf("projection: no market data at or before %s", e.At.Format("2006-01-02"))
}

// Is matches ErrNoMarketData.
func (e *NoMarketDataError) Is(target error) bool { return target == ErrNoMarketData }

// ArithmeticDomainError reports an input outside a component's numeric domain.
type ArithmeticDomainError struct {
	Component string
	Detail    string
}

func (e *ArithmeticDomainError) Error() string {
	return fmt.Sprintf("projection: arithmetic domain error in %s: %s", e.Component, e.Detail)
}

// Is matches ErrArithmeticDomain.
func (e *ArithmeticDomainError) Is(target error) bool { return target == ErrArithmeticDomain }

func domainError(component, format string, args ...any) error {
	return &ArithmeticDomainError{Component: component, Detail: fmt.Sprintf(format, args...)}
}

// Component names used in StepError.
const (
	ComponentScenario     = "scenario_resolver"
	ComponentDegradation  = "degradation_model"
	ComponentEnvironment  = "environmental_resolver"
	ComponentEnergyFlow   = "energy_flow_simulator"
	ComponentMining       = "mining_performance_model"
	ComponentFinancial    = "financial_aggregator"
	ComponentMarket       = "market_data"
	ComponentOrchestrator = "projection_orchestrator"
	ComponentPersistence  = "result_store"
)

// StepError wraps a failure with the projection date and component that raised it.
type StepError struct {
	Date      time.Time
	Component string
	Err       error
}

func (e *StepError) Error() string {
	if e.Date.IsZero() {
		return fmt.Sprintf("%s: %v", e.Component, e.Err)
	}
	return fmt.Sprintf("%s on %s: %v", e.Component, e.Date.Format("2006-01-02"), e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// ErrorKind classifies an error for API consumers.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidScenario):
		return "InvalidScenarioError"
	case errors.Is(err, ErrNoEnvironmentalData):
		return "NoEnvironmentalDataError"
	case errors.Is(err, ErrNoMarketData):
		return "NoMarketDataError"
	case errors.Is(err, ErrArithmeticDomain):
		return "ArithmeticDomainError"
	case errors.Is(err, ErrIRRNotConverged):
		return "IRRNotConvergedError"
	case errors.Is(err, context.Canceled):
		return "CancelledError"
	case errors.Is(err, ErrDataTimeout):
		return "DataTimeoutError"
	case errors.Is(err, ErrEquipmentNotFound):
		return "EquipmentNotFoundError"
	case errors.Is(err, ErrConfigurationNotFound), errors.Is(err, ErrScenarioNotFound):
		return "NotFoundError"
	case errors.Is(err, ErrInvalidDateRange), errors.Is(err, ErrInvalidGranularity),
		errors.Is(err, ErrScenarioMismatch), errors.Is(err, ErrInvalidQuantity):
		return "ValidationError"
	default:
		return "InternalError"
	}
}
