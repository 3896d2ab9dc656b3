package plugins

import (
	"fmt"

	"github.com/grokking-vietnam/querybench/internal/engine"
)

// Registrations returns the registration for every built-in engine.
func Registrations() []engine.Registration {
	return []engine.Registration{
		postgresRegistration(),
		mysqlRegistration(),
		sqliteRegistration(),
		bigqueryRegistration(),
		sparksqlRegistration(),
		snowflakeRegistration(),
	}
}

// RegisterAll registers every built-in engine with the registry.
func RegisterAll(registry *engine.Registry) error {
	for _, reg := range Registrations() {
		if err := registry.Register(reg); err != nil {
			return fmt.Errorf("failed to register engine %s: %w", reg.ID, err)
		}
	}
	return nil
}
