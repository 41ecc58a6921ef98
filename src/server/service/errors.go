package service

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownModule is wrapped by ModuleError for names missing from the registry
	ErrUnknownModule = errors.New("unknown module")
	// ErrMissingTable is wrapped by SchemaError when fallback leaves a table absent
	ErrMissingTable = errors.New("table missing after install")
)

// SchemaError is a DDL or seed failure during schema installation
type SchemaError struct {
	Strategy Strategy
	Table    string
	Err      error
}

func (e *SchemaError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("%s schema install failed at %s: %v", e.Strategy, e.Table, e.Err)
	}
	return fmt.Sprintf("%s schema install failed: %v", e.Strategy, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// ProvisioningError is a fatal admin account failure
type ProvisioningError struct {
	Reason string
	Err    error
}

func (e *ProvisioningError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("admin provisioning failed: %s: %v", e.Reason, e.Err)
	}
	return "admin provisioning failed: " + e.Reason
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

// ModuleError is fatal for one module only
type ModuleError struct {
	Module string
	Err    error
}

func (e *ModuleError) Error() string {
	return fmt.Sprintf("module %s: %v", e.Module, e.Err)
}

func (e *ModuleError) Unwrap() error { return e.Err }

// ConfigWriteError is a fatal failure writing a generated file
type ConfigWriteError struct {
	Path string
	Err  error
}

func (e *ConfigWriteError) Error() string {
	return fmt.Sprintf("failed to write %s: %v", e.Path, e.Err)
}

func (e *ConfigWriteError) Unwrap() error { return e.Err }
