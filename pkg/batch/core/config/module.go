// Package config loads and exposes the application configuration.
package config

import "go.uber.org/fx"

// NewBatchConfigProvider exposes the batch section on its own.
func NewBatchConfigProvider(cfg *Config) *BatchConfig {
	return &cfg.LoanCOB.Batch
}

// NewInfrastructureConfigProvider exposes the infrastructure section on its own.
func NewInfrastructureConfigProvider(cfg *Config) *InfrastructureConfig {
	return &cfg.LoanCOB.Infrastructure
}

// Module provides section-level views of *Config.
var Module = fx.Options(
	fx.Provide(NewBatchConfigProvider),
	fx.Provide(NewInfrastructureConfigProvider),
)
