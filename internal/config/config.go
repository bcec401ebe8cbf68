// Package config loads and validates the ChronosOps deployment
// configuration: a single YAML file covering the HTTP/metrics server, the
// OODA state machine, the investigation orchestrator, the rollback
// manager, the edit lock manager, the build orchestrator, storage, and
// logging. Load parses and validates once; Watch layers a hot-reload
// subscription on top for a running process.
package config

import (
	"fmt"
	"os"
	"time"

	validator "github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/broadcomms/chronosops/pkg/build"
	"github.com/broadcomms/chronosops/pkg/contracts"
	"github.com/broadcomms/chronosops/pkg/editlock"
	"github.com/broadcomms/chronosops/pkg/investigation"
	"github.com/broadcomms/chronosops/pkg/ooda"
	"github.com/broadcomms/chronosops/pkg/rollback"
)

// ServerConfig configures the HTTP surfaces the process exposes.
type ServerConfig struct {
	WebhookPort string `yaml:"webhook_port" validate:"required"`
	MetricsPort string `yaml:"metrics_port"`
}

// LoggingConfig configures logrus's output.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error fatal panic"`
	Format string `yaml:"format" validate:"omitempty,oneof=json text"`
}

// StorageConfig configures the Postgres and Redis backends pkg/timeline and
// pkg/editlock persist through.
type StorageConfig struct {
	DatabaseDSN string `yaml:"database_dsn"`
	RedisAddr   string `yaml:"redis_addr"`
}

// OODAConfig mirrors ooda.Config with YAML-friendly duration strings.
type OODAConfig struct {
	PhaseTimeouts struct {
		Observing Duration `yaml:"observing"`
		Orienting Duration `yaml:"orienting"`
		Deciding  Duration `yaml:"deciding"`
		Acting    Duration `yaml:"acting"`
		Verifying Duration `yaml:"verifying"`
	} `yaml:"phase_timeouts"`
	MaxRetries struct {
		Observing int `yaml:"observing"`
		Orienting int `yaml:"orienting"`
		Deciding  int `yaml:"deciding"`
		Acting    int `yaml:"acting"`
		Verifying int `yaml:"verifying"`
	} `yaml:"max_retries"`
}

// ToOODAConfig converts to the typed config the state machine consumes.
func (c OODAConfig) ToOODAConfig() ooda.Config {
	return ooda.Config{
		PhaseTimeouts: ooda.PhaseTimeouts{
			Observing: c.PhaseTimeouts.Observing.Duration,
			Orienting: c.PhaseTimeouts.Orienting.Duration,
			Deciding:  c.PhaseTimeouts.Deciding.Duration,
			Acting:    c.PhaseTimeouts.Acting.Duration,
			Verifying: c.PhaseTimeouts.Verifying.Duration,
		},
		MaxRetries: ooda.MaxRetries{
			contracts.StateObserving: c.MaxRetries.Observing,
			contracts.StateOrienting: c.MaxRetries.Orienting,
			contracts.StateDeciding:  c.MaxRetries.Deciding,
			contracts.StateActing:    c.MaxRetries.Acting,
			contracts.StateVerifying: c.MaxRetries.Verifying,
		},
	}
}

// InvestigationConfig mirrors investigation.Config.
type InvestigationConfig struct {
	ConfidenceThreshold     float64  `yaml:"confidence_threshold" validate:"gte=0,lte=1"`
	MaxActionsPerIncident   int      `yaml:"max_actions_per_incident" validate:"gt=0"`
	ActionCooldown          Duration `yaml:"action_cooldown"`
	VerificationWait        Duration `yaml:"verification_wait"`
	MaxVerificationAttempts int      `yaml:"max_verification_attempts" validate:"gt=0"`
	// StaleThreshold bounds how old an investigation heartbeat may be before
	// the startup recovery scan treats the investigation as orphaned.
	StaleThreshold Duration `yaml:"stale_threshold"`
}

// ToInvestigationConfig converts to investigation.Config.
func (c InvestigationConfig) ToInvestigationConfig() investigation.Config {
	return investigation.Config{
		ConfidenceThreshold:     c.ConfidenceThreshold,
		MaxActionsPerIncident:   c.MaxActionsPerIncident,
		ActionCooldown:          c.ActionCooldown.Duration,
		VerificationWait:        c.VerificationWait.Duration,
		MaxVerificationAttempts: c.MaxVerificationAttempts,
	}
}

// RollbackConfig mirrors rollback.Config.
type RollbackConfig struct {
	Policy struct {
		RequireApproval      bool     `yaml:"require_approval"`
		ProtectedNamespaces  []string `yaml:"protected_namespaces"`
		ProtectedDeployments []string `yaml:"protected_deployments"`
	} `yaml:"policy"`
	MaxRollbacksPerIncident int      `yaml:"max_rollbacks_per_incident" validate:"gt=0"`
	RollbackCooldown        Duration `yaml:"rollback_cooldown"`
	EnableCascadeProtection bool     `yaml:"enable_cascade_protection"`
	EscalationThreshold     int      `yaml:"escalation_threshold" validate:"gt=0"`
}

// ToRollbackConfig converts to rollback.Config.
func (c RollbackConfig) ToRollbackConfig() rollback.Config {
	return rollback.Config{
		Policy: rollback.Policy{
			RequireApproval:      c.Policy.RequireApproval,
			ProtectedNamespaces:  c.Policy.ProtectedNamespaces,
			ProtectedDeployments: c.Policy.ProtectedDeployments,
		},
		MaxRollbacksPerIncident: c.MaxRollbacksPerIncident,
		RollbackCooldown:        c.RollbackCooldown.Duration,
		EnableCascadeProtection: c.EnableCascadeProtection,
		EscalationThreshold:     c.EscalationThreshold,
	}
}

// EditLockConfig mirrors editlock.Config.
type EditLockConfig struct {
	Timeout           Duration `yaml:"timeout"`
	ExtendOnActivity  Duration `yaml:"extend_on_activity"`
	MaxExtensions     int      `yaml:"max_extensions" validate:"gt=0"`
	HeartbeatInterval Duration `yaml:"heartbeat_interval"`
	KeyPrefix         string   `yaml:"key_prefix"`
}

// ToEditLockConfig converts to editlock.Config.
func (c EditLockConfig) ToEditLockConfig() editlock.Config {
	return editlock.Config{
		Timeout:           c.Timeout.Duration,
		ExtendOnActivity:  c.ExtendOnActivity.Duration,
		MaxExtensions:     c.MaxExtensions,
		HeartbeatInterval: c.HeartbeatInterval.Duration,
		KeyPrefix:         c.KeyPrefix,
	}
}

// BuildConfig mirrors build.Config.
type BuildConfig struct {
	WorkDir          string  `yaml:"work_dir"`
	SkipLint         bool    `yaml:"skip_lint"`
	SkipTests        bool    `yaml:"skip_tests"`
	SkipPush         bool    `yaml:"skip_push"`
	RequiredCoverage float64 `yaml:"required_coverage" validate:"gte=0,lte=100"`
	Registry         string  `yaml:"registry"`
	BaseImage        string  `yaml:"base_image"`
	StageTimeouts    struct {
		Installing Duration `yaml:"installing"`
		Linting    Duration `yaml:"linting"`
		Testing    Duration `yaml:"testing"`
		Building   Duration `yaml:"building"`
		Pushing    Duration `yaml:"pushing"`
	} `yaml:"stage_timeouts"`
}

// ToBuildConfig converts to build.Config.
func (c BuildConfig) ToBuildConfig() build.Config {
	return build.Config{
		WorkDir:          c.WorkDir,
		SkipLint:         c.SkipLint,
		SkipTests:        c.SkipTests,
		SkipPush:         c.SkipPush,
		RequiredCoverage: c.RequiredCoverage,
		Registry:         c.Registry,
		BaseImage:        c.BaseImage,
		StageTimeouts: build.StageTimeouts{
			Installing: c.StageTimeouts.Installing.Duration,
			Linting:    c.StageTimeouts.Linting.Duration,
			Testing:    c.StageTimeouts.Testing.Duration,
			Building:   c.StageTimeouts.Building.Duration,
			Pushing:    c.StageTimeouts.Pushing.Duration,
		},
	}
}

// Config is the root of the ChronosOps deployment configuration.
type Config struct {
	Server       ServerConfig        `yaml:"server"`
	Logging      LoggingConfig       `yaml:"logging"`
	Storage      StorageConfig       `yaml:"storage"`
	OODA         OODAConfig          `yaml:"ooda"`
	Investigation InvestigationConfig `yaml:"investigation"`
	Rollback     RollbackConfig      `yaml:"rollback"`
	EditLock     EditLockConfig      `yaml:"edit_lock"`
	Build        BuildConfig         `yaml:"build"`
}

// applyDefaults fills in zero-valued fields with the same defaults each
// component's own DefaultConfig would choose, so a minimal file still
// produces a usable configuration.
func applyDefaults(c *Config) {
	if c.Server.MetricsPort == "" {
		c.Server.MetricsPort = "9090"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	oodaDefaults := ooda.DefaultPhaseTimeouts()
	if c.OODA.PhaseTimeouts.Observing.Duration == 0 {
		c.OODA.PhaseTimeouts.Observing.Duration = oodaDefaults.Observing
	}
	if c.OODA.PhaseTimeouts.Orienting.Duration == 0 {
		c.OODA.PhaseTimeouts.Orienting.Duration = oodaDefaults.Orienting
	}
	if c.OODA.PhaseTimeouts.Deciding.Duration == 0 {
		c.OODA.PhaseTimeouts.Deciding.Duration = oodaDefaults.Deciding
	}
	if c.OODA.PhaseTimeouts.Acting.Duration == 0 {
		c.OODA.PhaseTimeouts.Acting.Duration = oodaDefaults.Acting
	}
	if c.OODA.PhaseTimeouts.Verifying.Duration == 0 {
		c.OODA.PhaseTimeouts.Verifying.Duration = oodaDefaults.Verifying
	}
	if c.OODA.MaxRetries.Observing == 0 {
		c.OODA.MaxRetries.Observing = 3
	}
	if c.OODA.MaxRetries.Orienting == 0 {
		c.OODA.MaxRetries.Orienting = 3
	}
	if c.OODA.MaxRetries.Deciding == 0 {
		c.OODA.MaxRetries.Deciding = 3
	}
	if c.OODA.MaxRetries.Acting == 0 {
		c.OODA.MaxRetries.Acting = 3
	}
	if c.OODA.MaxRetries.Verifying == 0 {
		c.OODA.MaxRetries.Verifying = 3
	}

	if c.Investigation.ConfidenceThreshold == 0 {
		c.Investigation.ConfidenceThreshold = 0.7
	}
	if c.Investigation.MaxActionsPerIncident == 0 {
		c.Investigation.MaxActionsPerIncident = 5
	}
	if c.Investigation.ActionCooldown.Duration == 0 {
		c.Investigation.ActionCooldown.Duration = 60 * time.Second
	}
	if c.Investigation.VerificationWait.Duration == 0 {
		c.Investigation.VerificationWait.Duration = 5 * time.Second
	}
	if c.Investigation.MaxVerificationAttempts == 0 {
		c.Investigation.MaxVerificationAttempts = 3
	}
	if c.Investigation.StaleThreshold.Duration == 0 {
		c.Investigation.StaleThreshold.Duration = investigation.DefaultStaleThreshold
	}

	if c.Rollback.MaxRollbacksPerIncident == 0 {
		c.Rollback.MaxRollbacksPerIncident = 5
	}
	if c.Rollback.RollbackCooldown.Duration == 0 {
		c.Rollback.RollbackCooldown.Duration = 60 * time.Second
	}
	if c.Rollback.EscalationThreshold == 0 {
		c.Rollback.EscalationThreshold = 5
	}

	if c.EditLock.Timeout.Duration == 0 {
		c.EditLock.Timeout.Duration = 30 * time.Minute
	}
	if c.EditLock.ExtendOnActivity.Duration == 0 {
		c.EditLock.ExtendOnActivity.Duration = 5 * time.Minute
	}
	if c.EditLock.MaxExtensions == 0 {
		c.EditLock.MaxExtensions = 6
	}
	if c.EditLock.HeartbeatInterval.Duration == 0 {
		c.EditLock.HeartbeatInterval.Duration = 30 * time.Second
	}
	if c.EditLock.KeyPrefix == "" {
		c.EditLock.KeyPrefix = "chronosops:editlock:"
	}

	if c.Build.WorkDir == "" {
		c.Build.WorkDir = os.TempDir()
	}
	buildDefaults := build.DefaultStageTimeouts()
	if c.Build.StageTimeouts.Installing.Duration == 0 {
		c.Build.StageTimeouts.Installing.Duration = buildDefaults.Installing
	}
	if c.Build.StageTimeouts.Linting.Duration == 0 {
		c.Build.StageTimeouts.Linting.Duration = buildDefaults.Linting
	}
	if c.Build.StageTimeouts.Testing.Duration == 0 {
		c.Build.StageTimeouts.Testing.Duration = buildDefaults.Testing
	}
	if c.Build.StageTimeouts.Building.Duration == 0 {
		c.Build.StageTimeouts.Building.Duration = buildDefaults.Building
	}
	if c.Build.StageTimeouts.Pushing.Duration == 0 {
		c.Build.StageTimeouts.Pushing.Duration = buildDefaults.Pushing
	}
}

var structValidator = validator.New()

// validate checks the struct-tag invariants beyond what applyDefaults can
// paper over. It performs no cross-field checks.
func validate(c *Config) error {
	if err := structValidator.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Load reads, parses, defaults, and validates the YAML file at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
