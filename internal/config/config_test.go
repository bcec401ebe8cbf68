package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestConfig(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Config Suite")
}

var _ = Describe("Load", func() {
	var (
		tempDir    string
		configFile string
	)

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "chronosops-config-test")
		Expect(err).NotTo(HaveOccurred())
		configFile = filepath.Join(tempDir, "config.yaml")
	})

	AfterEach(func() {
		os.RemoveAll(tempDir)
	})

	Context("when the file has full content", func() {
		BeforeEach(func() {
			full := `
server:
  webhook_port: "8080"
  metrics_port: "9090"

logging:
  level: "debug"
  format: "text"

ooda:
  phase_timeouts:
    observing: "45s"
    acting: "120s"
  max_retries:
    observing: 5

investigation:
  confidence_threshold: 0.8
  max_actions_per_incident: 3
  action_cooldown: "30s"

rollback:
  policy:
    require_approval: true
    protected_namespaces: ["prod", "staging"]
  max_rollbacks_per_incident: 2
  rollback_cooldown: "90s"
  escalation_threshold: 4

edit_lock:
  timeout: "15m"
  max_extensions: 4

build:
  registry: "registry.internal/chronosops"
  required_coverage: 80
`
			Expect(os.WriteFile(configFile, []byte(full), 0o644)).To(Succeed())
		})

		It("loads every section", func() {
			cfg, err := Load(configFile)
			Expect(err).NotTo(HaveOccurred())

			Expect(cfg.Server.WebhookPort).To(Equal("8080"))
			Expect(cfg.Logging.Level).To(Equal("debug"))
			Expect(cfg.OODA.PhaseTimeouts.Observing.Duration).To(Equal(45 * time.Second))
			Expect(cfg.OODA.PhaseTimeouts.Acting.Duration).To(Equal(120 * time.Second))
			Expect(cfg.OODA.MaxRetries.Observing).To(Equal(5))
			Expect(cfg.Investigation.ConfidenceThreshold).To(Equal(0.8))
			Expect(cfg.Rollback.Policy.RequireApproval).To(BeTrue())
			Expect(cfg.Rollback.Policy.ProtectedNamespaces).To(ContainElements("prod", "staging"))
			Expect(cfg.EditLock.Timeout.Duration).To(Equal(15 * time.Minute))
			Expect(cfg.Build.Registry).To(Equal("registry.internal/chronosops"))
		})

		It("converts cleanly to each component's own Config type", func() {
			cfg, err := Load(configFile)
			Expect(err).NotTo(HaveOccurred())

			oodaCfg := cfg.OODA.ToOODAConfig()
			Expect(oodaCfg.PhaseTimeouts.Observing).To(Equal(45 * time.Second))

			invCfg := cfg.Investigation.ToInvestigationConfig()
			Expect(invCfg.ConfidenceThreshold).To(Equal(0.8))

			rbCfg := cfg.Rollback.ToRollbackConfig()
			Expect(rbCfg.Policy.RequireApproval).To(BeTrue())

			elCfg := cfg.EditLock.ToEditLockConfig()
			Expect(elCfg.MaxExtensions).To(Equal(4))

			buildCfg := cfg.Build.ToBuildConfig()
			Expect(buildCfg.Registry).To(Equal("registry.internal/chronosops"))
		})
	})

	Context("when the file has minimal content", func() {
		BeforeEach(func() {
			minimal := `
server:
  webhook_port: "3000"
`
			Expect(os.WriteFile(configFile, []byte(minimal), 0o644)).To(Succeed())
		})

		It("fills in defaults for every omitted section", func() {
			cfg, err := Load(configFile)
			Expect(err).NotTo(HaveOccurred())

			Expect(cfg.Server.WebhookPort).To(Equal("3000"))
			Expect(cfg.Server.MetricsPort).To(Equal("9090"))
			Expect(cfg.OODA.PhaseTimeouts.Acting.Duration).To(Equal(300 * time.Second))
			Expect(cfg.Investigation.StaleThreshold.Duration).To(Equal(60 * time.Second))
			Expect(cfg.EditLock.MaxExtensions).To(Equal(6))
			Expect(cfg.Build.StageTimeouts.Building.Duration).To(Equal(10 * time.Minute))
		})
	})

	Context("when the file does not exist", func() {
		It("returns an error", func() {
			_, err := Load(filepath.Join(tempDir, "missing.yaml"))
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("failed to read config file"))
		})
	})

	Context("when the YAML is malformed", func() {
		BeforeEach(func() {
			Expect(os.WriteFile(configFile, []byte("server: [not: valid"), 0o644)).To(Succeed())
		})

		It("returns a parse error", func() {
			_, err := Load(configFile)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("failed to parse config file"))
		})
	})

	Context("when a required field is missing", func() {
		BeforeEach(func() {
			Expect(os.WriteFile(configFile, []byte("logging:\n  level: info\n"), 0o644)).To(Succeed())
		})

		It("fails validation", func() {
			_, err := Load(configFile)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("invalid configuration"))
		})
	})
})
