package config

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.FatalLevel)
	return l
}

var _ = Describe("Watcher", func() {
	var (
		tempDir    string
		configFile string
	)

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "chronosops-watch-test")
		Expect(err).NotTo(HaveOccurred())
		configFile = filepath.Join(tempDir, "config.yaml")
		Expect(os.WriteFile(configFile, []byte("server:\n  webhook_port: \"8080\"\n"), 0o644)).To(Succeed())
	})

	AfterEach(func() {
		os.RemoveAll(tempDir)
	})

	It("reloads and notifies listeners when the file changes", func() {
		w, err := NewWatcher(configFile, quietLogger())
		Expect(err).NotTo(HaveOccurred())
		Expect(w.Current().Server.WebhookPort).To(Equal("8080"))

		var received *Config
		w.Subscribe(func(c *Config) { received = c })

		stop := make(chan struct{})
		Expect(w.Watch(stop)).To(Succeed())
		defer close(stop)

		Expect(os.WriteFile(configFile, []byte("server:\n  webhook_port: \"9999\"\n"), 0o644)).To(Succeed())

		Eventually(func() string {
			return w.Current().Server.WebhookPort
		}, 3*time.Second, 50*time.Millisecond).Should(Equal("9999"))
		Expect(received).NotTo(BeNil())
		Expect(received.Server.WebhookPort).To(Equal("9999"))
	})

	It("keeps the previous configuration when a reload produces malformed YAML", func() {
		w, err := NewWatcher(configFile, quietLogger())
		Expect(err).NotTo(HaveOccurred())

		stop := make(chan struct{})
		Expect(w.Watch(stop)).To(Succeed())
		defer close(stop)

		Expect(os.WriteFile(configFile, []byte("server: [broken"), 0o644)).To(Succeed())

		Consistently(func() string {
			return w.Current().Server.WebhookPort
		}, 500*time.Millisecond, 50*time.Millisecond).Should(Equal("8080"))
	})
})
