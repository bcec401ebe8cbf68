package ooda_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestOODA(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "OODA StateMachine Suite")
}
