package timeline

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestTimeline(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Timeline Suite")
}

var _ = Describe("decodeJSONColumn", func() {
	It("decodes a well-formed column", func() {
		var dst map[string]interface{}
		ok := decodeJSONColumn([]byte(`{"a":1}`), &dst)
		Expect(ok).To(BeTrue())
		Expect(dst["a"]).To(Equal(1.0))
	})

	It("reports absent for an empty column", func() {
		var dst map[string]interface{}
		Expect(decodeJSONColumn(nil, &dst)).To(BeFalse())
		Expect(decodeJSONColumn([]byte{}, &dst)).To(BeFalse())
	})

	It("reports absent rather than erroring on malformed JSON", func() {
		var dst map[string]interface{}
		Expect(decodeJSONColumn([]byte(`{not json`), &dst)).To(BeFalse())
	})
})

var _ = Describe("encodeJSONColumn", func() {
	It("round-trips through decodeJSONColumn", func() {
		raw := encodeJSONColumn(map[string]interface{}{"x": "y"})
		var dst map[string]interface{}
		Expect(decodeJSONColumn(raw, &dst)).To(BeTrue())
		Expect(dst["x"]).To(Equal("y"))
	})
})
