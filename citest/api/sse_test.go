package api_test

import (
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/waveline-ai/waveline/citest/testutil"
	"github.com/waveline-ai/waveline/internal/event"
)

var _ = Describe("Event Stream", func() {
	It("greets with server.connected and relays bus events", func() {
		sse := testutil.NewSSEClient(testServer.BaseURL)
		Expect(sse.Connect(ctx, "/events")).To(Succeed())
		defer sse.Close()

		// The hello is written after the subscription is registered,
		// so events published once it arrives cannot be missed.
		_, err := sse.WaitForEvent("server.connected", 5*time.Second)
		Expect(err).NotTo(HaveOccurred())

		event.PublishSync(event.Event{
			Type: event.GateResolved,
			Data: event.GateResolvedData{Gate: "citest", Passed: true, Required: true},
		})

		evt, err := sse.WaitForEvent("gate.resolved", 5*time.Second)
		Expect(err).NotTo(HaveOccurred())

		var data struct {
			Gate     string `json:"gate"`
			Passed   bool   `json:"passed"`
			Required bool   `json:"required"`
		}
		Expect(json.Unmarshal(evt.Properties, &data)).To(Succeed())
		Expect(data.Gate).To(Equal("citest"))
		Expect(data.Passed).To(BeTrue())
		Expect(data.Required).To(BeTrue())
	})

	It("serves concurrent subscribers the same events", func() {
		first := testutil.NewSSEClient(testServer.BaseURL)
		Expect(first.Connect(ctx, "/events")).To(Succeed())
		defer first.Close()

		second := testutil.NewSSEClient(testServer.BaseURL)
		Expect(second.Connect(ctx, "/events")).To(Succeed())
		defer second.Close()

		_, err := first.WaitForEvent("server.connected", 5*time.Second)
		Expect(err).NotTo(HaveOccurred())
		_, err = second.WaitForEvent("server.connected", 5*time.Second)
		Expect(err).NotTo(HaveOccurred())

		event.PublishSync(event.Event{
			Type: event.WaveStarted,
			Data: event.WaveStartedData{RunID: "run-42", Wave: "deploy", Index: 1, Total: 3},
		})

		for _, c := range []*testutil.SSEClient{first, second} {
			evt, err := c.WaitForEvent("wave.started", 5*time.Second)
			Expect(err).NotTo(HaveOccurred())

			var data struct {
				RunID string `json:"runID"`
				Wave  string `json:"wave"`
			}
			Expect(json.Unmarshal(evt.Properties, &data)).To(Succeed())
			Expect(data.RunID).To(Equal("run-42"))
			Expect(data.Wave).To(Equal("deploy"))
		}
	})
})
