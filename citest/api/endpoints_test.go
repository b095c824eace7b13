package api_test

import (
	"fmt"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/waveline-ai/waveline/pkg/types"
)

var _ = Describe("Health", func() {
	It("answers ok", func() {
		resp, err := client.Get(ctx, "/health")
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(200))

		var body map[string]string
		Expect(resp.JSON(&body)).To(Succeed())
		Expect(body).To(HaveKeyWithValue("status", "ok"))
	})
})

var _ = Describe("MCP Servers", func() {
	type serverStatus struct {
		Name      string `json:"name"`
		State     string `json:"state"`
		ToolCount int    `json:"toolCount"`
	}

	Describe("GET /api/servers", func() {
		It("reports the echo fixture as connected", func() {
			resp, err := client.Get(ctx, "/api/servers")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(200))

			var servers []serverStatus
			Expect(resp.JSON(&servers)).To(Succeed())

			var echo *serverStatus
			for i := range servers {
				if servers[i].Name == "echo" {
					echo = &servers[i]
					break
				}
			}
			Expect(echo).NotTo(BeNil(), "echo fixture should be listed")
			Expect(echo.State).To(Equal("connected"))
			Expect(echo.ToolCount).To(Equal(1))
		})
	})

	Describe("GET /api/servers/{name}/tools", func() {
		It("lists the namespaced catalog", func() {
			resp, err := client.Get(ctx, "/api/servers/echo/tools")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(200))

			var tools []types.ToolDescriptor
			Expect(resp.JSON(&tools)).To(Succeed())
			Expect(tools).To(HaveLen(1))
			Expect(tools[0].Name).To(Equal("echo_echo"))
			Expect(tools[0].Server).To(Equal("echo"))
			Expect(tools[0].Description).NotTo(BeEmpty())
		})

		It("404s for an unknown server", func() {
			resp, err := client.Get(ctx, "/api/servers/ghost/tools")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(404))
			Expect(resp.ErrorCode()).To(Equal("NOT_FOUND"))
			Expect(resp.ErrorMessage()).To(ContainSubstring("ghost"))
		})
	})

	Describe("POST /api/servers/{name}/call", func() {
		It("round-trips a tool call through the fixture", func() {
			resp, err := client.Post(ctx, "/api/servers/echo/call", map[string]any{
				"tool":      "echo_echo",
				"arguments": map[string]string{"text": "round trip"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(200))

			var result struct {
				Content []struct {
					Type string `json:"type"`
					Text string `json:"text"`
				} `json:"content"`
				IsError    bool  `json:"isError"`
				DurationMS int64 `json:"durationMs"`
			}
			Expect(resp.JSON(&result)).To(Succeed())
			Expect(result.IsError).To(BeFalse())
			Expect(result.Content).To(HaveLen(1))
			Expect(result.Content[0].Text).To(MatchJSON(`{"text": "round trip"}`))
		})

		It("rejects a malformed body", func() {
			resp, err := client.PostRaw(ctx, "/api/servers/echo/call", "not json")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(400))
			Expect(resp.ErrorCode()).To(Equal("INVALID_REQUEST"))
		})

		It("rejects a missing tool name", func() {
			resp, err := client.Post(ctx, "/api/servers/echo/call", map[string]any{
				"arguments": map[string]string{},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(400))
			Expect(resp.ErrorMessage()).To(ContainSubstring("tool is required"))
		})

		It("404s for an unknown server", func() {
			resp, err := client.Post(ctx, "/api/servers/ghost/call", map[string]any{
				"tool": "ghost_echo",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(404))
		})

		It("404s for a tool no server owns", func() {
			resp, err := client.Post(ctx, "/api/servers/echo/call", map[string]any{
				"tool": "other_echo",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(404))
			Expect(resp.ErrorMessage()).To(ContainSubstring("no server found"))
		})
	})
})

var _ = Describe("Sessions", func() {
	seedSession := func(input, output int) (string, string) {
		dir, err := os.MkdirTemp("", "waveline-project-*")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, dir)

		writer, err := testServer.Sessions.Create(ctx, dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(writer.AppendAssistant("done", "fixture-model", "end_turn", types.TokenUsage{
			InputTokens:  input,
			OutputTokens: output,
		})).To(Succeed())
		return writer.SessionID(), dir
	}

	Describe("GET /api/sessions", func() {
		It("lists a recorded session with its usage", func() {
			id, dir := seedSession(120, 40)

			resp, err := client.Get(ctx, "/api/sessions")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(200))

			var sessions []*types.Session
			Expect(resp.JSON(&sessions)).To(Succeed())

			var found *types.Session
			for _, s := range sessions {
				if s.ID == id {
					found = s
					break
				}
			}
			Expect(found).NotTo(BeNil(), fmt.Sprintf("session %s should be listed", id))
			Expect(found.ProjectPath).To(Equal(dir))
			Expect(found.Entries).To(Equal(1))
			Expect(found.Usage.InputTokens).To(Equal(120))
			Expect(found.Usage.OutputTokens).To(Equal(40))
		})
	})

	Describe("GET /api/sessions/{id}/usage", func() {
		It("returns the token breakdown", func() {
			id, _ := seedSession(17, 8)

			resp, err := client.Get(ctx, "/api/sessions/"+id+"/usage")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(200))

			var usage types.TokenUsage
			Expect(resp.JSON(&usage)).To(Succeed())
			Expect(usage.InputTokens).To(Equal(17))
			Expect(usage.OutputTokens).To(Equal(8))
		})

		It("404s for an unknown session", func() {
			resp, err := client.Get(ctx, "/api/sessions/no-such-session/usage")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(404))
			Expect(resp.ErrorCode()).To(Equal("NOT_FOUND"))
		})
	})
})
