package llm

// Provider is a preset OpenAI-compatible endpoint.
type Provider struct {
	BaseURL      string
	DefaultModel string
}

// Providers maps preset names accepted by the --provider flag to their
// chat-completions base URL and default model. Any other endpoint can be
// reached with an explicit --base-url.
var Providers = map[string]Provider{
	"openai": {
		BaseURL:      "https://api.openai.com/v1",
		DefaultModel: "gpt-4o",
	},
	"deepseek": {
		BaseURL:      "https://api.deepseek.com/v1",
		DefaultModel: "deepseek-chat",
	},
	"qwen": {
		BaseURL:      "https://dashscope.aliyuncs.com/compatible-mode/v1",
		DefaultModel: "qwen-plus",
	},
	"moonshot": {
		BaseURL:      "https://api.moonshot.cn/v1",
		DefaultModel: "moonshot-v1-8k",
	},
	"glm": {
		BaseURL:      "https://open.bigmodel.cn/api/paas/v4",
		DefaultModel: "glm-4",
	},
}
