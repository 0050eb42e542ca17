package provider

import (
	"fmt"
	"net/url"
	"strings"
)

// WireAPI 上游提供方使用的请求协议
type WireAPI int

const (
	// WireChat OpenAI 风格的 /chat/completions
	WireChat WireAPI = iota
	// WireResponse OpenAI 风格的 /responses
	WireResponse
)

// String returns "chat" or "response".
func (w WireAPI) String() string {
	switch w {
	case WireChat:
		return "chat"
	case WireResponse:
		return "response"
	default:
		return fmt.Sprintf("WireAPI(%d)", int(w))
	}
}

// ParseWireAPI 解析协议名，大小写不敏感
func ParseWireAPI(s string) (WireAPI, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "chat":
		return WireChat, nil
	case "response", "responses":
		return WireResponse, nil
	default:
		return 0, fmt.Errorf("unknown wire api %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (w WireAPI) MarshalText() ([]byte, error) {
	if w != WireChat && w != WireResponse {
		return nil, fmt.Errorf("invalid wire api %d", int(w))
	}
	return []byte(w.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (w *WireAPI) UnmarshalText(text []byte) error {
	v, err := ParseWireAPI(string(text))
	if err != nil {
		return err
	}
	*w = v
	return nil
}

// ProviderInfo 上游提供方的基本信息
type ProviderInfo struct {
	BaseURL string  `json:"base_url" yaml:"base_url"`
	Name    string  `json:"name" yaml:"name"`
	WireAPI WireAPI `json:"wire_api" yaml:"wire_api"`
}

// Validate 检查名称非空且 BaseURL 为绝对 http(s) 地址
func (p ProviderInfo) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("provider name is required")
	}
	u, err := url.Parse(p.BaseURL)
	if err != nil {
		return fmt.Errorf("provider %s: invalid base_url: %w", p.Name, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("provider %s: base_url must be an absolute http(s) URL", p.Name)
	}
	return nil
}

// Endpoint 返回该协议对应的完整请求地址
func (p ProviderInfo) Endpoint() string {
	base := strings.TrimRight(p.BaseURL, "/")
	if p.WireAPI == WireResponse {
		return base + "/responses"
	}
	return base + "/chat/completions"
}

// LLMProvider 上游模型提供方。网关目前只声明该抽象，不做跨提供方路由。
type LLMProvider interface {
	Info() ProviderInfo
}

// Static 是只携带配置信息的 LLMProvider
type Static struct {
	info ProviderInfo
}

// NewStatic 校验 info 并创建 Static
func NewStatic(info ProviderInfo) (*Static, error) {
	if err := info.Validate(); err != nil {
		return nil, err
	}
	return &Static{info: info}, nil
}

// Info implements LLMProvider.
func (s *Static) Info() ProviderInfo { return s.info }

var _ LLMProvider = (*Static)(nil)
