package domain

import "fmt"

// Style is the tone requested for generated copy.
type Style uint8

const (
	StyleProfessional Style = iota // 专业稳重
	StyleCreative                  // 活泼创意
	StyleTech                      // 科技感
	StyleMinimal                   // 简约大气
	StyleWarm                      // 温馨亲切
	styleCount
)

type styleInfo struct {
	label       string
	posterStyle string
}

var styleTable = [...]styleInfo{
	StyleProfessional: {"专业稳重", "professional corporate style, clean layout, blue and white color scheme"},
	StyleCreative:     {"活泼创意", "vibrant creative style, colorful, dynamic composition, playful elements"},
	StyleTech:         {"科技感", "futuristic tech style, dark background, neon accents, geometric shapes"},
	StyleMinimal:      {"简约大气", "minimalist elegant style, lots of white space, subtle colors"},
	StyleWarm:         {"温馨亲切", "warm friendly style, soft colors, rounded shapes, inviting atmosphere"},
}

// Fails to compile unless styleTable has exactly one entry per Style.
var _ = [1]struct{}{}[len(styleTable)-int(styleCount)]

const defaultPosterStyle = "modern style"

// Styles lists every style in declaration order.
func Styles() []Style {
	out := make([]Style, 0, styleCount)
	for s := Style(0); s < styleCount; s++ {
		out = append(out, s)
	}
	return out
}

// ParseStyle resolves a style label.
func ParseStyle(label string) (Style, error) {
	for i, info := range styleTable {
		if info.label == label {
			return Style(i), nil
		}
	}
	return 0, fmt.Errorf("unknown style %q", label)
}

func (s Style) Valid() bool { return s < styleCount }

func (s Style) String() string {
	if !s.Valid() {
		return fmt.Sprintf("Style(%d)", uint8(s))
	}
	return styleTable[s].label
}

// PosterPhrase is the English design description used in image prompts.
func (s Style) PosterPhrase() string {
	if !s.Valid() {
		return defaultPosterStyle
	}
	return styleTable[s].posterStyle
}

func (s Style) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid style %d", uint8(s))
	}
	return []byte(styleTable[s].label), nil
}

func (s *Style) UnmarshalText(text []byte) error {
	parsed, err := ParseStyle(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Platform is a social channel that content can be adapted for.
type Platform uint8

const (
	PlatformWeChat Platform = iota // 微信公众号
	PlatformXiaohongshu            // 小红书
	PlatformDouyin                 // 抖音
	PlatformWeibo                  // 微博
	PlatformZhihu                  // 知乎
	platformCount
)

type platformInfo struct {
	label string
	rule  string
}

var platformTable = [...]platformInfo{
	PlatformWeChat:      {"微信公众号", "适合深度阅读，可以较长，需要有吸引人的开头和结尾，适当使用emoji，段落清晰"},
	PlatformXiaohongshu: {"小红书", "简短精炼，使用大量emoji，分点列出，标题要吸睛，适合种草风格，控制在500字以内"},
	PlatformDouyin:      {"抖音", "极简文案，适合配合短视频，突出重点，使用流行语，控制在100字以内"},
	PlatformWeibo:       {"微博", "简洁有力，适合快速传播，可以使用话题标签#，控制在140字以内"},
	PlatformZhihu:       {"知乎", "专业深度，逻辑清晰，可以较长，适合问答形式，引用数据和案例"},
}

var _ = [1]struct{}{}[len(platformTable)-int(platformCount)]

// Platforms lists every platform in declaration order.
func Platforms() []Platform {
	out := make([]Platform, 0, platformCount)
	for p := Platform(0); p < platformCount; p++ {
		out = append(out, p)
	}
	return out
}

// ParsePlatform resolves a platform label.
func ParsePlatform(label string) (Platform, error) {
	for i, info := range platformTable {
		if info.label == label {
			return Platform(i), nil
		}
	}
	return 0, fmt.Errorf("unknown platform %q", label)
}

func (p Platform) Valid() bool { return p < platformCount }

func (p Platform) String() string {
	if !p.Valid() {
		return fmt.Sprintf("Platform(%d)", uint8(p))
	}
	return platformTable[p].label
}

// Rule is the tone/length constraint given to the model for this platform.
func (p Platform) Rule() string {
	if !p.Valid() {
		return ""
	}
	return platformTable[p].rule
}

func (p Platform) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("invalid platform %d", uint8(p))
	}
	return []byte(platformTable[p].label), nil
}

func (p *Platform) UnmarshalText(text []byte) error {
	parsed, err := ParsePlatform(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

type AssetType string

const (
	AssetLogo  AssetType = "logo"
	AssetColor AssetType = "color"
	AssetImage AssetType = "image"
	AssetFont  AssetType = "font"
)

// ParseAssetType accepts the four known asset kinds.
func ParseAssetType(raw string) (AssetType, bool) {
	switch AssetType(raw) {
	case AssetLogo, AssetColor, AssetImage, AssetFont:
		return AssetType(raw), true
	default:
		return "", false
	}
}

// UsesValue reports whether the asset is described by Value rather than URL.
func (t AssetType) UsesValue() bool { return t == AssetColor }
