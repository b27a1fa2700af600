package app

import (
	"fmt"
	"strings"

	"marketgen/pkg/domain"
)

const contentSystemPromptTemplate = `你是一名顶级的营销策划专家和内容创作者，尤其擅长根据简单的客户需求，快速构思并撰写适用于多个营销渠道的全套宣传物料。

现在，请根据以下客户需求，为我生成一套完整的营销内容。请严格按照下面指定的JSON格式输出，确保每个字段都内容详实且符合渠道调性。

**输出风格要求**："%s"

**重要内容要求**：
1. 输出的文本内容（如text、voiceover等）必须是纯文本，**严禁使用Markdown格式符号**（如 **加粗**、## 标题、- 列表符等）。
2. 请直接使用自然的段落和标点符号来组织内容。

**请按以下JSON格式输出**：
{
  "prospectus": {
    "title": "招商文案标题",
    "sections": [
      {"subtitle": "一、项目概览", "text": "项目背景、定位和核心价值的详细介绍"},
      {"subtitle": "二、核心优势", "text": "分点阐述项目的地理位置、政策支持、产业生态、人才资源等核心优势"},
      {"subtitle": "三、合作模式与入驻流程", "text": "说明合作方式、优惠政策以及详细的入驻申请流程"},
      {"subtitle": "四、联系我们", "text": "提供联系方式和地址"}
    ]
  },
  "videoScript": {
    "title": "短视频标题",
    "totalDuration": 60,
    "scenes": [
      {
        "sceneNumber": 1,
        "duration": 5,
        "visuals": "镜头画面描述",
        "voiceover": "旁白或台词",
        "bgmSuggestion": "背景音乐风格建议"
      }
    ]
  },
  "posterElements": {
    "mainHeadline": "海报主标题",
    "subHeadline": "副标题",
    "bodyText": "核心宣传语或活动详情",
    "callToAction": "引导用户行动的文字"
  }
}`

const platformSystemPromptTemplate = `你是一名资深的新媒体运营专家，擅长将营销内容适配到不同平台。请根据原始内容，为指定的平台生成适配版本。

风格要求：%s

**重要内容要求**：
1. 输出的文本内容必须是纯文本，**严禁使用Markdown格式符号**（如 **加粗**、## 标题、- 列表符等）。
2. 即使是列点，也请使用数字序号或直接分行，不要使用Markdown的列表符号。
3. 表情符号（emoji）可以使用。

请为以下平台生成适配内容，严格按照JSON格式输出：
%s

输出格式：
{
  "platforms": {
    "平台名称": {
      "title": "标题",
      "content": "正文内容",
      "hashtags": ["标签1", "标签2"]
    }
  }
}`

const (
	contentUserPrefix  = "客户核心需求："
	platformUserPrefix = "原始内容："
)

func contentSystemPrompt(style domain.Style) string {
	return fmt.Sprintf(contentSystemPromptTemplate, style)
}

func platformSystemPrompt(style domain.Style, platforms []domain.Platform) string {
	lines := make([]string, 0, len(platforms))
	for _, p := range platforms {
		lines = append(lines, fmt.Sprintf("- %s：%s", p, p.Rule()))
	}
	return fmt.Sprintf(platformSystemPromptTemplate, style, strings.Join(lines, "\n"))
}

func posterPrompt(style domain.Style, mainHeadline, subHeadline, bodyText string) string {
	return fmt.Sprintf(`Professional marketing poster design, %s.
Main headline: "%s"
Subtitle: "%s"
Body text: "%s"
Requirements: clean typography, professional layout, high contrast text, modern design, 8k quality, no text distortion`,
		style.PosterPhrase(), mainHeadline, subHeadline, bodyText)
}

// flattenProspectus renders sections the way the web client sends them for adaptation.
func flattenProspectus(p *domain.Prospectus) string {
	if p == nil {
		return ""
	}
	parts := make([]string, 0, len(p.Sections))
	for _, s := range p.Sections {
		parts = append(parts, s.Subtitle+"\n"+s.Text)
	}
	return strings.Join(parts, "\n\n")
}
