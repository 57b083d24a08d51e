package notify

import "fmt"

// Text is a Block Kit text object.
type Text struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Block is a Block Kit layout block.
type Block struct {
	Type     string `json:"type"`
	Text     *Text  `json:"text,omitempty"`
	Fields   []Text `json:"fields,omitempty"`
	Elements []Text `json:"elements,omitempty"`
}

// Blocks renders a as Slack Block Kit blocks.
func Blocks(env, fingerprint string, a Alert) []Block {
	title := a.Title
	if title == "" {
		title = "Error"
	}

	blocks := []Block{
		{Type: "header", Text: &Text{Type: "plain_text", Text: fmt.Sprintf("🚨 [%s] %s", env, title)}},
		{Type: "section", Fields: []Text{
			mrkdwn(fmt.Sprintf("*error_class:*\n`%s`", a.ErrorClass)),
			mrkdwn(fmt.Sprintf("*request_id:*\n`%s`", orDash(a.RequestID))),
			mrkdwn(fmt.Sprintf("*forward_id:*\n`%s`", orDash(a.ForwardID))),
			mrkdwn(fmt.Sprintf("*fingerprint:*\n`%s`", short(fingerprint))),
		}},
		{Type: "section", Text: ptr(mrkdwn(fmt.Sprintf("*message:*\n```%s```", Scrub(a.Message))))},
	}
	if a.Hint != "" {
		blocks = append(blocks, Block{Type: "context", Elements: []Text{mrkdwn("*hint:* " + Scrub(a.Hint))}})
	}
	return blocks
}

func mrkdwn(s string) Text { return Text{Type: "mrkdwn", Text: s} }

func ptr(t Text) *Text { return &t }

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func short(fp string) string {
	if len(fp) > 8 {
		return fp[:8]
	}
	return fp
}
