package message

import (
	"encoding/json"
	"fmt"
)

// Block type discriminants.
const (
	BlockTypeText       = "text"
	BlockTypeThinking   = "thinking"
	BlockTypeToolUse    = "tool_use"
	BlockTypeToolResult = "tool_result"
)

// Block is one element of a message's content array.
type Block interface {
	BlockType() string
}

// Compile-time verification that all block types implement Block.
var (
	_ Block = (*TextBlock)(nil)
	_ Block = (*ThinkingBlock)(nil)
	_ Block = (*ToolUseBlock)(nil)
	_ Block = (*ToolResultBlock)(nil)
	_ Block = (*OtherBlock)(nil)
)

// TextBlock is plain text.
type TextBlock struct {
	Text string `json:"text"`
}

// BlockType implements Block.
func (*TextBlock) BlockType() string { return BlockTypeText }

// ThinkingBlock is the model's extended thinking.
type ThinkingBlock struct {
	Thinking  string `json:"thinking"`
	Signature string `json:"signature"`
}

// BlockType implements Block.
func (*ThinkingBlock) BlockType() string { return BlockTypeThinking }

// ToolUseBlock is a tool invocation by the model.
type ToolUseBlock struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

// BlockType implements Block.
func (*ToolUseBlock) BlockType() string { return BlockTypeToolUse }

// ToolResultBlock carries a tool's output back to the model. String content
// is normalized to a single TextBlock.
//
//nolint:tagliatelle // peer uses snake_case
type ToolResultBlock struct {
	ToolUseID string  `json:"tool_use_id"`
	Content   []Block `json:"-"`
	IsError   bool    `json:"is_error,omitempty"`
}

// BlockType implements Block.
func (*ToolResultBlock) BlockType() string { return BlockTypeToolResult }

// UnmarshalJSON accepts string or array content.
func (b *ToolResultBlock) UnmarshalJSON(data []byte) error {
	type plain ToolResultBlock

	aux := struct {
		*plain
		Content json.RawMessage `json:"content"`
	}{plain: (*plain)(b)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	blocks, err := decodeContent(aux.Content)
	if err != nil {
		return fmt.Errorf("tool_result content: %w", err)
	}

	b.Content = blocks

	return nil
}

// OtherBlock is a block type this package does not model.
type OtherBlock struct {
	Type string
	Raw  json.RawMessage
}

// BlockType implements Block.
func (b *OtherBlock) BlockType() string { return b.Type }

// DecodeBlock decodes one content block.
func DecodeBlock(data json.RawMessage) (Block, error) {
	var head struct {
		Type string `json:"type"`
	}

	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}

	var block Block

	switch head.Type {
	case BlockTypeText:
		block = &TextBlock{}
	case BlockTypeThinking:
		block = &ThinkingBlock{}
	case BlockTypeToolUse:
		block = &ToolUseBlock{}
	case BlockTypeToolResult:
		block = &ToolResultBlock{}
	default:
		return &OtherBlock{Type: head.Type, Raw: append(json.RawMessage(nil), data...)}, nil
	}

	if err := json.Unmarshal(data, block); err != nil {
		return nil, fmt.Errorf("%s block: %w", head.Type, err)
	}

	return block, nil
}

// decodeContent decodes message content, which is either a string or an
// array of blocks.
func decodeContent(data json.RawMessage) ([]Block, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}

	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		return []Block{&TextBlock{Text: text}}, nil
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, err
	}

	blocks := make([]Block, 0, len(raws))

	for _, raw := range raws {
		block, err := DecodeBlock(raw)
		if err != nil {
			return nil, err
		}

		blocks = append(blocks, block)
	}

	return blocks, nil
}
