package mapper

import (
	"procsight/internal/dto"
	"procsight/pkg/chat"
	"procsight/pkg/prompt"
)

type ChatMapper struct{}

func NewChatMapper() *ChatMapper {
	return &ChatMapper{}
}

func (m *ChatMapper) MessageToResponse(msg chat.Message) dto.ChatMessageResponse {
	return dto.ChatMessageResponse{
		Id:        msg.ID,
		Role:      msg.Role,
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
	}
}

func (m *ChatMapper) MessagesToResponses(msgs []chat.Message) []dto.ChatMessageResponse {
	out := make([]dto.ChatMessageResponse, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, m.MessageToResponse(msg))
	}
	return out
}

func (m *ChatMapper) PromptToPreview(p prompt.Prompt) *dto.PromptPreviewResponse {
	return &dto.PromptPreviewResponse{
		Prompt:          p.Text,
		EstimatedTokens: p.EstimatedTokens,
	}
}
