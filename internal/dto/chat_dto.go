package dto

import "time"

type SendChatRequest struct {
	Message string `json:"message" validate:"required,max=4000"`
}

type ChatMessageResponse struct {
	Id        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type SendChatResponse struct {
	Reply   ChatMessageResponse `json:"reply"`
	Notice  string              `json:"notice,omitempty"`
	Backend string              `json:"backend"`
}

type ChatHistoryResponse struct {
	Messages []ChatMessageResponse `json:"messages"`
	Notice   string                `json:"notice,omitempty"`
	Busy     bool                  `json:"busy"`
	Backend  string                `json:"backend"`
}

type PromptPreviewResponse struct {
	Prompt          string `json:"prompt"`
	EstimatedTokens int    `json:"estimated_tokens"`
}
