package service

import (
	"context"

	"procsight/internal/dto"
	"procsight/internal/mapper"
	"procsight/pkg/chat"
)

type IChatService interface {
	Send(ctx context.Context, req *dto.SendChatRequest) (*dto.SendChatResponse, error)
	History(ctx context.Context) *dto.ChatHistoryResponse
	Preview(ctx context.Context, question string) *dto.PromptPreviewResponse
}

type chatService struct {
	controller *chat.Controller
	mapper     *mapper.ChatMapper
}

func NewChatService(controller *chat.Controller) IChatService {
	return &chatService{
		controller: controller,
		mapper:     mapper.NewChatMapper(),
	}
}

func (s *chatService) Send(ctx context.Context, req *dto.SendChatRequest) (*dto.SendChatResponse, error) {
	reply, err := s.controller.Submit(ctx, req.Message)
	if err != nil {
		return nil, err
	}
	return &dto.SendChatResponse{
		Reply:   s.mapper.MessageToResponse(reply),
		Notice:  s.controller.Notice(),
		Backend: s.controller.BackendName(),
	}, nil
}

func (s *chatService) History(ctx context.Context) *dto.ChatHistoryResponse {
	return &dto.ChatHistoryResponse{
		Messages: s.mapper.MessagesToResponses(s.controller.History()),
		Notice:   s.controller.Notice(),
		Busy:     s.controller.Busy(),
		Backend:  s.controller.BackendName(),
	}
}

func (s *chatService) Preview(ctx context.Context, question string) *dto.PromptPreviewResponse {
	return s.mapper.PromptToPreview(s.controller.Preview(ctx, question))
}
