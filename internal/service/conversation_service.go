package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/shinyyama/demart-backend/internal/model"
	"github.com/shinyyama/demart-backend/internal/realtime"
	"github.com/shinyyama/demart-backend/internal/reqctx"
	"github.com/shinyyama/demart-backend/internal/repository"
)

const (
	maxContentLen              = 2000
	conversationCreatedContent = "conversation created"
)

type SendMessageInput struct {
	ConversationID uint64
	SenderUID      string
	ReceiverUID    string
	Content        string
	Type           model.MessageType
	// Origin is the realtime client the message came from; empty for HTTP.
	Origin string
}

type ConversationSummary struct {
	Conversation model.Conversation
	LastMessage  *model.Message
}

type ConversationService interface {
	CreateOrGet(ctx context.Context, actor, otherUID string, productID uint64) (*model.Conversation, error)
	Ensure(ctx context.Context, userA, userB string, productID uint64) (*model.Conversation, error)
	Get(ctx context.Context, id uint64, actor string) (*model.Conversation, error)
	ListByUser(ctx context.Context, actor string) ([]ConversationSummary, error)
	ListMessages(ctx context.Context, convID uint64, actor string) ([]model.Message, error)
	SendMessage(ctx context.Context, in SendMessageInput) (*model.Message, error)
	PostSystemMessage(ctx context.Context, convID uint64, content string) (*model.Message, error)
}

type conversationService struct {
	convRepo repository.ConversationRepository
	catalog  Catalog
	users    UserDirectory
	notifier realtime.Notifier
}

// NewConversationService wires the store. users may be nil, in which case
// the other party of a new conversation is not checked for existence.
func NewConversationService(convRepo repository.ConversationRepository, catalog Catalog, users UserDirectory, notifier realtime.Notifier) ConversationService {
	return &conversationService{convRepo: convRepo, catalog: catalog, users: users, notifier: notifier}
}

func (s *conversationService) CreateOrGet(ctx context.Context, actor, otherUID string, productID uint64) (*model.Conversation, error) {
	if actor == "" {
		return nil, ErrUnauthorized
	}
	otherUID = strings.TrimSpace(otherUID)
	if otherUID == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrValidation)
	}
	if otherUID == actor {
		return nil, fmt.Errorf("%w: cannot start a conversation with yourself", ErrValidation)
	}
	if ReservedUID(otherUID) {
		return nil, fmt.Errorf("%w: invalid userId", ErrValidation)
	}
	if s.users != nil {
		if _, err := s.users.Lookup(ctx, otherUID); err != nil {
			return nil, err
		}
	}
	if productID != 0 {
		if _, err := s.catalog.Product(ctx, productID); err != nil {
			return nil, err
		}
	}
	return s.Ensure(ctx, actor, otherUID, productID)
}

// Ensure returns the conversation of the pair and product, opening it with a
// system message the first time.
func (s *conversationService) Ensure(ctx context.Context, userA, userB string, productID uint64) (*model.Conversation, error) {
	cv, created, err := s.convRepo.FindOrCreate(ctx, userA, userB, productID)
	if err != nil {
		return nil, err
	}
	if created {
		reqctx.Logger(ctx).Info().Uint64("conversation_id", cv.ID).Uint64("product_id", productID).Msg("conversation created")
		if _, err := s.PostSystemMessage(ctx, cv.ID, conversationCreatedContent); err != nil {
			reqctx.Logger(ctx).Error().Err(err).Uint64("conversation_id", cv.ID).Msg("post conversation created message")
		}
		if fresh, err := s.convRepo.FindByID(ctx, cv.ID); err == nil {
			cv = fresh
		}
	}
	return cv, nil
}

func (s *conversationService) Get(ctx context.Context, id uint64, actor string) (*model.Conversation, error) {
	if actor == "" {
		return nil, ErrUnauthorized
	}
	cv, err := s.convRepo.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	if !cv.HasParticipant(actor) {
		return nil, fmt.Errorf("%w: not a participant", ErrForbidden)
	}
	return cv, nil
}

func (s *conversationService) ListByUser(ctx context.Context, actor string) ([]ConversationSummary, error) {
	if actor == "" {
		return nil, ErrUnauthorized
	}
	convs, err := s.convRepo.FindByUser(ctx, actor)
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, len(convs))
	for _, cv := range convs {
		ids = append(ids, cv.ID)
	}
	last, err := s.convRepo.LastMessages(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]ConversationSummary, 0, len(convs))
	for _, cv := range convs {
		sum := ConversationSummary{Conversation: cv}
		if m, ok := last[cv.ID]; ok {
			sum.LastMessage = &m
		}
		out = append(out, sum)
	}
	return out, nil
}

// ListMessages returns the history in creation order and then marks the
// messages addressed to actor as read. The returned slice shows the state
// before reading.
func (s *conversationService) ListMessages(ctx context.Context, convID uint64, actor string) ([]model.Message, error) {
	if _, err := s.Get(ctx, convID, actor); err != nil {
		return nil, err
	}
	msgs, err := s.convRepo.ListMessages(ctx, convID)
	if err != nil {
		return nil, err
	}
	if _, err := s.convRepo.MarkRead(ctx, convID, actor); err != nil {
		return nil, err
	}
	return msgs, nil
}

func validateContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", fmt.Errorf("%w: content is required", ErrValidation)
	}
	if utf8.RuneCountInString(content) > maxContentLen {
		return "", fmt.Errorf("%w: content exceeds %d characters", ErrValidation, maxContentLen)
	}
	return content, nil
}

func (s *conversationService) SendMessage(ctx context.Context, in SendMessageInput) (*model.Message, error) {
	if in.SenderUID == "" {
		return nil, ErrUnauthorized
	}
	content, err := validateContent(in.Content)
	if err != nil {
		return nil, err
	}
	if in.Type == "" {
		in.Type = model.MessageTypeText
	}
	if in.Type != model.MessageTypeText && in.Type != model.MessageTypeSystem {
		return nil, fmt.Errorf("%w: unknown message type %q", ErrValidation, in.Type)
	}
	cv, err := s.Get(ctx, in.ConversationID, in.SenderUID)
	if err != nil {
		return nil, err
	}
	if in.Type == model.MessageTypeSystem {
		return s.postSystem(ctx, cv.ID, content)
	}
	if in.ReceiverUID == "" {
		return nil, fmt.Errorf("%w: receiverId is required", ErrValidation)
	}
	if in.ReceiverUID != cv.Other(in.SenderUID) {
		return nil, fmt.Errorf("%w: receiver is not the other participant", ErrValidation)
	}

	msg := &model.Message{
		ConversationID: cv.ID,
		SenderUID:      in.SenderUID,
		ReceiverUID:    in.ReceiverUID,
		Content:        content,
		Type:           model.MessageTypeText,
	}
	if err := s.convRepo.CreateMessage(ctx, msg); err != nil {
		return nil, notFound(err)
	}
	ev := realtime.Event{Name: realtime.EventNewMessage, Payload: msg, Origin: in.Origin}
	if in.Origin == "" {
		// sent over HTTP: the sender's own tabs already show it
		ev.ExcludeUser = in.SenderUID
	}
	s.notifier.Broadcast(cv.ID, ev)
	return msg, nil
}

// PostSystemMessage persists a platform-authored message and broadcasts it to
// every connection in the conversation.
func (s *conversationService) PostSystemMessage(ctx context.Context, convID uint64, content string) (*model.Message, error) {
	content, err := validateContent(content)
	if err != nil {
		return nil, err
	}
	return s.postSystem(ctx, convID, content)
}

func (s *conversationService) postSystem(ctx context.Context, convID uint64, content string) (*model.Message, error) {
	msg := &model.Message{
		ConversationID: convID,
		SenderUID:      model.SystemSender,
		ReceiverUID:    model.BroadcastReceiver,
		Content:        content,
		Type:           model.MessageTypeSystem,
	}
	if err := s.convRepo.CreateMessage(ctx, msg); err != nil {
		return nil, notFound(err)
	}
	s.notifier.Broadcast(convID, realtime.Event{Name: realtime.EventNewSystemMessage, Payload: msg})
	return msg, nil
}
