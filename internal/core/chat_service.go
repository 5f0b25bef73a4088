package core

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"nexusai.dev/nexus/internal/logging"
	"nexusai.dev/nexus/internal/store"
	"nexusai.dev/nexus/internal/utils"
)

const chatTitleChars = 30

type ChatService struct {
	dbStore  *store.SQLiteStore
	accounts *AccountService
	logger   *zap.Logger
}

func NewChatService(db *store.SQLiteStore, accounts *AccountService, logger *zap.Logger) *ChatService {
	return &ChatService{
		dbStore:  db,
		accounts: accounts,
		logger:   logging.OrNop(logger),
	}
}

// StartChat opens a chat grounded in one content item.
func (s *ChatService) StartChat(userID int64, itemID string) (*store.ChatSession, error) {
	item, err := s.dbStore.GetContentItem(itemID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	if item == nil {
		return nil, ErrNotFound
	}

	title := "Chat about " + utils.Truncate(item.Title, chatTitleChars)
	chat, err := s.dbStore.CreateChatSession(userID, &item.ID, title)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat in DB: %w", err)
	}
	return chat, nil
}

func (s *ChatService) GetChats(userID int64) ([]store.ChatSession, error) {
	return s.dbStore.ListChatSessions(userID)
}

func (s *ChatService) GetChatDetails(chatID string, userID int64) (*store.ChatSession, []store.Message, error) {
	chat, err := s.dbStore.GetChatSession(chatID, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get chat: %w", err)
	}
	if chat == nil {
		return nil, nil, ErrNotFound
	}

	messages, err := s.dbStore.GetChatMessages(chatID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get messages for chat: %w", err)
	}
	return chat, messages, nil
}

// PostMessage asks the engine with all earlier messages as history, then
// stores the user's message and the reply together. Both are returned.
func (s *ChatService) PostMessage(ctx context.Context, chatID string, userID int64, userContent, lang string) ([]store.Message, Mode, error) {
	chat, err := s.dbStore.GetChatSession(chatID, userID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to verify chat: %w", err)
	}
	if chat == nil {
		return nil, "", ErrNotFound
	}

	previous, err := s.dbStore.GetChatMessages(chatID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load history: %w", err)
	}

	var itemCtx *ItemContext
	if chat.ContentItemID != nil {
		item, err := s.dbStore.GetContentItem(*chat.ContentItemID, userID)
		if err != nil {
			return nil, "", fmt.Errorf("failed to load chat item: %w", err)
		}
		if item != nil {
			itemCtx = &ItemContext{Title: item.Title, Analysis: item.Analysis, RawContent: item.RawContent}
		}
	}

	engine, release, err := s.accounts.Engine(ctx, userID)
	if err != nil {
		return nil, "", err
	}
	defer release()

	reply := engine.Chat(ctx, userContent, toTurns(previous), itemCtx, lang)
	if reply.Err != nil {
		s.logger.Warn("chat reply degraded", zap.String("chat_id", chatID), zap.Error(reply.Err))
	}

	userMsg := store.Message{SessionID: chatID, Sender: store.SenderUser, Content: userContent}
	modelMessage := store.Message{SessionID: chatID, Sender: store.SenderAI, Content: reply.Value}
	if err := s.dbStore.CreateChatExchange(&userMsg, &modelMessage); err != nil {
		return nil, "", fmt.Errorf("failed to store messages: %w", err)
	}
	return []store.Message{userMsg, modelMessage}, reply.Mode, nil
}

// toTurns maps stored senders to model roles: user stays user, ai becomes model.
func toTurns(messages []store.Message) []Turn {
	turns := make([]Turn, 0, len(messages))
	for _, m := range messages {
		role := roleUser
		if m.Sender == store.SenderAI {
			role = roleModel
		}
		turns = append(turns, Turn{Role: role, Text: m.Content})
	}
	return turns
}
