package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/oldbyju/platform_backend/internal/models"
	"github.com/oldbyju/platform_backend/internal/realtime"
	"github.com/oldbyju/platform_backend/internal/utils"
)

type ChatHandler struct {
	DB        *gorm.DB
	Hub       *realtime.Hub
	RDB       *redis.Client
	JWTSecret string
}

func NewChatHandler(db *gorm.DB, hub *realtime.Hub, rdb *redis.Client, jwtSecret string) *ChatHandler {
	return &ChatHandler{DB: db, Hub: hub, RDB: rdb, JWTSecret: jwtSecret}
}

// CreateOrGetConversation returns the conversation between the current user
// and the receiver, creating it on first contact. The pair is unordered, so
// repeated calls from either side land on the same row; a concurrent create
// losing the unique-index race falls back to the winner's row.
func (h *ChatHandler) CreateOrGetConversation(c *fiber.Ctx) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return fail(c, 401, "Unauthorized")
	}

	var req struct {
		ReceiverID string `json:"receiver_id"`
	}
	if err := c.BodyParser(&req); err != nil || req.ReceiverID == "" {
		return fail(c, 400, "Receiver ID is required")
	}

	receiverUUID, err := uuid.Parse(req.ReceiverID)
	if err != nil {
		return fail(c, 400, "Invalid receiver ID")
	}

	pairKey := models.ConversationPairKey(userUUID, receiverUUID)

	var conv models.Conversation
	err = h.DB.Where("pair_key = ?", pairKey).First(&conv).Error

	created := false
	if errors.Is(err, gorm.ErrRecordNotFound) {
		conv = models.Conversation{
			SenderID:      userUUID,
			ReceiverID:    receiverUUID,
			PairKey:       pairKey,
			LastMessageAt: time.Now(),
		}
		if createErr := h.DB.Create(&conv).Error; createErr != nil {
			// Lost the race: the unique pair index means the other side's
			// row now exists, so re-read it.
			if lookupErr := h.DB.Where("pair_key = ?", pairKey).First(&conv).Error; lookupErr != nil {
				log.Println("Error creating conversation:", createErr)
				return fail(c, 500, "Failed to create conversation")
			}
		} else {
			created = true
		}
	} else if err != nil {
		log.Println("Error fetching conversation:", err)
		return fail(c, 500, "Failed to fetch conversation")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"created": created,
		"data":    conv,
	})
}

// GetUserConversations lists the current user's conversations, most recent
// message first.
func (h *ChatHandler) GetUserConversations(c *fiber.Ctx) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return fail(c, 401, "Unauthorized")
	}

	var convs []models.Conversation
	if err := h.DB.
		Preload("Sender").
		Preload("Receiver").
		Where("sender_id = ? OR receiver_id = ?", userUUID, userUUID).
		Order("last_message_at DESC").
		Find(&convs).Error; err != nil {
		log.Println("Error fetching conversations:", err)
		return fail(c, 500, "Failed to fetch conversations")
	}

	return c.JSON(fiber.Map{"success": true, "data": convs})
}

// GetMessages returns a conversation's messages in send order.
func (h *ChatHandler) GetMessages(c *fiber.Ctx) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return fail(c, 401, "Unauthorized")
	}

	convUUID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fail(c, 400, "Invalid conversation ID")
	}

	var conv models.Conversation
	if err := h.DB.First(&conv, "id = ?", convUUID).Error; err != nil {
		return fail(c, 404, "Conversation not found")
	}
	if !conv.HasParticipant(userUUID) {
		return fail(c, 403, "Access denied")
	}

	var messages []models.Message
	if err := h.DB.
		Where("conversation_id = ?", convUUID).
		Order("created_at ASC").
		Find(&messages).Error; err != nil {
		log.Println("Error fetching messages:", err)
		return fail(c, 500, "Failed to fetch messages")
	}

	return c.JSON(fiber.Map{"success": true, "data": messages})
}

type SendMessageRequest struct {
	ConversationID string `json:"conversation_id"`
	ReceiverID     string `json:"receiver_id"` // accepted for compatibility, the server resolves the real receiver
	Message        string `json:"message"`
}

// SendMessage is the HTTP variant of sending a chat message. It shares the
// persist-and-deliver path with the websocket variant, so both produce the
// same stored state and the same fan-out.
func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return fail(c, 401, "Unauthorized")
	}

	var req SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, 400, "Invalid request body")
	}

	msg, err := h.persistAndDeliver(userUUID, req)
	if err != nil {
		status, message := sendMessageError(err)
		return fail(c, status, message)
	}

	return c.Status(201).JSON(fiber.Map{"success": true, "data": msg})
}

var (
	errMissingFields  = errors.New("missing required fields")
	errConvNotFound   = errors.New("conversation not found")
	errNotParticipant = errors.New("not a conversation participant")
	errMessagePersist = errors.New("failed to send message")
)

func sendMessageError(err error) (int, string) {
	switch {
	case errors.Is(err, errMissingFields):
		return 400, "Missing required fields"
	case errors.Is(err, errConvNotFound):
		return 404, "Conversation not found"
	case errors.Is(err, errNotParticipant):
		return 403, "Access denied"
	default:
		return 500, "Failed to send message"
	}
}

// persistAndDeliver stores the message, refreshes the conversation summary
// and fans the message out: once per live connection across the receiver's
// presence entries and the conversation room. The receiver is always the
// conversation's other member; the client-supplied receiver_id is ignored so
// a participant cannot direct the push at an arbitrary third user.
func (h *ChatHandler) persistAndDeliver(senderUUID uuid.UUID, req SendMessageRequest) (*models.Message, error) {
	if req.ConversationID == "" || req.Message == "" {
		return nil, errMissingFields
	}

	convUUID, err := uuid.Parse(req.ConversationID)
	if err != nil {
		return nil, errMissingFields
	}

	var conv models.Conversation
	if err := h.DB.First(&conv, "id = ?", convUUID).Error; err != nil {
		return nil, errConvNotFound
	}
	if !conv.HasParticipant(senderUUID) {
		return nil, errNotParticipant
	}

	receiverUUID := conv.SenderID
	if receiverUUID == senderUUID {
		receiverUUID = conv.ReceiverID
	}

	msg := models.Message{
		ConversationID: convUUID,
		SenderID:       senderUUID,
		ReceiverID:     receiverUUID,
		Message:        req.Message,
		Status:         models.MessageStatusSent,
	}

	if err := h.DB.Create(&msg).Error; err != nil {
		log.Println("Error creating message:", err)
		return nil, errMessagePersist
	}

	if err := h.DB.Model(&models.Conversation{}).
		Where("id = ?", convUUID).
		Updates(map[string]interface{}{
			"last_message":    req.Message,
			"last_message_at": msg.CreatedAt,
		}).Error; err != nil {
		log.Println("Error updating conversation summary:", err)
	}

	h.Hub.DeliverToConversation(convUUID, receiverUUID, fiber.Map{
		"type":    "receive_message",
		"message": msg,
	})

	notif := map[string]interface{}{
		"type":            "chat_message",
		"conversation_id": convUUID.String(),
		"sender_id":       senderUUID.String(),
		"message":         req.Message,
	}
	payload, _ := json.Marshal(notif)
	h.RDB.Publish(context.Background(), "notifications:"+receiverUUID.String(), payload)

	return &msg, nil
}

// Inbound websocket frames.
type wsEvent struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
	ReceiverID     string `json:"receiver_id"`
	Message        string `json:"message"`
}

// WebSocketHandler authenticates the handshake token, registers presence and
// serves join_conversation / send_message events until the peer goes away.
func (h *ChatHandler) WebSocketHandler(c *websocket.Conn) {
	tokenStr := c.Query("token")
	if tokenStr == "" {
		auth := c.Headers("Authorization")
		if strings.HasPrefix(auth, "Bearer ") {
			tokenStr = strings.TrimPrefix(auth, "Bearer ")
		}
	}

	claims, err := utils.ParseToken(h.JWTSecret, tokenStr)
	if err != nil || claims.Kind != "access" {
		log.Println("WebSocket: authentication failed:", err)
		_ = c.WriteJSON(fiber.Map{"type": "error", "message": "Authentication error"})
		c.Close()
		return
	}

	userUUID, err := uuid.Parse(claims.UserID)
	if err != nil {
		c.Close()
		return
	}

	client := &realtime.Client{
		ID:     uuid.New().String(),
		UserID: userUUID,
		Conn:   realtime.NewWebSocketConn(c),
		Send:   make(chan []byte, 256),
	}

	h.Hub.RegisterClient(client)
	defer func() {
		h.Hub.UnregisterClient(client)
		log.Printf("WebSocket: user %s disconnected\n", userUUID)
	}()

	go func() {
		for msg := range client.Send {
			if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Println("WebSocket write error:", err)
				return
			}
		}
	}()

	for {
		var event wsEvent
		if err := c.ReadJSON(&event); err != nil {
			break
		}

		switch event.Type {
		case "join_conversation":
			h.handleJoin(c, client, event.ConversationID)

		case "send_message":
			_, err := h.persistAndDeliver(userUUID, SendMessageRequest{
				ConversationID: event.ConversationID,
				ReceiverID:     event.ReceiverID,
				Message:        event.Message,
			})
			if err != nil {
				_, message := sendMessageError(err)
				_ = c.WriteJSON(fiber.Map{"type": "error", "message": message})
			}

		case "pong":
			// keepalive, nothing to do
		}
	}
}

// handleJoin subscribes the connection to a conversation room after
// verifying the user is one of its two participants.
func (h *ChatHandler) handleJoin(c *websocket.Conn, client *realtime.Client, conversationID string) {
	convUUID, err := uuid.Parse(conversationID)
	if err != nil {
		_ = c.WriteJSON(fiber.Map{"type": "error", "message": "Invalid conversation ID"})
		return
	}

	var conv models.Conversation
	if err := h.DB.First(&conv, "id = ?", convUUID).Error; err != nil {
		_ = c.WriteJSON(fiber.Map{"type": "error", "message": "Conversation not found"})
		return
	}
	if !conv.HasParticipant(client.UserID) {
		_ = c.WriteJSON(fiber.Map{"type": "error", "message": "Access denied"})
		return
	}

	h.Hub.JoinRoom(convUUID, client.ID)
	_ = c.WriteJSON(fiber.Map{"type": "joined", "conversation_id": convUUID.String()})
}
