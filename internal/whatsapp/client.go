// Package whatsapp lets players run their adventure from a WhatsApp chat.
package whatsapp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/user/solo-adventure/config"
	"github.com/user/solo-adventure/internal/interfaces"
	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/binary/proto"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waTypes "go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
)

// ClientManager handles the bot's WhatsApp device connections
type ClientManager struct {
	clients  map[string]*ClientInfo
	commands *CommandHandler
	config   config.Config
	logger   *zap.Logger
	mutex    sync.RWMutex
}

// ClientInfo holds information about a WhatsApp client connection
type ClientInfo struct {
	UUID        string
	PhoneNumber string
	Client      *whatsmeow.Client
	Store       *store.Device
}

// Ensure ClientManager satisfies the interfaces.MessageSender interface
var _ interfaces.MessageSender = (*ClientManager)(nil)

// NewClientManager creates a new WhatsApp client manager and reconnects the
// devices already logged in
func NewClientManager(gameManager interfaces.GameManager, cfg config.Config, logger *zap.Logger) *ClientManager {
	cm := &ClientManager{
		clients:  make(map[string]*ClientInfo),
		commands: NewCommandHandler(gameManager, logger),
		config:   cfg,
		logger:   logger,
	}

	cm.restoreExistingSessions()

	return cm
}

// restoreExistingSessions reconnects the newest stored login of every phone
// number and removes older ones
func (cm *ClientManager) restoreExistingSessions() {
	devices, err := NewDeviceStore(cm.config.WhatsApp.StoreDir, cm.logger).ListDevices()
	if err != nil {
		cm.logger.Error("Failed to scan for existing devices", zap.Error(err))
		return
	}

	// ListDevices is newest first, so the first entry per phone number wins
	restored := make(map[string]bool)
	for _, device := range devices {
		if restored[device.PhoneNumber] {
			stale := filepath.Join(cm.config.WhatsApp.StoreDir, storeFileName(device.PhoneNumber, device.ID))
			if err := os.Remove(stale); err != nil {
				cm.logger.Error("Failed to remove stale device file",
					zap.String("file", stale),
					zap.Error(err))
			}
			continue
		}
		restored[device.PhoneNumber] = true

		path := filepath.Join(cm.config.WhatsApp.StoreDir, storeFileName(device.PhoneNumber, device.ID))
		dbLog := waLog.Stdout("Database", "INFO", true)
		container, err := sqlstore.New("sqlite3", storeDSN(path), dbLog)
		if err != nil {
			cm.logger.Error("Failed to open device database",
				zap.String("phoneNumber", device.PhoneNumber),
				zap.Error(err))
			continue
		}

		deviceStore, err := container.GetFirstDevice()
		if err != nil || deviceStore.ID == nil {
			cm.logger.Info("Stored device requires QR code login",
				zap.String("phoneNumber", device.PhoneNumber))
			continue
		}

		client := cm.register(device.ID, device.PhoneNumber, deviceStore)
		go func(phone string, cli *whatsmeow.Client) {
			if err := cli.Connect(); err != nil {
				cm.logger.Error("Failed to connect restored client",
					zap.String("phoneNumber", phone),
					zap.Error(err))
				return
			}
			cm.logger.Info("Restored client connected",
				zap.String("phoneNumber", phone))
		}(device.PhoneNumber, client)
	}
}

// register builds a client for deviceStore and tracks it. Callers must not
// hold the mutex.
func (cm *ClientManager) register(sessionID, phoneNumber string, deviceStore *store.Device) *whatsmeow.Client {
	clientLog := waLog.Stdout("Client", "INFO", true)
	client := whatsmeow.NewClient(deviceStore, clientLog)
	client.AddEventHandler(func(evt interface{}) {
		cm.handleWhatsAppEvent(client, evt)
	})

	cm.mutex.Lock()
	cm.clients[phoneNumber] = &ClientInfo{
		UUID:        sessionID,
		PhoneNumber: phoneNumber,
		Client:      client,
		Store:       deviceStore,
	}
	cm.mutex.Unlock()

	return client
}

// GetClient retrieves a WhatsApp client by phone number, reconnecting it when
// it has a stored login
func (cm *ClientManager) GetClient(phoneNumber string) (*whatsmeow.Client, bool) {
	cm.mutex.RLock()
	clientInfo, exists := cm.clients[phoneNumber]
	cm.mutex.RUnlock()

	if !exists {
		return nil, false
	}

	if !clientInfo.Client.IsConnected() && clientInfo.Store.ID != nil {
		if err := clientInfo.Client.Connect(); err != nil {
			cm.logger.Error("Failed to connect client",
				zap.String("phoneNumber", phoneNumber),
				zap.Error(err))
			return nil, false
		}
		cm.logger.Info("Client reconnected",
			zap.String("phoneNumber", phoneNumber))
	}

	return clientInfo.Client, true
}

// GetQRChannel starts a fresh device login for phoneNumber and returns the QR
// channel with the new device session id
func (cm *ClientManager) GetQRChannel(phoneNumber string) (<-chan whatsmeow.QRChannelItem, string, error) {
	if phoneNumber == "" || strings.ContainsAny(phoneNumber, `/\_`) {
		return nil, "", fmt.Errorf("invalid phone number: %q", phoneNumber)
	}
	if err := os.MkdirAll(cm.config.WhatsApp.StoreDir, 0755); err != nil {
		return nil, "", fmt.Errorf("failed to create store directory: %w", err)
	}

	cm.mutex.Lock()
	if clientInfo, exists := cm.clients[phoneNumber]; exists {
		clientInfo.Client.Disconnect()
		delete(cm.clients, phoneNumber)
	}
	cm.mutex.Unlock()

	sessionID := uuid.New().String()
	path := filepath.Join(cm.config.WhatsApp.StoreDir, storeFileName(phoneNumber, sessionID))

	dbLog := waLog.Stdout("Database", "INFO", true)
	container, err := sqlstore.New("sqlite3", storeDSN(path), dbLog)
	if err != nil {
		return nil, "", fmt.Errorf("failed to initialize database: %w", err)
	}

	deviceStore := container.NewDevice()
	store.DeviceProps.RequireFullSync = proto.Bool(false)
	store.DeviceProps.Os = proto.String(cm.config.WhatsApp.ClientName)

	client := cm.register(sessionID, phoneNumber, deviceStore)

	// the QR channel must exist before connecting
	qrChan, err := client.GetQRChannel(context.Background())
	if err != nil {
		return nil, "", fmt.Errorf("failed to get QR channel: %w", err)
	}

	go func() {
		if err := client.Connect(); err != nil {
			cm.logger.Error("Failed to connect client",
				zap.String("phoneNumber", phoneNumber),
				zap.Error(err))
			return
		}
		cm.logger.Info("Client connected, waiting for QR scan",
			zap.String("phoneNumber", phoneNumber))
	}()

	return qrChan, sessionID, nil
}

// Disconnect closes a specific WhatsApp connection
func (cm *ClientManager) Disconnect(phoneNumber string) error {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	clientInfo, exists := cm.clients[phoneNumber]
	if !exists {
		return fmt.Errorf("client not found for phone number: %s", phoneNumber)
	}

	clientInfo.Client.Disconnect()
	delete(cm.clients, phoneNumber)
	return nil
}

// DisconnectAll closes all WhatsApp connections
func (cm *ClientManager) DisconnectAll() {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	for phoneNumber, clientInfo := range cm.clients {
		if clientInfo.Client != nil {
			clientInfo.Client.Disconnect()
			cm.logger.Info("Disconnected client", zap.String("phoneNumber", phoneNumber))
		}
	}

	cm.clients = make(map[string]*ClientInfo)
}

// IsLoggedIn checks if a client is logged in
func (cm *ClientManager) IsLoggedIn(phoneNumber string) (bool, error) {
	client, exists := cm.GetClient(phoneNumber)
	if !exists {
		return false, fmt.Errorf("client not found for phone number: %s", phoneNumber)
	}

	return client.IsLoggedIn(), nil
}

// SendMessage sends a text message from the phoneNumber device to recipient
func (cm *ClientManager) SendMessage(phoneNumber, recipient, message string) (string, error) {
	client, exists := cm.GetClient(phoneNumber)
	if !exists {
		return "", fmt.Errorf("client not found for phone number: %s", phoneNumber)
	}

	recipientJID, err := parseJID(recipient)
	if err != nil {
		return "", err
	}

	return sendText(client, recipientJID, message)
}

func sendText(client *whatsmeow.Client, to waTypes.JID, message string) (string, error) {
	msg := &waProto.Message{
		Conversation: proto.String(message),
	}

	response, err := client.SendMessage(context.Background(), to, msg)
	if err != nil {
		return "", fmt.Errorf("failed to send message: %w", err)
	}

	return response.ID, nil
}

// handleWhatsAppEvent processes events of one client
func (cm *ClientManager) handleWhatsAppEvent(client *whatsmeow.Client, evt interface{}) {
	switch v := evt.(type) {
	case *events.Message:
		cm.handleIncomingMessage(client, v)
	case *events.Connected:
		cm.logger.Info("WhatsApp client connected")
	case *events.Disconnected:
		cm.logger.Info("WhatsApp client disconnected")
	case *events.LoggedOut:
		cm.logger.Info("WhatsApp client logged out")
	}
}

// messageText extracts the plain text of a message
func messageText(message *events.Message) string {
	if message.Message == nil {
		return ""
	}
	content := message.Message.GetConversation()
	if content == "" && message.Message.ExtendedTextMessage != nil {
		content = message.Message.ExtendedTextMessage.GetText()
	}
	return strings.TrimSpace(content)
}

// commandText returns the command in a message, or "" when the message is not
// addressed to the bot. Group messages need a "/ " prefix so ordinary chat
// starting with a slash is ignored.
func commandText(content string, isGroup bool) string {
	if isGroup {
		if !strings.HasPrefix(content, "/ ") {
			return ""
		}
		return "/" + strings.TrimSpace(strings.TrimPrefix(content, "/ "))
	}
	if !strings.HasPrefix(content, "/") {
		return ""
	}
	return content
}

// handleIncomingMessage runs chat commands. Narration can take a while, so
// the reply is produced off the event loop.
func (cm *ClientManager) handleIncomingMessage(client *whatsmeow.Client, message *events.Message) {
	if message.Info.MessageSource.IsFromMe {
		return
	}

	command := commandText(messageText(message), message.Info.Chat.Server == waTypes.GroupServer)
	if command == "" {
		return
	}

	cm.logger.Debug("Received command",
		zap.String("content", command),
		zap.String("sender", message.Info.Sender.User),
		zap.String("chat", message.Info.Chat.String()))

	chat := message.Info.Chat
	go func() {
		ctx, cancel := withTimeout(cm.config.Narrator.Timeout() + 30*time.Second)
		defer cancel()

		response := cm.commands.ProcessCommand(ctx, chat.String(), command)
		if response == "" {
			return
		}
		if _, err := sendText(client, chat, response); err != nil {
			cm.logger.Error("Failed to send response",
				zap.String("chat", chat.String()),
				zap.Error(err))
		}
	}()
}

// parseJID converts a string to a WhatsApp JID
func parseJID(jidString string) (waTypes.JID, error) {
	if !strings.ContainsRune(jidString, '@') {
		// Assume this is a phone number, add WhatsApp suffix
		jidString = jidString + "@" + waTypes.DefaultUserServer
	}

	return waTypes.ParseJID(jidString)
}
