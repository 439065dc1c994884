package whatsapp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/skip2/go-qrcode"
	"github.com/user/solo-adventure/config"
	"github.com/user/solo-adventure/internal/tags"
	"github.com/user/solo-adventure/internal/types"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waLog "go.mau.fi/whatsmeow/util/log"
	"go.uber.org/zap"
)

// QRCodeManager handles QR code generation for device login
type QRCodeManager struct {
	clientManager *ClientManager
	config        config.Config
	logger        *zap.Logger
}

// NewQRCodeManager creates a new QR code manager
func NewQRCodeManager(clientManager *ClientManager, cfg config.Config, logger *zap.Logger) *QRCodeManager {
	return &QRCodeManager{
		clientManager: clientManager,
		config:        cfg,
		logger:        logger,
	}
}

// GenerateQRCode starts a login for phoneNumber and writes the first QR code
// as a PNG under the store directory. It returns the raw code and the image path.
func (qm *QRCodeManager) GenerateQRCode(phoneNumber string) (string, string, error) {
	qrChan, sessionID, err := qm.clientManager.GetQRChannel(phoneNumber)
	if err != nil {
		return "", "", err
	}

	qrDir := filepath.Join(qm.config.WhatsApp.StoreDir, "qrcodes")
	if err := os.MkdirAll(qrDir, 0755); err != nil {
		return "", "", fmt.Errorf("failed to create QR code directory: %w", err)
	}

	select {
	case evt := <-qrChan:
		if evt.Event != "code" {
			return "", "", fmt.Errorf("unexpected QR event: %s", evt.Event)
		}
		qrPath := filepath.Join(qrDir, fmt.Sprintf("%s_%s.png", phoneNumber, sessionID))
		if err := qrcode.WriteFile(evt.Code, qrcode.Medium, 256, qrPath); err != nil {
			return "", "", fmt.Errorf("failed to generate QR code image: %w", err)
		}

		qm.logger.Info("QR code generated",
			zap.String("phone_number", phoneNumber),
			zap.String("device_session", sessionID),
			zap.String("path", qrPath))
		return evt.Code, qrPath, nil
	case <-time.After(60 * time.Second):
		return "", "", fmt.Errorf("timeout waiting for QR code")
	}
}

// DeviceInfo describes a stored WhatsApp device login
type DeviceInfo struct {
	ID          string    `json:"id"`
	PhoneNumber string    `json:"phone_number"`
	JID         string    `json:"jid,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// DeviceStore manages the per-device sqlite files in the store directory
type DeviceStore struct {
	storeDir string
	logger   *zap.Logger
}

// NewDeviceStore creates a new device store
func NewDeviceStore(storeDir string, logger *zap.Logger) *DeviceStore {
	return &DeviceStore{
		storeDir: storeDir,
		logger:   logger,
	}
}

// parseStoreName splits "store_<phone>_<id>.db"
func parseStoreName(name string) (phoneNumber, sessionID string, ok bool) {
	if !strings.HasPrefix(name, "store_") || !strings.HasSuffix(name, ".db") {
		return "", "", false
	}
	parts := strings.SplitN(strings.TrimSuffix(strings.TrimPrefix(name, "store_"), ".db"), "_", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func storeFileName(phoneNumber, sessionID string) string {
	return fmt.Sprintf("store_%s_%s.db", phoneNumber, sessionID)
}

func storeDSN(path string) string {
	return fmt.Sprintf("file:%s?_foreign_keys=on", path)
}

// ListDevices returns the stored device logins, newest first
func (ds *DeviceStore) ListDevices() ([]DeviceInfo, error) {
	if err := os.MkdirAll(ds.storeDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	matches, err := filepath.Glob(filepath.Join(ds.storeDir, "store_*.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to list device files: %w", err)
	}

	devices := make([]DeviceInfo, 0, len(matches))
	for _, match := range matches {
		phoneNumber, sessionID, ok := parseStoreName(filepath.Base(match))
		if !ok {
			ds.logger.Warn("Skipping unrecognised device file", zap.String("path", match))
			continue
		}
		stat, err := os.Stat(match)
		if err != nil {
			continue
		}

		info := DeviceInfo{
			ID:          sessionID,
			PhoneNumber: phoneNumber,
			UpdatedAt:   stat.ModTime(),
		}

		dbLog := waLog.Stdout("Database", "ERROR", true)
		if container, err := sqlstore.New("sqlite3", storeDSN(match), dbLog); err == nil {
			if device, err := container.GetFirstDevice(); err == nil && device.ID != nil {
				info.JID = device.ID.String()
			}
		}
		devices = append(devices, info)
	}

	sort.Slice(devices, func(i, j int) bool {
		return devices[i].UpdatedAt.After(devices[j].UpdatedAt)
	})
	return devices, nil
}

// DeleteDevice removes a stored device login and its QR image
func (ds *DeviceStore) DeleteDevice(phoneNumber, sessionID string) error {
	if strings.ContainsAny(phoneNumber+sessionID, `/\`) {
		return fmt.Errorf("invalid device id")
	}

	dbPath := filepath.Join(ds.storeDir, storeFileName(phoneNumber, sessionID))
	if err := os.Remove(dbPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete device database: %w", err)
	}

	qrPath := filepath.Join(ds.storeDir, "qrcodes", fmt.Sprintf("%s_%s.png", phoneNumber, sessionID))
	if err := os.Remove(qrPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete QR code: %w", err)
	}

	ds.logger.Info("Device deleted",
		zap.String("phone_number", phoneNumber),
		zap.String("device_session", sessionID))
	return nil
}

// MessageFormatter renders game results as chat messages
type MessageFormatter struct{}

// NewMessageFormatter creates a new message formatter
func NewMessageFormatter() *MessageFormatter {
	return &MessageFormatter{}
}

// FormatTurn renders a turn result. Narrator tags are hidden; their effects
// are listed instead.
func (mf *MessageFormatter) FormatTurn(res *types.TurnResult) string {
	var parts []string

	if res.Roll != nil {
		line := fmt.Sprintf("🎲 %s: %d (d20 %d, %+d, +%d)", res.Roll.Skill, res.Roll.Total, res.Roll.Raw, res.Roll.Modifier, res.Roll.Bonus)
		if res.Success != nil {
			if *res.Success {
				line += " ✅ success"
			} else {
				line += " ❌ failure"
			}
		}
		parts = append(parts, line)
	}

	if res.Reply != "" {
		parts = append(parts, tags.Strip(res.Reply))
	}

	if len(res.Effects) > 0 {
		lines := make([]string, 0, len(res.Effects))
		for _, effect := range res.Effects {
			lines = append(lines, "• "+effect.Message)
		}
		parts = append(parts, strings.Join(lines, "\n"))
	}

	if res.Pending != nil {
		options := make([]string, 0, len(res.Pending.Skills))
		for _, skill := range res.Pending.Skills {
			options = append(options, "/roll "+skill)
		}
		parts = append(parts, fmt.Sprintf("🎲 This requires a roll (%s, DC %d). Choose: %s",
			res.Pending.Difficulty, res.Pending.DC, strings.Join(options, " | ")))
	}

	if res.Error != "" {
		parts = append(parts, "⚠️ The narrator is unavailable right now. Try again in a moment.")
	}

	return strings.Join(parts, "\n\n")
}

// FormatSnapshots renders the saved adventures list
func (mf *MessageFormatter) FormatSnapshots(infos []types.SnapshotInfo, limit int) string {
	if len(infos) == 0 {
		return "No saved adventures yet."
	}
	if limit > 0 && len(infos) > limit {
		infos = infos[:limit]
	}
	var b strings.Builder
	b.WriteString("💾 *SAVED ADVENTURES*\n")
	for _, info := range infos {
		fmt.Fprintf(&b, "\n%s (level %d), %s\n/load %s", info.CharacterName, info.Level,
			info.SavedAt.Format("2006-01-02 15:04"), info.SessionID)
	}
	return b.String()
}

// LastNarration returns the latest narrator turn without tags
func (mf *MessageFormatter) LastNarration(view *types.SessionView) string {
	for i := len(view.Transcript) - 1; i >= 0; i-- {
		if view.Transcript[i].Kind == types.KindNarration {
			return tags.Strip(view.Transcript[i].Content)
		}
	}
	return ""
}

// withTimeout bounds a chat-triggered game call
func withTimeout(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}
