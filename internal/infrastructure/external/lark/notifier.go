package lark

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/garyjia/expedition-settlement/internal/application/port"
	"github.com/garyjia/expedition-settlement/internal/domain/entity"
	"go.uber.org/zap"
)

// MessageSender posts raw IM messages
type MessageSender interface {
	SendMessage(ctx context.Context, receiveIDType, receiveID, msgType, content string) (string, error)
}

// Notifier implements port.DiscrepancyNotifier with an interactive card
// posted to the client's group chat.
type Notifier struct {
	sender MessageSender
	logger *zap.Logger
}

var _ port.DiscrepancyNotifier = (*Notifier)(nil)

// NewNotifier creates a discrepancy notifier
func NewNotifier(sender MessageSender, logger *zap.Logger) *Notifier {
	return &Notifier{sender: sender, logger: logger}
}

// NotifyDiscrepancy sends the verification outcome of pkg to client.NotifyChatID.
// Clients without a chat are skipped.
func (n *Notifier) NotifyDiscrepancy(ctx context.Context, client *entity.Client, pkg *entity.Package) error {
	if client == nil || client.NotifyChatID == "" {
		n.logger.Info("Client has no notification chat, skipping", zap.String("package_id", pkg.ID))
		return nil
	}
	if pkg.Verification == nil {
		return fmt.Errorf("package %s has no verification", pkg.ID)
	}

	card, err := json.Marshal(buildDiscrepancyCard(client, pkg))
	if err != nil {
		return fmt.Errorf("failed to marshal card content: %w", err)
	}

	messageID, err := n.sender.SendMessage(ctx, "chat_id", client.NotifyChatID, "interactive", string(card))
	if err != nil {
		return fmt.Errorf("failed to send discrepancy card: %w", err)
	}

	n.logger.Info("Discrepancy notification sent",
		zap.String("package_id", pkg.ID),
		zap.String("chat_id", client.NotifyChatID),
		zap.String("message_id", messageID))
	return nil
}

func buildDiscrepancyCard(client *entity.Client, pkg *entity.Package) map[string]interface{} {
	v := pkg.Verification

	invoiceTotal := "-"
	if v.InvoiceTotal != nil {
		invoiceTotal = v.InvoiceTotal.StringFixed(2)
	}

	var body strings.Builder
	fmt.Fprintf(&body, "**Cliente:** %s\n", client.Name)
	fmt.Fprintf(&body, "**Paquete:** %s\n", pkg.Number)
	fmt.Fprintf(&body, "**Total factura:** %s\n", invoiceTotal)
	fmt.Fprintf(&body, "**Total calculado:** %s\n", v.ComputedTotal.StringFixed(2))
	fmt.Fprintf(&body, "**Diferencia:** %s", v.Delta.StringFixed(2))
	for _, d := range v.Discrepancies {
		fmt.Fprintf(&body, "\n- %s", d)
	}

	template := "orange"
	if !v.WeightsMatch {
		template = "red"
	}

	return map[string]interface{}{
		"config": map[string]interface{}{"wide_screen_mode": true},
		"header": map[string]interface{}{
			"template": template,
			"title": map[string]interface{}{
				"tag":     "plain_text",
				"content": fmt.Sprintf("Discrepancia en paquete %s", pkg.Number),
			},
		},
		"elements": []interface{}{
			map[string]interface{}{
				"tag":  "div",
				"text": map[string]interface{}{"tag": "lark_md", "content": body.String()},
			},
		},
	}
}
