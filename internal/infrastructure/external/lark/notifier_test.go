package lark

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/garyjia/expedition-settlement/internal/domain/entity"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type sentMessage struct {
	receiveIDType, receiveID, msgType, content string
}

type fakeSender struct {
	sent []sentMessage
	err  error
}

func (f *fakeSender) SendMessage(_ context.Context, receiveIDType, receiveID, msgType, content string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, sentMessage{receiveIDType, receiveID, msgType, content})
	return "om_1", nil
}

func verifiedPackage(weightsMatch bool) *entity.Package {
	total := decimal.RequireFromString("7500")
	return &entity.Package{
		ID:     "pkg-1",
		Number: "001",
		Verification: &entity.VerificationRecord{
			InvoiceTotal:  &total,
			ComputedTotal: decimal.RequireFromString("6750"),
			Delta:         decimal.RequireFromString("750"),
			WeightsMatch:  weightsMatch,
			Discrepancies: []string{"linea extra en factura: 10 g"},
		},
	}
}

func TestNotifier_SendsCardToClientChat(t *testing.T) {
	sender := &fakeSender{}
	n := NewNotifier(sender, zap.NewNop())
	client := &entity.Client{ID: "c1", Name: "Joyeria Sol", NotifyChatID: "oc_123"}

	require.NoError(t, n.NotifyDiscrepancy(context.Background(), client, verifiedPackage(false)))

	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Equal(t, "chat_id", msg.receiveIDType)
	assert.Equal(t, "oc_123", msg.receiveID)
	assert.Equal(t, "interactive", msg.msgType)

	var card map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(msg.content), &card))
	header := card["header"].(map[string]interface{})
	assert.Equal(t, "red", header["template"])

	elements := card["elements"].([]interface{})
	text := elements[0].(map[string]interface{})["text"].(map[string]interface{})["content"].(string)
	assert.Contains(t, text, "Joyeria Sol")
	assert.Contains(t, text, "7500.00")
	assert.Contains(t, text, "6750.00")
	assert.Contains(t, text, "750.00")
	assert.Contains(t, text, "linea extra en factura")
}

func TestNotifier_MatchingWeightsUseOrangeHeader(t *testing.T) {
	card := buildDiscrepancyCard(&entity.Client{Name: "x"}, verifiedPackage(true))
	header := card["header"].(map[string]interface{})
	assert.Equal(t, "orange", header["template"])
}

func TestNotifier_SkipsClientWithoutChat(t *testing.T) {
	sender := &fakeSender{}
	n := NewNotifier(sender, zap.NewNop())

	require.NoError(t, n.NotifyDiscrepancy(context.Background(), &entity.Client{ID: "c1"}, verifiedPackage(false)))
	assert.Empty(t, sender.sent)
}

func TestNotifier_Errors(t *testing.T) {
	client := &entity.Client{ID: "c1", NotifyChatID: "oc_1"}

	n := NewNotifier(&fakeSender{}, zap.NewNop())
	assert.Error(t, n.NotifyDiscrepancy(context.Background(), client, &entity.Package{ID: "p"}))

	n = NewNotifier(&fakeSender{err: errors.New("token expired")}, zap.NewNop())
	err := n.NotifyDiscrepancy(context.Background(), client, verifiedPackage(false))
	assert.ErrorContains(t, err, "token expired")
}
