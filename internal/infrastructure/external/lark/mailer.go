package lark

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/garyjia/onboarding-workflow/internal/application/port"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkIm "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"go.uber.org/zap"
)

// receiveIDTypeEmail addresses the recipient by email; Lark resolves it to
// the tenant user owning that address
const receiveIDTypeEmail = "email"

const msgTypePost = "post"

// messageCreator is the part of the IM message API the mailer uses
type messageCreator interface {
	Create(ctx context.Context, req *larkIm.CreateMessageReq, options ...larkcore.RequestOptionFunc) (*larkIm.CreateMessageResp, error)
}

// Mailer implements port.Mailer by posting rich-text messages through Lark IM
type Mailer struct {
	messages messageCreator
	logger   *zap.Logger
}

var _ port.Mailer = (*Mailer)(nil)

// NewMailer creates a new Lark mailer
func NewMailer(client *SDKClient, logger *zap.Logger) *Mailer {
	return &Mailer{
		messages: client.GetClient().Im.Message,
		logger:   logger,
	}
}

type postElement struct {
	Tag  string `json:"tag"`
	Text string `json:"text"`
}

type postBody struct {
	Title   string          `json:"title"`
	Content [][]postElement `json:"content"`
}

// buildPostContent renders a message as a Lark "post", one paragraph per line
func buildPostContent(msg port.Message) (string, error) {
	lines := strings.Split(strings.TrimRight(msg.Body, "\n"), "\n")
	paragraphs := make([][]postElement, 0, len(lines))
	for _, line := range lines {
		paragraphs = append(paragraphs, []postElement{{Tag: "text", Text: line}})
	}

	data, err := json.Marshal(map[string]postBody{
		"en_us": {Title: msg.Subject, Content: paragraphs},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal post content: %w", err)
	}
	return string(data), nil
}

// Send delivers the message and returns the Lark message ID
func (m *Mailer) Send(ctx context.Context, msg port.Message) (string, error) {
	if msg.To == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}

	content, err := buildPostContent(msg)
	if err != nil {
		return "", err
	}

	req := larkIm.NewCreateMessageReqBuilder().
		ReceiveIdType(receiveIDTypeEmail).
		Body(larkIm.NewCreateMessageReqBodyBuilder().
			ReceiveId(msg.To).
			MsgType(msgTypePost).
			Content(content).
			Build()).
		Build()

	resp, err := m.messages.Create(ctx, req)
	if err != nil {
		m.logger.Error("Failed to send message",
			zap.String("to", msg.To),
			zap.Error(err))
		return "", fmt.Errorf("failed to send message: %w", err)
	}

	if !resp.Success() {
		m.logger.Error("API returned failure",
			zap.String("to", msg.To),
			zap.Int("code", resp.Code),
			zap.String("msg", resp.Msg))
		return "", fmt.Errorf("API error: code=%d, msg=%s", resp.Code, resp.Msg)
	}

	messageID := ""
	if resp.Data != nil && resp.Data.MessageId != nil {
		messageID = *resp.Data.MessageId
	}

	m.logger.Info("Message sent successfully",
		zap.String("message_id", messageID),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject))

	return messageID, nil
}
