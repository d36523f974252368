package lark

import (
	"context"
	"fmt"

	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkApproval "github.com/larksuite/oapi-sdk-go/v3/service/approval/v4"
	"go.uber.org/zap"
)

// codeAlreadySubscribed is returned when the approval already has a subscription
const codeAlreadySubscribed = 1390007

type instanceGetter interface {
	Get(ctx context.Context, req *larkApproval.GetInstanceReq, options ...larkcore.RequestOptionFunc) (*larkApproval.GetInstanceResp, error)
}

type approvalSubscriber interface {
	Subscribe(ctx context.Context, req *larkApproval.SubscribeApprovalReq, options ...larkcore.RequestOptionFunc) (*larkApproval.SubscribeApprovalResp, error)
}

// Submission is who submitted a new employee form and where it stands
type Submission struct {
	InstanceCode string
	UserID       string
	OpenID       string
	Status       string
}

// FormAPI reads new employee form submissions, which are Lark approval instances
type FormAPI struct {
	instances instanceGetter
	approvals approvalSubscriber
	logger    *zap.Logger
}

// NewFormAPI creates a form API on client
func NewFormAPI(client *SDKClient, logger *zap.Logger) *FormAPI {
	return &FormAPI{
		instances: client.GetClient().Approval.Instance,
		approvals: client.GetClient().Approval.Approval,
		logger:    logger,
	}
}

// Subscribe enables event delivery for the form's approval code. Lark only
// pushes approval_instance events for subscribed codes.
func (a *FormAPI) Subscribe(ctx context.Context, approvalCode string) error {
	if approvalCode == "" {
		return fmt.Errorf("approval code cannot be empty")
	}

	req := larkApproval.NewSubscribeApprovalReqBuilder().
		ApprovalCode(approvalCode).
		Build()

	resp, err := a.approvals.Subscribe(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to subscribe to form events: %w", err)
	}
	if !resp.Success() {
		if resp.Code == codeAlreadySubscribed {
			a.logger.Info("Form events already subscribed", zap.String("approval_code", approvalCode))
			return nil
		}
		return fmt.Errorf("subscription failed: code=%d, msg=%s", resp.Code, resp.Msg)
	}

	a.logger.Info("Subscribed to form events", zap.String("approval_code", approvalCode))
	return nil
}

// Submission looks up the submitter of a form instance
func (a *FormAPI) Submission(ctx context.Context, instanceCode string) (*Submission, error) {
	req := larkApproval.NewGetInstanceReqBuilder().
		InstanceId(instanceCode).
		Build()

	resp, err := a.instances.Get(ctx, req)
	if err != nil {
		a.logger.Error("Failed to get form instance",
			zap.String("instance_code", instanceCode),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get form instance: %w", err)
	}
	if !resp.Success() {
		return nil, fmt.Errorf("API error: code=%d, msg=%s", resp.Code, resp.Msg)
	}

	sub := &Submission{InstanceCode: instanceCode}
	if d := resp.Data; d != nil {
		if d.UserId != nil {
			sub.UserID = *d.UserId
		}
		if d.OpenId != nil {
			sub.OpenID = *d.OpenId
		}
		if d.Status != nil {
			sub.Status = *d.Status
		}
	}
	return sub, nil
}
