package lark

import (
	"context"
	"errors"
	"testing"

	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkApproval "github.com/larksuite/oapi-sdk-go/v3/service/approval/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeInstances struct {
	resp *larkApproval.GetInstanceResp
	err  error
	reqs int
}

func (f *fakeInstances) Get(ctx context.Context, req *larkApproval.GetInstanceReq, options ...larkcore.RequestOptionFunc) (*larkApproval.GetInstanceResp, error) {
	f.reqs++
	return f.resp, f.err
}

type fakeApprovals struct {
	resp *larkApproval.SubscribeApprovalResp
	err  error
}

func (f *fakeApprovals) Subscribe(ctx context.Context, req *larkApproval.SubscribeApprovalReq, options ...larkcore.RequestOptionFunc) (*larkApproval.SubscribeApprovalResp, error) {
	return f.resp, f.err
}

func TestFormAPI_Submission(t *testing.T) {
	userID, openID, status := "emp0000057", "ou_1", "APPROVED"
	instances := &fakeInstances{resp: &larkApproval.GetInstanceResp{
		Data: &larkApproval.GetInstanceRespData{UserId: &userID, OpenId: &openID, Status: &status},
	}}
	api := &FormAPI{instances: instances, logger: zap.NewNop()}

	sub, err := api.Submission(context.Background(), "INST-1")
	require.NoError(t, err)
	assert.Equal(t, &Submission{InstanceCode: "INST-1", UserID: userID, OpenID: openID, Status: status}, sub)
	assert.Equal(t, 1, instances.reqs)
}

func TestFormAPI_SubmissionErrors(t *testing.T) {
	api := &FormAPI{instances: &fakeInstances{err: errors.New("timeout")}, logger: zap.NewNop()}
	_, err := api.Submission(context.Background(), "INST-1")
	assert.Error(t, err)

	failed := &larkApproval.GetInstanceResp{CodeError: larkcore.CodeError{Code: 1390001, Msg: "param is invalid"}}
	api = &FormAPI{instances: &fakeInstances{resp: failed}, logger: zap.NewNop()}
	_, err = api.Submission(context.Background(), "INST-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1390001")
}

func TestFormAPI_Subscribe(t *testing.T) {
	ok := &FormAPI{approvals: &fakeApprovals{resp: &larkApproval.SubscribeApprovalResp{}}, logger: zap.NewNop()}
	assert.NoError(t, ok.Subscribe(context.Background(), "NEW-EMPLOYEE-FORM"))
	assert.Error(t, ok.Subscribe(context.Background(), ""))

	already := &larkApproval.SubscribeApprovalResp{CodeError: larkcore.CodeError{Code: codeAlreadySubscribed}}
	again := &FormAPI{approvals: &fakeApprovals{resp: already}, logger: zap.NewNop()}
	assert.NoError(t, again.Subscribe(context.Background(), "NEW-EMPLOYEE-FORM"))

	denied := &larkApproval.SubscribeApprovalResp{CodeError: larkcore.CodeError{Code: 99991663, Msg: "no permission"}}
	failing := &FormAPI{approvals: &fakeApprovals{resp: denied}, logger: zap.NewNop()}
	assert.Error(t, failing.Subscribe(context.Background(), "NEW-EMPLOYEE-FORM"))
}
