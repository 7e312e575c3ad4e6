package controller_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/pagebridge/internal/channel"
	"github.com/xkilldash9x/pagebridge/internal/config"
	"github.com/xkilldash9x/pagebridge/internal/controller"
	"github.com/xkilldash9x/pagebridge/internal/mocks"
	"github.com/xkilldash9x/pagebridge/internal/protocol"
)

func testControllerConfig() config.ControllerConfig {
	cfg := config.NewDefaultConfig().Controller()
	cfg.InitialHistory = []string{"https://a.example/", "https://b.example/", "https://c.example/"}
	return cfg
}

func request(t *testing.T, topic string, args ...any) channel.Request {
	t.Helper()
	encoded, err := channel.EncodeArgs(args...)
	require.NoError(t, err)
	return channel.Request{Topic: topic, Args: encoded, Sync: true}
}

func TestSession_QueriesRequireRoundTrip(t *testing.T) {
	ctrl := controller.New(testControllerConfig(), nil, zaptest.NewLogger(t))
	session := ctrl.Open(new(mocks.MockPusher), false)

	for _, topic := range []string{protocol.TopicDialog, protocol.TopicNavigationSync, protocol.TopicOpener} {
		req := request(t, topic, "length")
		req.Sync = false
		_, err := session.Serve(context.Background(), req)
		assert.ErrorIs(t, err, controller.ErrReplyRequired, topic)
	}

	// Navigation moves are one-way.
	req := request(t, protocol.TopicNavigation, "goBack")
	req.Sync = false
	_, err := session.Serve(context.Background(), req)
	assert.NoError(t, err)
}

func TestSession_Navigation(t *testing.T) {
	ctrl := controller.New(testControllerConfig(), nil, zaptest.NewLogger(t))
	session := ctrl.Open(new(mocks.MockPusher), false)
	ctx := context.Background()

	length, err := session.Serve(ctx, request(t, protocol.TopicNavigationSync, "length"))
	require.NoError(t, err)
	assert.Equal(t, 3, length)

	_, err = session.Serve(ctx, request(t, protocol.TopicNavigation, "goToOffset", -2))
	require.NoError(t, err)
	info, err := ctrl.Window(session.WindowID())
	require.NoError(t, err)
	assert.Equal(t, "https://a.example/", info.Location)

	_, err = session.Serve(ctx, request(t, protocol.TopicNavigation, "goForward"))
	require.NoError(t, err)
	_, err = session.Serve(ctx, request(t, protocol.TopicNavigation, "goToOffset", 10))
	require.NoError(t, err, "out of range offsets are ignored, not rejected")
	info, _ = ctrl.Window(session.WindowID())
	assert.Equal(t, "https://b.example/", info.Location)

	_, err = session.Serve(ctx, request(t, protocol.TopicNavigation, "reload"))
	assert.Error(t, err)
	_, err = session.Serve(ctx, request(t, protocol.TopicNavigation, "goToOffset"))
	assert.ErrorIs(t, err, channel.ErrMissingArgument)
}

func TestSession_Dialogs(t *testing.T) {
	cfg := testControllerConfig()
	cfg.Dialog.ConfirmResponse = 1
	ctrl := controller.New(cfg, nil, zaptest.NewLogger(t))
	session := ctrl.Open(new(mocks.MockPusher), false)
	cancelID := protocol.ConfirmCancelID

	answer, err := session.Serve(context.Background(), request(t, protocol.TopicDialog, protocol.DialogRequest{
		Kind:     protocol.DialogConfirm,
		Message:  "Leave?",
		Buttons:  []string{protocol.ButtonOK, protocol.ButtonCancel},
		CancelID: &cancelID,
	}))
	require.NoError(t, err)
	assert.Equal(t, 1, answer)

	answer, err = session.Serve(context.Background(), request(t, protocol.TopicDialog, protocol.DialogRequest{
		Kind:    protocol.DialogAlert,
		Message: "Saved",
		Buttons: []string{protocol.ButtonOK},
	}))
	require.NoError(t, err)
	assert.Equal(t, 0, answer)
}

type fixedResponder struct{ answer int }

func (f fixedResponder) Respond(context.Context, int64, protocol.DialogRequest) (int, error) {
	return f.answer, nil
}

func TestSession_CustomResponder(t *testing.T) {
	ctrl := controller.New(testControllerConfig(), fixedResponder{answer: 4}, zaptest.NewLogger(t))
	session := ctrl.Open(new(mocks.MockPusher), false)

	answer, err := session.Serve(context.Background(), request(t, protocol.TopicDialog, protocol.DialogRequest{
		Kind:    protocol.DialogConfirm,
		Buttons: []string{protocol.ButtonOK, protocol.ButtonCancel},
	}))
	require.NoError(t, err)
	assert.Equal(t, 4, answer)
}

func TestScriptedResponder_OutOfRange(t *testing.T) {
	r := controller.ScriptedResponder{ConfirmResponse: 5}
	_, err := r.Respond(context.Background(), 1, protocol.DialogRequest{
		Kind:    protocol.DialogConfirm,
		Buttons: []string{protocol.ButtonOK, protocol.ButtonCancel},
	})
	assert.Error(t, err)

	_, err = r.Respond(context.Background(), 1, protocol.DialogRequest{Kind: protocol.DialogAlert})
	assert.Error(t, err)
}

func TestSession_Opener(t *testing.T) {
	ctrl := controller.New(testControllerConfig(), nil, zaptest.NewLogger(t))
	opener := ctrl.Open(new(mocks.MockPusher), false)
	child := ctrl.Open(new(mocks.MockPusher), false)
	ctx := context.Background()

	access := func(kind protocol.OpenerAccessKind, name string, args ...any) channel.Request {
		return request(t, protocol.TopicOpener, opener.WindowID(), protocol.OpenerAccess{Kind: kind, Name: name, Args: args})
	}

	location, err := child.Serve(ctx, access(protocol.AccessGet, protocol.MemberLocation))
	require.NoError(t, err)
	assert.Equal(t, "https://c.example/", location)

	_, err = child.Serve(ctx, access(protocol.AccessCall, protocol.MemberFocus))
	require.NoError(t, err)
	_, err = child.Serve(ctx, access(protocol.AccessCall, protocol.MemberPostMessage, map[string]any{"hello": "world"}, "*"))
	require.NoError(t, err)

	info, err := ctrl.Window(opener.WindowID())
	require.NoError(t, err)
	assert.True(t, info.Focused)
	require.Len(t, info.Inbox, 1)
	assert.Equal(t, child.WindowID(), info.Inbox[0].From)
	assert.Equal(t, map[string]any{"hello": "world"}, info.Inbox[0].Data)
	assert.Equal(t, "*", info.Inbox[0].TargetOrigin)

	_, err = child.Serve(ctx, access(protocol.AccessCall, protocol.MemberEval, "document.cookie"))
	assert.ErrorIs(t, err, controller.ErrUnsupportedMember)

	closed, err := child.Serve(ctx, access(protocol.AccessGet, protocol.MemberClosed))
	require.NoError(t, err)
	assert.Equal(t, false, closed)

	opener.Close()
	closed, err = child.Serve(ctx, access(protocol.AccessGet, protocol.MemberClosed))
	require.NoError(t, err)
	assert.Equal(t, true, closed)

	_, err = child.Serve(ctx, request(t, protocol.TopicOpener, int64(99), protocol.OpenerAccess{Kind: protocol.AccessGet, Name: protocol.MemberClosed}))
	var notFound *controller.WindowNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, int64(99), notFound.ID)
}

func TestSession_UnknownTopic(t *testing.T) {
	ctrl := controller.New(testControllerConfig(), nil, zaptest.NewLogger(t))
	session := ctrl.Open(new(mocks.MockPusher), false)

	_, err := session.Serve(context.Background(), request(t, "SOMETHING_ELSE"))
	assert.ErrorIs(t, err, controller.ErrUnknownTopic)
}

func TestController_SetVisibilityPushesEveryTime(t *testing.T) {
	pusher := new(mocks.MockPusher)
	pusher.On("Push", protocol.TopicVisibility, []any{"hidden"}).Return(nil).Twice()

	ctrl := controller.New(testControllerConfig(), nil, zaptest.NewLogger(t))
	session := ctrl.Open(pusher, false)

	require.NoError(t, ctrl.SetVisibility(session.WindowID(), protocol.Hidden))
	require.NoError(t, ctrl.SetVisibility(session.WindowID(), protocol.Hidden))
	pusher.AssertExpectations(t)

	info, err := ctrl.Window(session.WindowID())
	require.NoError(t, err)
	assert.Equal(t, protocol.Hidden, info.Visibility)

	assert.Error(t, ctrl.SetVisibility(session.WindowID(), "minimized"))
	pusher.AssertNumberOfCalls(t, "Push", 2)

	var notFound *controller.WindowNotFoundError
	assert.ErrorAs(t, ctrl.SetVisibility(42, protocol.Visible), &notFound)
}

func TestController_SetVisibilityPushFailure(t *testing.T) {
	pusher := new(mocks.MockPusher)
	pusher.On("Push", protocol.TopicVisibility, mock.Anything).Return(channel.ErrClosed)

	ctrl := controller.New(testControllerConfig(), nil, zaptest.NewLogger(t))
	session := ctrl.Open(pusher, true)

	err := ctrl.SetVisibility(session.WindowID(), protocol.Visible)
	assert.True(t, errors.Is(err, channel.ErrClosed))

	session.Close()
	assert.Error(t, ctrl.SetVisibility(session.WindowID(), protocol.Visible), "closed windows take no pushes")
}

func TestController_WindowsSnapshot(t *testing.T) {
	ctrl := controller.New(testControllerConfig(), nil, zaptest.NewLogger(t))
	first := ctrl.Open(new(mocks.MockPusher), true)
	second := ctrl.Open(new(mocks.MockPusher), false)
	require.NoError(t, ctrl.Navigate(second.WindowID(), "https://d.example/"))

	windows := ctrl.Windows()
	require.Len(t, windows, 2)
	assert.Equal(t, first.WindowID(), windows[0].ID)
	assert.Equal(t, protocol.Hidden, windows[0].Visibility)
	assert.Equal(t, "https://d.example/", windows[1].Location)
	assert.Equal(t, 4, windows[1].HistoryLen)
}
