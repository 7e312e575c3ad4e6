// Package protocol defines the topics and payloads exchanged between a page
// context and the controller process. Both sides import it; nothing in here
// depends on the transport.
package protocol

import "fmt"

// Topics understood by the controller. Renderer requests flow on the first
// four, the last one is pushed by the controller.
const (
	TopicDialog         = "PAGEBRIDGE_DIALOG_SHOW_MESSAGE_BOX"
	TopicNavigation     = "PAGEBRIDGE_NAVIGATION_CONTROLLER"
	TopicNavigationSync = "PAGEBRIDGE_SYNC_NAVIGATION_CONTROLLER"
	TopicOpener         = "PAGEBRIDGE_GUEST_WINDOW_PROXY"
	TopicVisibility     = "PAGEBRIDGE_RENDERER_WINDOW_VISIBILITY_CHANGE"
)

// Launch arguments passed to a page process.
const (
	FlagHiddenPage = "--hidden-page"
	FlagOpenerID   = "--opener-id"
)

// DialogKind selects the dialog flavour.
type DialogKind string

const (
	DialogAlert   DialogKind = "alert"
	DialogConfirm DialogKind = "confirm"
)

// Button labels used by the renderer dialogs.
const (
	ButtonOK     = "OK"
	ButtonCancel = "Cancel"
)

// ConfirmCancelID is the index of the Cancel button in a confirm dialog.
// The controller must keep button order as sent.
const ConfirmCancelID = 1

// DialogRequest asks the controller to show a message box. The reply is the
// index of the chosen button.
type DialogRequest struct {
	Kind     DialogKind `json:"kind"`
	Message  string     `json:"message"`
	Title    string     `json:"title"`
	Buttons  []string   `json:"buttons"`
	CancelID *int       `json:"cancelId,omitempty"`
}

// HistoryOperation names a navigation controller command.
type HistoryOperation string

const (
	OpGoBack     HistoryOperation = "goBack"
	OpGoForward  HistoryOperation = "goForward"
	OpGoToOffset HistoryOperation = "goToOffset"
	OpLength     HistoryOperation = "length"
)

// HistoryCommand is one navigation request. Argument is only set for
// goToOffset.
type HistoryCommand struct {
	Operation HistoryOperation
	Argument  *int
}

// Args flattens the command into wire arguments: the operation name
// followed by the optional argument.
func (c HistoryCommand) Args() []any {
	if c.Argument == nil {
		return []any{string(c.Operation)}
	}
	return []any{string(c.Operation), *c.Argument}
}

// VisibilityState is the page visibility as decided by the controller.
type VisibilityState string

const (
	Visible VisibilityState = "visible"
	Hidden  VisibilityState = "hidden"
)

// ParseVisibilityState accepts only the two known states.
func ParseVisibilityState(s string) (VisibilityState, error) {
	switch VisibilityState(s) {
	case Visible, Hidden:
		return VisibilityState(s), nil
	}
	return "", fmt.Errorf("unknown visibility state %q", s)
}

// OpenerAccessKind distinguishes property reads from method calls on a
// remote window.
type OpenerAccessKind string

const (
	AccessGet  OpenerAccessKind = "get"
	AccessCall OpenerAccessKind = "call"
)

// Remote window members served by the controller.
const (
	MemberClosed      = "closed"
	MemberLocation    = "location"
	MemberFocus       = "focus"
	MemberBlur        = "blur"
	MemberClose       = "close"
	MemberPostMessage = "postMessage"
	MemberEval        = "eval"
)

// OpenerAccess describes one member access on a remote window. It travels
// after the window id in a TopicOpener request.
type OpenerAccess struct {
	Kind OpenerAccessKind `json:"kind"`
	Name string           `json:"name"`
	Args []any            `json:"args,omitempty"`
}
