package mocks

import (
	"reflect"

	"github.com/student-p2p/swarmkit/core/network"

	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/mock/gomock"
)

// MockNotifiee is a mock of the core/network.Notifiee interface.
type MockNotifiee struct {
	ctrl     *gomock.Controller
	recorder *MockNotifieeMockRecorder
}

// MockNotifieeMockRecorder is the mock recorder for MockNotifiee.
type MockNotifieeMockRecorder struct {
	mock *MockNotifiee
}

// NewMockNotifiee creates a new mock instance.
func NewMockNotifiee(ctrl *gomock.Controller) *MockNotifiee {
	mock := &MockNotifiee{ctrl: ctrl}
	mock.recorder = &MockNotifieeMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockNotifiee) EXPECT() *MockNotifieeMockRecorder {
	return m.recorder
}

// Listen mocks base method.
func (m *MockNotifiee) Listen(n network.Network, addr ma.Multiaddr) {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "Listen", n, addr)
}

// Listen indicates an expected call of Listen.
func (mr *MockNotifieeMockRecorder) Listen(n, addr any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Listen", reflect.TypeOf((*MockNotifiee)(nil).Listen), n, addr)
}

// ListenClose mocks base method.
func (m *MockNotifiee) ListenClose(n network.Network, addr ma.Multiaddr) {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "ListenClose", n, addr)
}

// ListenClose indicates an expected call of ListenClose.
func (mr *MockNotifieeMockRecorder) ListenClose(n, addr any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "ListenClose", reflect.TypeOf((*MockNotifiee)(nil).ListenClose), n, addr)
}

// Connected mocks base method.
func (m *MockNotifiee) Connected(n network.Network, c network.Conn) {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "Connected", n, c)
}

// Connected indicates an expected call of Connected.
func (mr *MockNotifieeMockRecorder) Connected(n, c any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Connected", reflect.TypeOf((*MockNotifiee)(nil).Connected), n, c)
}

// Disconnected mocks base method.
func (m *MockNotifiee) Disconnected(n network.Network, c network.Conn) {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "Disconnected", n, c)
}

// Disconnected indicates an expected call of Disconnected.
func (mr *MockNotifieeMockRecorder) Disconnected(n, c any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Disconnected", reflect.TypeOf((*MockNotifiee)(nil).Disconnected), n, c)
}

var _ network.Notifiee = (*MockNotifiee)(nil)
