// Package mocks holds go.uber.org/mock/gomock test doubles for the
// interfaces core/connmgr and core/network expose, in the same generated
// shape go.uber.org/mock's mockgen produces (see, e.g., prysmaticlabs/
// prysm's MockHealthClient): a struct wrapping a *gomock.Controller plus a
// *MockRecorder, used from test code that needs to assert exactly which
// calls a ConnGater/Notifiee receives rather than hand-rolling a fake.
package mocks

import (
	"reflect"

	"github.com/student-p2p/swarmkit/core/connmgr"
	"github.com/student-p2p/swarmkit/core/network"
	"github.com/student-p2p/swarmkit/core/peer"

	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/mock/gomock"
)

// MockConnGater is a mock of the core/connmgr.ConnGater interface.
type MockConnGater struct {
	ctrl     *gomock.Controller
	recorder *MockConnGaterMockRecorder
}

// MockConnGaterMockRecorder is the mock recorder for MockConnGater.
type MockConnGaterMockRecorder struct {
	mock *MockConnGater
}

// NewMockConnGater creates a new mock instance.
func NewMockConnGater(ctrl *gomock.Controller) *MockConnGater {
	mock := &MockConnGater{ctrl: ctrl}
	mock.recorder = &MockConnGaterMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockConnGater) EXPECT() *MockConnGaterMockRecorder {
	return m.recorder
}

// InterceptPeerDial mocks base method.
func (m *MockConnGater) InterceptPeerDial(p peer.ID) bool {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "InterceptPeerDial", p)
	allow, _ := ret[0].(bool)
	return allow
}

// InterceptPeerDial indicates an expected call of InterceptPeerDial.
func (mr *MockConnGaterMockRecorder) InterceptPeerDial(p any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "InterceptPeerDial", reflect.TypeOf((*MockConnGater)(nil).InterceptPeerDial), p)
}

// InterceptAddrDial mocks base method.
func (m *MockConnGater) InterceptAddrDial(p peer.ID, addr ma.Multiaddr) bool {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "InterceptAddrDial", p, addr)
	allow, _ := ret[0].(bool)
	return allow
}

// InterceptAddrDial indicates an expected call of InterceptAddrDial.
func (mr *MockConnGaterMockRecorder) InterceptAddrDial(p, addr any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "InterceptAddrDial", reflect.TypeOf((*MockConnGater)(nil).InterceptAddrDial), p, addr)
}

// InterceptAccept mocks base method.
func (m *MockConnGater) InterceptAccept(conn network.ConnMultiaddrs) bool {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "InterceptAccept", conn)
	allow, _ := ret[0].(bool)
	return allow
}

// InterceptAccept indicates an expected call of InterceptAccept.
func (mr *MockConnGaterMockRecorder) InterceptAccept(conn any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "InterceptAccept", reflect.TypeOf((*MockConnGater)(nil).InterceptAccept), conn)
}

// InterceptSecured mocks base method.
func (m *MockConnGater) InterceptSecured(dir network.Direction, p peer.ID, conn network.ConnMultiaddrs) bool {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "InterceptSecured", dir, p, conn)
	allow, _ := ret[0].(bool)
	return allow
}

// InterceptSecured indicates an expected call of InterceptSecured.
func (mr *MockConnGaterMockRecorder) InterceptSecured(dir, p, conn any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "InterceptSecured", reflect.TypeOf((*MockConnGater)(nil).InterceptSecured), dir, p, conn)
}

// InterceptUpgraded mocks base method.
func (m *MockConnGater) InterceptUpgraded(conn network.Conn) (bool, connmgr.DisconnectReason) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "InterceptUpgraded", conn)
	allow, _ := ret[0].(bool)
	reason, _ := ret[1].(connmgr.DisconnectReason)
	return allow, reason
}

// InterceptUpgraded indicates an expected call of InterceptUpgraded.
func (mr *MockConnGaterMockRecorder) InterceptUpgraded(conn any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "InterceptUpgraded", reflect.TypeOf((*MockConnGater)(nil).InterceptUpgraded), conn)
}

var _ connmgr.ConnGater = (*MockConnGater)(nil)
