package testutils

import (
	"github.com/srg/ancs/internal/ancs"
	"github.com/stretchr/testify/mock"
)

// MockControlPoint is a testify mock of engine.ControlPoint.
//
// NewMockControlPoint accepts every call; tests override with On(...) before use or inspect
// calls with AssertNumberOfCalls / Calls.
type MockControlPoint struct {
	mock.Mock
}

// NewMockControlPoint returns a mock that succeeds on every command.
func NewMockControlPoint() *MockControlPoint {
	m := &MockControlPoint{}
	m.On("RequestNotificationAttributes", mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("RequestAppAttributes", mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("PerformAction", mock.Anything, mock.Anything).Return(nil).Maybe()
	return m
}

func (m *MockControlPoint) RequestNotificationAttributes(uid uint32, ids []ancs.NotificationAttributeID) error {
	args := m.Called(uid, ids)
	return args.Error(0)
}

func (m *MockControlPoint) RequestAppAttributes(appID string, ids []ancs.AppAttributeID) error {
	args := m.Called(appID, ids)
	return args.Error(0)
}

func (m *MockControlPoint) PerformAction(uid uint32, action ancs.ActionID) error {
	args := m.Called(uid, action)
	return args.Error(0)
}

// CallsTo returns the recorded calls of method in order.
func (m *MockControlPoint) CallsTo(method string) []mock.Call {
	var out []mock.Call
	for _, c := range m.Calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Fail makes method return err for any arguments, replacing earlier expectations.
func (m *MockControlPoint) Fail(method string, err error) {
	m.replace(method, err)
}

// Succeed makes method succeed again.
func (m *MockControlPoint) Succeed(method string) {
	m.replace(method, nil)
}

func (m *MockControlPoint) replace(method string, err error) {
	var kept []*mock.Call
	for _, c := range m.ExpectedCalls {
		if c.Method != method {
			kept = append(kept, c)
		}
	}
	m.ExpectedCalls = kept
	m.On(method, mock.Anything, mock.Anything).Return(err).Maybe()
}
