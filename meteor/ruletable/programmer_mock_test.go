/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Source: meteor/ruletable/ruletable.go

package ruletable

import (
	reflect "reflect"

	gomock "go.uber.org/mock/gomock"
)

// MockProgrammer is a mock of Programmer interface.
type MockProgrammer struct {
	ctrl     *gomock.Controller
	recorder *MockProgrammerMockRecorder
}

// MockProgrammerMockRecorder is the mock recorder for MockProgrammer.
type MockProgrammerMockRecorder struct {
	mock *MockProgrammer
}

// NewMockProgrammer creates a new mock instance.
func NewMockProgrammer(ctrl *gomock.Controller) *MockProgrammer {
	mock := &MockProgrammer{ctrl: ctrl}
	mock.recorder = &MockProgrammerMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockProgrammer) EXPECT() *MockProgrammerMockRecorder {
	return m.recorder
}

// AddRule mocks base method.
func (m *MockProgrammer) AddRule(peerID int32, useIPv4 bool, src, dst Endpoint) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "AddRule", peerID, useIPv4, src, dst)
	ret0, _ := ret[0].(error)
	return ret0
}

// AddRule indicates an expected call of AddRule.
func (mr *MockProgrammerMockRecorder) AddRule(peerID, useIPv4, src, dst interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "AddRule", reflect.TypeOf((*MockProgrammer)(nil).AddRule), peerID, useIPv4, src, dst)
}

// ConfigureRule mocks base method.
func (m *MockProgrammer) ConfigureRule(peerID int32, bandwidthBitsPerSec uint64, delayUs, jitterUs uint32, lossPercent float64) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "ConfigureRule", peerID, bandwidthBitsPerSec, delayUs, jitterUs, lossPercent)
	ret0, _ := ret[0].(error)
	return ret0
}

// ConfigureRule indicates an expected call of ConfigureRule.
func (mr *MockProgrammerMockRecorder) ConfigureRule(peerID, bandwidthBitsPerSec, delayUs, jitterUs, lossPercent interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "ConfigureRule", reflect.TypeOf((*MockProgrammer)(nil).ConfigureRule), peerID, bandwidthBitsPerSec, delayUs, jitterUs, lossPercent)
}

// DeleteRule mocks base method.
func (m *MockProgrammer) DeleteRule(peerID int32) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "DeleteRule", peerID)
	ret0, _ := ret[0].(error)
	return ret0
}

// DeleteRule indicates an expected call of DeleteRule.
func (mr *MockProgrammerMockRecorder) DeleteRule(peerID interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "DeleteRule", reflect.TypeOf((*MockProgrammer)(nil).DeleteRule), peerID)
}
