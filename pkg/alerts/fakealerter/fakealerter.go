package fakealerter

import (
	"github.com/stretchr/testify/mock"
)

type FakeAlerter struct {
	mock.Mock
}

func (a *FakeAlerter) Heartbeat(tag string, expiry int) error {
	args := a.Called(tag, expiry)
	return args.Error(0)
}

func (a *FakeAlerter) Alert(tag, message string) error {
	args := a.Called(tag, message)
	return args.Error(0)
}
