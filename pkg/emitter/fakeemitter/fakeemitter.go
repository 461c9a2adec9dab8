package fakeemitter

import (
	"github.com/stretchr/testify/mock"

	"github.com/alphagov/paas-stats-tallier/pkg/metrics"
)

type FakeEmitter struct {
	mock.Mock
}

func (e *FakeEmitter) Emit(m []metrics.Metric) error {
	args := e.Called(m)
	return args.Error(0)
}
