package entity

import (
	"github.com/tsinghua-fib-lab/railsim/clock"
	"github.com/tsinghua-fib-lab/railsim/output"
	"github.com/tsinghua-fib-lab/railsim/utils/config"
)

// ITaskContext 一次仿真的上下文
type ITaskContext interface {
	Clock() *clock.Clock
	RuntimeConfig() *config.RuntimeConfig
	Logger() *output.Logger
	Dispatcher() IDispatcher
}
