package config

import (
	"fmt"
	"math"
)

const (
	SignalFixed  = "fixed"
	SignalMoving = "moving"

	RegulatorDefault = "default"
	RegulatorCTA     = "cta"

	quarterHour = 900.
)

// 时刻表窗口（一天中的秒数），[Start, End)
var schdWindows = map[string]Window{
	"AM": {Start: 6 * 3600, End: 10 * 3600},
	"PM": {Start: 15 * 3600, End: 19 * 3600},
}

var inspectionLevels = map[string]struct{}{"Low": {}, "Medium": {}, "High": {}}

// Window 发车时间窗口
type Window struct {
	Start float64
	End   float64
}

// Bins 窗口覆盖的15分钟时段编号
func (w Window) Bins() []int {
	bins := make([]int, 0)
	for b := int(w.Start / quarterHour); float64(b)*quarterHour < w.End; b++ {
		bins = append(bins, b)
	}
	return bins
}

// RuntimeConfig 运行时配置
// 功能：补全默认值、校验枚举项并推导时钟范围后的配置
type RuntimeConfig struct {
	All    Config  // 全部配置（已补全默认值）
	C      Control // 全局控制配置
	Window Window  // 发车窗口
}

// NewRuntimeConfig 根据配置初始化运行时配置
// 功能：创建运行时配置对象，进行配置验证和默认值设置
// 参数：config-原始配置对象
// 返回：运行时配置指针；配置矛盾或缺失时返回错误
// 算法说明：
// 1. 为零值字段设置默认值
// 2. 校验信号模式、调节器、时刻表、折返与检查等级等枚举
// 3. 若未指定总步数，则根据时刻表窗口与清空时长推导起止步
func NewRuntimeConfig(config Config) (*RuntimeConfig, error) {
	applyDefaults(&config)

	window, ok := schdWindows[config.Strategy.Schd]
	if !ok {
		return nil, fmt.Errorf("unknown schd %q", config.Strategy.Schd)
	}
	switch config.Signal.Mode {
	case SignalFixed, SignalMoving:
	default:
		return nil, fmt.Errorf("unknown signal mode %q", config.Signal.Mode)
	}
	switch config.Train.Regulator {
	case RegulatorDefault, RegulatorCTA:
	default:
		return nil, fmt.Errorf("unknown train regulator %q", config.Train.Regulator)
	}
	switch config.Strategy.ShortTurning {
	case "", "UIC", "Western":
	default:
		return nil, fmt.Errorf("unknown short_turning %q", config.Strategy.ShortTurning)
	}
	if _, ok := inspectionLevels[config.Strategy.InspectionTime]; !ok {
		return nil, fmt.Errorf("unknown inspection_time %q", config.Strategy.InspectionTime)
	}
	if config.Strategy.Holding && config.Strategy.Station == "" {
		return nil, fmt.Errorf("holding requires a control station")
	}
	if config.Strategy.MinHolding > config.Strategy.MaxHolding {
		return nil, fmt.Errorf("min_holding %v > max_holding %v", config.Strategy.MinHolding, config.Strategy.MaxHolding)
	}
	if p := config.Passenger.ProbabilityOfBoardingAnyTrain; p < 0 || p > 1 {
		return nil, fmt.Errorf("probability_of_boarding_any_train %v not in [0,1]", p)
	}
	if r := config.Train.DesiredSpeed; r.Min <= 0 || r.Min > r.Max {
		return nil, fmt.Errorf("invalid desired_speed range [%v, %v]", r.Min, r.Max)
	}
	if config.Control.Step.Interval <= 0 {
		return nil, fmt.Errorf("step interval must be positive")
	}

	step := &config.Control.Step
	if step.Total == 0 {
		step.Start = int32(math.Round(window.Start / step.Interval))
		step.Total = int32(math.Round((window.End - window.Start + config.Control.Drain) / step.Interval))
	}

	return &RuntimeConfig{
		All:    config,
		C:      config.Control,
		Window: window,
	}, nil
}

// applyDefaults 为零值字段设置默认值
func applyDefaults(c *Config) {
	setDefault(&c.Control.Step.Interval, 0.1)
	setDefault(&c.Control.Drain, 3600)
	setDefault(&c.Control.Replications, 1)
	setDefault(&c.Control.Parallel, 1)

	setDefault(&c.Signal.Mode, SignalFixed)
	setDefault(&c.Signal.SafetyMargin, 200)
	setDefault(&c.Signal.SightDistance, 2000)

	setDefault(&c.Train.Regulator, RegulatorDefault)
	setDefault(&c.Train.DesiredSpeed.Min, 0.8)
	setDefault(&c.Train.DesiredSpeed.Max, 1.0)
	setDefault(&c.Train.NormalDeceleration, 2.0)
	setDefault(&c.Train.EmergencyDeceleration, 3.0)
	setDefault(&c.Train.Cars, 8)
	setDefault(&c.Train.CarCapacity, 120)
	setDefault(&c.Train.SeatsPerCar, 40)

	setDefault(&c.Station.BaseDwell, 30)
	setDefault(&c.Station.AlightTime, 1.5)
	setDefault(&c.Station.BoardTime, 2.0)
	setDefault(&c.Station.StandeeFriction, 0.5)

	setDefault(&c.Strategy.Schd, "AM")
	setDefault(&c.Strategy.MaxHolding, 180)
	setDefault(&c.Strategy.MinHolding, 30)
	setDefault(&c.Strategy.InspectionTime, "Medium")

	setDefault(&c.Output.Dir, "output")
	setDefault(&c.Output.TrainSampleInterval, 10)
	setDefault(&c.Output.FlushEvery, 1000)
	setDefault(&c.Output.Mongo.DB, "railsim")
}

func setDefault[T comparable](v *T, def T) {
	var zero T
	if *v == zero {
		*v = def
	}
}
