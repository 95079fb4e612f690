package input

import (
	"fmt"

	"github.com/tsinghua-fib-lab/railsim/utils/config"
)

// Input 输入数据
// 功能：存储仿真所需的所有输入数据，加载一次后由各次重复只读共享
type Input struct {
	Infrastructure *Infrastructure
	SlowZones      []SlowZone
	Paths          *PathConfig
	Schedule       *Schedule
	Rates          *ArrivalRates
}

// Load 根据配置加载所有输入数据
// 参数：c-输入文件路径配置
// 返回：加载完成的输入数据；任一文件缺失或格式错误时返回错误
func Load(c config.Input) (*Input, error) {
	var (
		res Input
		err error
	)
	if res.Infrastructure, err = LoadInfrastructure(c.Infrastructure); err != nil {
		return nil, fmt.Errorf("load infrastructure: %w", err)
	}
	if res.SlowZones, err = LoadSlowZones(c.SlowZones); err != nil {
		return nil, fmt.Errorf("load slow zones: %w", err)
	}
	if res.Paths, err = LoadPathConfig(c.Paths); err != nil {
		return nil, fmt.Errorf("load path config: %w", err)
	}
	if res.Schedule, err = LoadSchedule(c.Schedule); err != nil {
		return nil, fmt.Errorf("load schedule: %w", err)
	}
	if res.Rates, err = LoadArrivalRates(c.ArrivalRates); err != nil {
		return nil, fmt.Errorf("load arrival rates: %w", err)
	}
	return &res, nil
}
