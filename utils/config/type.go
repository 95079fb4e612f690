package config

// Input 指定模拟器所有输入数据的文件路径
type Input struct {
	Infrastructure string `yaml:"infrastructure"`       // 线路闭塞分区JSON
	SlowZones      string `yaml:"slow_zones,omitempty"` // 临时限速JSON（可选）
	Paths          string `yaml:"paths"`                // 进路与发车闸门配置JSON
	Schedule       string `yaml:"schedule"`             // 经验时刻表JSON
	ArrivalRates   string `yaml:"arrival_rates"`        // 客流到达率CSV
}

// ControlStep 指定模拟器模拟时间范围和间隔的配置项
// 说明：Total为0时由时刻表窗口与清空时长推导Start与Total
type ControlStep struct {
	Start    int32   `yaml:"start"`    // 开始步数
	Total    int32   `yaml:"total"`    // 总步数
	Interval float64 `yaml:"interval"` // 每步的时间间隔（秒）
}

// Control 模拟器控制配置
type Control struct {
	Step         ControlStep `yaml:"step"`
	Drain        float64     `yaml:"drain,omitempty"`        // 发车窗口结束后继续模拟的时长（秒）
	Replications int         `yaml:"replications,omitempty"` // 独立重复次数
	Parallel     int         `yaml:"parallel,omitempty"`     // 并行运行的重复数上限
	Seed         uint64      `yaml:"seed"`                   // 随机种子，第i次重复使用seed+i
	Weekday      bool        `yaml:"weekday"`                // 是否使用工作日客流
}

// Signal 信号系统配置
type Signal struct {
	Mode          string  `yaml:"mode,omitempty"`           // fixed | moving
	SafetyMargin  float64 `yaml:"safety_margin,omitempty"`  // 移动闭塞安全余量（英尺）
	SightDistance float64 `yaml:"sight_distance,omitempty"` // 司机瞭望距离（英尺）
}

// Range 闭区间[Min, Max]
type Range struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// Train 列车与速度调节器配置
type Train struct {
	Regulator             string  `yaml:"regulator,omitempty"`              // default | cta
	DesiredSpeed          Range   `yaml:"desired_speed,omitempty"`          // CTA期望速度系数范围
	NormalDeceleration    float64 `yaml:"normal_deceleration,omitempty"`    // 常用制动减速度（mph/s）
	EmergencyDeceleration float64 `yaml:"emergency_deceleration,omitempty"` // 紧急制动减速度（mph/s）
	Cars                  int32   `yaml:"cars,omitempty"`                   // 编组车辆数
	CarCapacity           int32   `yaml:"car_capacity,omitempty"`           // 每车定员
	SeatsPerCar           int32   `yaml:"seats_per_car,omitempty"`          // 每车座位数
}

// Station 车站停站时间模型配置
type Station struct {
	BaseDwell       float64 `yaml:"base_dwell,omitempty"`       // 基础停站时间（秒）
	AlightTime      float64 `yaml:"alight_time,omitempty"`      // 每门每名下车乘客耗时（秒）
	BoardTime       float64 `yaml:"board_time,omitempty"`       // 每门每名上车乘客耗时（秒）
	StandeeFriction float64 `yaml:"standee_friction,omitempty"` // 站立乘客对上下车的阻滞系数
}

// Strategy 运营控制策略
type Strategy struct {
	ShortTurning      string  `yaml:"short_turning,omitempty"`      // "" | UIC | Western
	Holding           bool    `yaml:"holding,omitempty"`            // 是否在控制站滞留
	Station           string  `yaml:"station,omitempty"`            // 控制站名
	Schd              string  `yaml:"schd,omitempty"`               // AM | PM
	MaxHolding        float64 `yaml:"max_holding,omitempty"`        // 最大滞留时间（秒）
	MinHolding        float64 `yaml:"min_holding,omitempty"`        // 最小滞留时间（秒）
	HeadwayManagement bool    `yaml:"headway_management,omitempty"` // 是否启用间隔管理
	InspectionTime    string  `yaml:"inspection_time,omitempty"`    // Low | Medium | High
}

// Passenger 乘客行为配置
type Passenger struct {
	ProbabilityOfBoardingAnyTrain float64 `yaml:"probability_of_boarding_any_train,omitempty"`
}

// Mongo 输出数据库配置，URI为空则不写入数据库
type Mongo struct {
	URI string `yaml:"uri,omitempty"`
	DB  string `yaml:"db,omitempty"`
}

// Output 输出配置
type Output struct {
	Dir                 string `yaml:"dir,omitempty"`                   // CSV输出根目录
	TrainSampleInterval int32  `yaml:"train_sample_interval,omitempty"` // 列车轨迹采样间隔（步）
	FlushEvery          int    `yaml:"flush_every,omitempty"`           // 写入多少条记录后刷新
	Mongo               Mongo  `yaml:"mongo,omitempty"`
}

// Config YAML配置文件的根结构
type Config struct {
	Input     Input     `yaml:"input"`
	Control   Control   `yaml:"control"`
	Signal    Signal    `yaml:"signal,omitempty"`
	Train     Train     `yaml:"train,omitempty"`
	Station   Station   `yaml:"station,omitempty"`
	Strategy  Strategy  `yaml:"strategy,omitempty"`
	Passenger Passenger `yaml:"passenger,omitempty"`
	Output    Output    `yaml:"output,omitempty"`
}
