package input

// StationRecord 闭塞分区内的车站
type StationRecord struct {
	Name                  string  `json:"STATION_NAME"`
	EndOfPlatformMilepost float64 `json:"END_OF_PLATFORM_MILEPOST"`
}

// BlockRecord 闭塞分区记录
type BlockRecord struct {
	Block      ID             `json:"BLOCK"`
	BlockAlt   ID             `json:"BLOCK_ALT"`
	Distance   float64        `json:"DISTANCE"` // 英尺
	Speed      float64        `json:"SPEED"`    // mph
	StartStn   float64        `json:"STARTSTN"` // 起点里程
	EndStn     float64        `json:"ENDSTN"`   // 终点里程
	SpeedCodes map[ID]float64 `json:"SPEED_CODES_TO_COMMUNICATE,omitempty"`
	Station    *StationRecord `json:"STATION,omitempty"`
}

// Infrastructure 两个方向的闭塞分区序列，按行车顺序排列
type Infrastructure struct {
	Northbound []BlockRecord `json:"Northbound"`
	Southbound []BlockRecord `json:"Southbound"`
}

// SlowZone 临时限速
type SlowZone struct {
	BlockID           ID      `json:"block_id"`
	ReducedSpeedLimit float64 `json:"reduced_speed_limit"`
}

// LoadInfrastructure 读取线路JSON
func LoadInfrastructure(path string) (*Infrastructure, error) {
	var infra Infrastructure
	if err := readJSON(path, &infra); err != nil {
		return nil, err
	}
	log.Infof("infrastructure: %d southbound blocks, %d northbound blocks", len(infra.Southbound), len(infra.Northbound))
	return &infra, nil
}

// LoadSlowZones 读取临时限速JSON，路径为空时返回空列表
func LoadSlowZones(path string) ([]SlowZone, error) {
	if path == "" {
		return nil, nil
	}
	var zones []SlowZone
	if err := readJSON(path, &zones); err != nil {
		return nil, err
	}
	return zones, nil
}
