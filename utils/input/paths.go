package input

// DispatchingBlock 发车闸门
type DispatchingBlock struct {
	Direction      string  `json:"direction"`
	BlockID        ID      `json:"block_id"`
	DispatchMargin float64 `json:"dispatch_margin"` // 秒
	UpstreamBlocks []ID    `json:"upstream_blocks,omitempty"`
}

// ShortTurning 折返进路
type ShortTurning struct {
	SouthboundBlock ID   `json:"southbound_block"` // 下行折返点
	NorthboundBlock ID   `json:"northbound_block"` // 上行重新投入运营的闭塞分区
	Inspection      bool `json:"inspection"`       // 折返时是否需要检查
}

// OffScanBlock 信号故障闭塞分区
type OffScanBlock struct {
	Direction   string  `json:"direction"`
	BlockID     ID      `json:"block_id"`
	Probability float64 `json:"probability"`
}

// PathConfig 进路配置
type PathConfig struct {
	Directions        []string                `json:"directions"`
	DispatchingBlocks []DispatchingBlock      `json:"dispatching_blocks"`
	ShortTurning      map[string]ShortTurning `json:"short_turning,omitempty"`
	OffScan           []OffScanBlock          `json:"off_scan,omitempty"`
	// 方向 -> 该方向列车始发的终点站名，对应blue_line_schedule的terminal
	Terminals map[string]string `json:"terminals,omitempty"`
}

// LoadPathConfig 读取进路配置JSON
func LoadPathConfig(path string) (*PathConfig, error) {
	var c PathConfig
	if err := readJSON(path, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
