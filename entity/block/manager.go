package block

import (
	"fmt"
	"slices"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/tsinghua-fib-lab/railsim/entity"
	"github.com/tsinghua-fib-lab/railsim/utils/input"
	"github.com/tsinghua-fib-lab/railsim/utils/randengine"
)

var log = logrus.WithField("module", "block")

// BlockManager 闭塞分区管理器
// 功能：根据线路数据构建两个方向的分区序列，挂载信号控制中心、临时限速、发车闸门与失码配置
type BlockManager struct {
	data   map[entity.Direction]map[string]*Block
	blocks map[entity.Direction][]*Block
	center *SignalControlCenter
}

// NewManager 创建闭塞分区管理器实例
func NewManager() *BlockManager {
	return &BlockManager{
		data:   make(map[entity.Direction]map[string]*Block),
		blocks: make(map[entity.Direction][]*Block),
		center: NewSignalControlCenter(),
	}
}

// Init 构建所有闭塞分区
// 参数：infra-线路数据，moving-是否为移动闭塞，sight-瞭望距离（英尺）
// 算法说明：
// 1. 按方向依次创建分区，站台位置 = (站台末端里程 - 起点里程) × 方向符号
// 2. 解析各分区的通信表（目标必须为同方向已存在分区）
// 3. 注册信号控制中心为观察者
func (m *BlockManager) Init(infra *input.Infrastructure, moving bool, sight float64) error {
	records := map[entity.Direction][]input.BlockRecord{
		entity.Southbound: infra.Southbound,
		entity.Northbound: infra.Northbound,
	}
	for _, dir := range entity.Directions() {
		recs := records[dir]
		if len(recs) == 0 {
			return fmt.Errorf("%w: no %v blocks", entity.ErrConfiguration, dir)
		}
		m.data[dir] = make(map[string]*Block, len(recs))
		m.blocks[dir] = make([]*Block, 0, len(recs))
		for _, r := range recs {
			id := r.Block.String()
			if _, ok := m.data[dir][id]; ok {
				return fmt.Errorf("%w: duplicate %v block %s", entity.ErrConfiguration, dir, id)
			}
			b := New(id, r.BlockAlt.String(), dir, KindNormal, r.Distance, r.Speed, sight)
			if moving {
				b.SetMoving()
			}
			if r.Station != nil {
				offset := (r.Station.EndOfPlatformMilepost - r.StartStn) * dir.Sign()
				if err := b.SetStation(r.Station.Name, offset); err != nil {
					return err
				}
			}
			b.AddObserver(m.center)
			m.data[dir][id] = b
			m.blocks[dir] = append(m.blocks[dir], b)
		}
		for _, r := range recs {
			b := m.data[dir][r.Block.String()]
			// 按目标编号排序以保证确定性
			targets := lo.Keys(r.SpeedCodes)
			slices.Sort(targets)
			for _, target := range targets {
				t, ok := m.data[dir][target.String()]
				if !ok {
					return fmt.Errorf("%w: block %s communicates to unknown %v block %s",
						entity.ErrConfiguration, b.id, dir, target)
				}
				b.AddCommunication(t, r.SpeedCodes[target])
			}
		}
		log.Infof("%v: %d blocks", dir, len(m.blocks[dir]))
	}
	return nil
}

// ApplySlowZones 叠加临时限速，未知分区编号记录警告后忽略
func (m *BlockManager) ApplySlowZones(zones []input.SlowZone) {
	for _, z := range zones {
		found := false
		for _, dir := range entity.Directions() {
			if b, ok := m.data[dir][z.BlockID.String()]; ok {
				b.ApplySlowZone(z.ReducedSpeedLimit)
				found = true
			}
		}
		if !found {
			log.Warnf("slow zone on unknown block %s ignored", z.BlockID)
		}
	}
}

// AttachGates 挂载发车闸门
// 返回：方向或分区未知、同一分区重复配置闸门时返回ErrConfiguration
func (m *BlockManager) AttachGates(gates []input.DispatchingBlock) error {
	for _, g := range gates {
		dir, err := entity.ParseDirection(g.Direction)
		if err != nil {
			return err
		}
		b, err := m.GetOrError(dir, g.BlockID.String())
		if err != nil {
			return fmt.Errorf("%w: dispatching block: %v", entity.ErrConfiguration, err)
		}
		if b.Gate != nil {
			return fmt.Errorf("%w: duplicate dispatching gate on %v block %s", entity.ErrConfiguration, dir, b.id)
		}
		gate := &DispatchingGate{Margin: g.DispatchMargin}
		for _, u := range g.UpstreamBlocks {
			ub, err := m.GetOrError(dir, u.String())
			if err != nil {
				return fmt.Errorf("%w: upstream of dispatching block %s: %v", entity.ErrConfiguration, b.id, err)
			}
			gate.Upstream = append(gate.Upstream, ub)
		}
		b.Gate = gate
	}
	return nil
}

// AttachOffScan 挂载失码配置，所有失码分区共享同一随机数引擎
func (m *BlockManager) AttachOffScan(cfgs []input.OffScanBlock, rng *randengine.Engine) error {
	for _, c := range cfgs {
		dir, err := entity.ParseDirection(c.Direction)
		if err != nil {
			return err
		}
		b, err := m.GetOrError(dir, c.BlockID.String())
		if err != nil {
			return fmt.Errorf("%w: off-scan block: %v", entity.ErrConfiguration, err)
		}
		b.SetOffScan(c.Probability, rng)
	}
	return nil
}

// Get 根据方向与编号获取闭塞分区，不存在则panic
func (m *BlockManager) Get(dir entity.Direction, id string) *Block {
	if b, ok := m.data[dir][id]; !ok {
		log.Panicf("no %v block %s", dir, id)
		return nil
	} else {
		return b
	}
}

// GetOrError 根据方向与编号获取闭塞分区
func (m *BlockManager) GetOrError(dir entity.Direction, id string) (*Block, error) {
	if b, ok := m.data[dir][id]; !ok {
		return nil, fmt.Errorf("no %v block %s", dir, id)
	} else {
		return b, nil
	}
}

// Blocks 某方向的分区序列（行车顺序）
func (m *BlockManager) Blocks(dir entity.Direction) []*Block {
	return m.blocks[dir]
}

// Center 信号控制中心
func (m *BlockManager) Center() *SignalControlCenter {
	return m.center
}
