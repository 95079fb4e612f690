package path

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/tsinghua-fib-lab/railsim/entity"
	"github.com/tsinghua-fib-lab/railsim/entity/block"
	"github.com/tsinghua-fib-lab/railsim/utils/input"
)

var log = logrus.WithField("module", "path")

// PathManager 进路管理器
type PathManager struct {
	data         map[string]*Path
	directions   map[entity.Direction]*Path
	shortTurning *ShortTurningPath
}

// NewManager 创建进路管理器实例
func NewManager() *PathManager {
	return &PathManager{
		data:       make(map[string]*Path),
		directions: make(map[entity.Direction]*Path),
	}
}

// Init 构建两个方向的进路及可选的折返进路
// 参数：blocks-闭塞分区管理器，cfg-进路配置，shortTurning-启用的折返方案名（空表示不折返），inspection-检查时间等级
func (m *PathManager) Init(blocks *block.BlockManager, cfg *input.PathConfig, shortTurning, inspection string) error {
	names := cfg.Directions
	if len(names) == 0 {
		names = []string{entity.Southbound.String(), entity.Northbound.String()}
	}
	for _, name := range names {
		dir, err := entity.ParseDirection(name)
		if err != nil {
			return err
		}
		if _, ok := m.directions[dir]; ok {
			return fmt.Errorf("%w: duplicate path direction %v", entity.ErrConfiguration, dir)
		}
		p, err := New(dir.String(), dir, blocks.Blocks(dir))
		if err != nil {
			return err
		}
		m.directions[dir] = p
		m.data[p.name] = p
		log.Infof("path %s: %d blocks, %d stops, %.0f ft", p.name, p.Len(), len(p.stops), p.total)
	}
	for _, dir := range entity.Directions() {
		if _, ok := m.directions[dir]; !ok {
			return fmt.Errorf("%w: missing %v path", entity.ErrConfiguration, dir)
		}
	}
	if shortTurning == "" {
		return nil
	}
	st, ok := cfg.ShortTurning[shortTurning]
	if !ok {
		return fmt.Errorf("%w: short turning %q not in path config", entity.ErrConfiguration, shortTurning)
	}
	stp, err := NewShortTurningPath(m.directions[entity.Southbound], m.directions[entity.Northbound],
		st.SouthboundBlock.String(), st.NorthboundBlock.String(), st.Inspection, inspection)
	if err != nil {
		return err
	}
	m.shortTurning = stp
	m.data[stp.name] = stp.Path
	log.Infof("short turning %s at %s -> %s, inspection=%v", shortTurning, st.SouthboundBlock, st.NorthboundBlock, st.Inspection)
	return nil
}

// Get 根据进路名获取进路，不存在则panic
func (m *PathManager) Get(name string) *Path {
	if p, ok := m.data[name]; !ok {
		log.Panicf("no path %s", name)
		return nil
	} else {
		return p
	}
}

// GetOrError 根据进路名获取进路
func (m *PathManager) GetOrError(name string) (*Path, error) {
	if p, ok := m.data[name]; !ok {
		return nil, fmt.Errorf("no path %s", name)
	} else {
		return p, nil
	}
}

// Direction 某方向的进路
func (m *PathManager) Direction(dir entity.Direction) *Path {
	return m.directions[dir]
}

// ShortTurning 折返进路，未启用时为nil
func (m *PathManager) ShortTurning() *ShortTurningPath {
	return m.shortTurning
}

// IsShortTurning 进路p是否为折返进路
func (m *PathManager) IsShortTurning(p *Path) bool {
	return m.shortTurning != nil && m.shortTurning.Path == p
}
