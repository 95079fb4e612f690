package path

import (
	"fmt"
	"slices"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/railsim/entity"
	"github.com/tsinghua-fib-lab/railsim/entity/block"
)

// 终点虚拟分区参数
const (
	TerminalLength = 500. // 英尺
	TerminalCode   = 15.  // mph
)

// Stop 进路上的停站
type Stop struct {
	Index  int     // 所在分区下标
	Name   string  // 站名
	Offset float64 // 站台末端距分区起点（英尺）
}

// Path 单方向进路
// 功能：有序闭塞分区序列及其几何查询
// 说明：cum[i]为分区i起点距进路起点的距离；total不含终点虚拟分区
type Path struct {
	name      string
	direction entity.Direction
	blocks    []*block.Block
	index     map[string]int
	cum       []float64
	total     float64
	stops     []Stop
}

// New 创建进路，并在末端追加终点虚拟分区
// 参数：name-进路名，dir-方向，blocks-按行车顺序排列的分区
func New(name string, dir entity.Direction, blocks []*block.Block) (*Path, error) {
	if len(blocks) == 0 {
		return nil, fmt.Errorf("%w: empty path %s", entity.ErrConfiguration, name)
	}
	last := blocks[len(blocks)-1]
	terminal := block.New(fmt.Sprintf("%s-TERMINAL", name), "", dir, block.KindTerminal,
		TerminalLength, TerminalCode, last.SightDistance())
	if last.IsMoving() {
		terminal.SetMoving()
	}
	p := newPath(name, dir, append(slices.Clone(blocks), terminal))
	p.total -= TerminalLength
	return p, nil
}

func newPath(name string, dir entity.Direction, blocks []*block.Block) *Path {
	p := &Path{
		name:      name,
		direction: dir,
		blocks:    blocks,
		index:     make(map[string]int, len(blocks)),
		cum:       make([]float64, len(blocks)),
	}
	for i, b := range blocks {
		p.index[b.ID()] = i
		p.cum[i] = p.total
		p.total += b.Length()
		if stn, offset, ok := b.Station(); ok {
			p.stops = append(p.stops, Stop{Index: i, Name: stn, Offset: offset})
		}
	}
	return p
}

func (p *Path) String() string {
	return fmt.Sprintf("Path{%s %v blocks=%d}", p.name, p.direction, len(p.blocks))
}

func (p *Path) Name() string                { return p.name }
func (p *Path) Direction() entity.Direction { return p.direction }
func (p *Path) Len() int                    { return len(p.blocks) }
func (p *Path) Blocks() []*block.Block      { return p.blocks }
func (p *Path) Stops() []Stop               { return p.stops }

// Block 第i个分区，越界返回nil
func (p *Path) Block(i int) *block.Block {
	if i < 0 || i >= len(p.blocks) {
		return nil
	}
	return p.blocks[i]
}

// Index 分区id在进路中的下标
func (p *Path) Index(id string) (int, bool) {
	i, ok := p.index[id]
	return i, ok
}

// DistFromTerminal 分区起点距参考终点的距离
// 说明：下行自进路起点累加，上行自进路终点递减，相邻分区相差一个分区长度
func (p *Path) DistFromTerminal(i int) float64 {
	if p.direction == entity.Southbound {
		return p.cum[i]
	}
	return p.total - p.cum[i]
}

// Travelled 位于(i, s)的列车自进路起点行驶的距离
func (p *Path) Travelled(i int, s float64) float64 {
	return p.cum[i] + s
}

// DistanceAhead 自(i, s)至分区j起点的距离
func (p *Path) DistanceAhead(i int, s float64, j int) float64 {
	return p.cum[j] - p.cum[i] - s
}

// DistanceToStop 自(i, s)至第k个停站站台末端的距离，k越界时ok为false
func (p *Path) DistanceToStop(k, i int, s float64) (float64, bool) {
	if k < 0 || k >= len(p.stops) {
		return 0, false
	}
	stop := p.stops[k]
	return p.cum[stop.Index] + stop.Offset - p.cum[i] - s, true
}

// NextStop 位于(i, s)的列车前方第一个停站的序号，没有时返回len(Stops())
func (p *Path) NextStop(i int, s float64) int {
	_, k, ok := lo.FindIndexOf(p.stops, func(st Stop) bool {
		return st.Index > i || (st.Index == i && st.Offset >= s)
	})
	if !ok {
		return len(p.stops)
	}
	return k
}

// ServedStationsAhead 第k个停站之后的站名
func (p *Path) ServedStationsAhead(k int) []string {
	if k+1 >= len(p.stops) {
		return nil
	}
	return lo.Map(p.stops[k+1:], func(st Stop, _ int) string { return st.Name })
}

// IsTerminal 第i个分区是否为终点虚拟分区
func (p *Path) IsTerminal(i int) bool {
	b := p.Block(i)
	return b != nil && b.Kind() == block.KindTerminal
}

// FollowingTrain 自车尾所在分区rear向后查找最近的后车
func (p *Path) FollowingTrain(rear int, self entity.TrainID) (entity.TrainID, int, bool) {
	for j := min(rear, len(p.blocks)-1); j >= 0; j-- {
		occ := p.blocks[j].Occupants()
		if idx := slices.Index(occ, self); idx >= 0 {
			occ = occ[idx+1:]
		}
		if len(occ) > 0 {
			return occ[0], j, true
		}
	}
	return entity.NoTrain, -1, false
}

// PrecedingTrain 自车头所在分区front向前查找最近的前车
func (p *Path) PrecedingTrain(front int, self entity.TrainID) (entity.TrainID, int, bool) {
	for j := max(front, 0); j < len(p.blocks); j++ {
		occ := p.blocks[j].Occupants()
		if idx := slices.Index(occ, self); idx >= 0 {
			occ = occ[:idx]
		}
		if len(occ) > 0 {
			return occ[len(occ)-1], j, true
		}
	}
	return entity.NoTrain, -1, false
}
