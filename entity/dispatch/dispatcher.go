package dispatch

import (
	"fmt"
	"math"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/tsinghua-fib-lab/railsim/entity"
	"github.com/tsinghua-fib-lab/railsim/entity/block"
	"github.com/tsinghua-fib-lab/railsim/entity/path"
	"github.com/tsinghua-fib-lab/railsim/entity/train"
	"github.com/tsinghua-fib-lab/railsim/utils/container"
)

var log = logrus.WithField("module", "dispatch")

// Dispatcher 调度器
// 功能：按发车计划在发车闸门就绪时投入列车；下行列车到达终点后调整上行发车
type Dispatcher struct {
	ctx    entity.ITaskContext
	paths  *path.PathManager
	trains *train.TrainManager

	list   container.List[*Entry] // 待发车计划，按时间排序
	starts map[string]int         // 进路名 -> 投入分区下标
	margin float64                // 上行发车闸门的最小发车间隔（秒）

	// 首个下行到达时移出的上行发车计划
	template []*container.ListNode[*Entry]
	cleared  bool

	dispatched int
}

// New 创建调度器实例
func New(ctx entity.ITaskContext, paths *path.PathManager, trains *train.TrainManager) *Dispatcher {
	return &Dispatcher{
		ctx:    ctx,
		paths:  paths,
		trains: trains,
		starts: make(map[string]int),
	}
}

// startIndex 进路上第一个带发车闸门的分区，没有闸门时为0
func startIndex(p *path.Path) int {
	_, i, ok := lo.FindIndexOf(p.Blocks(), func(b *block.Block) bool { return b.Gate != nil })
	if !ok {
		return 0
	}
	return i
}

// Init 载入发车计划
// 参数：schedule-按时间排序的发车计划，调度器持有其副本
// 返回：计划引用了不存在的进路时返回ErrConfiguration
// 说明：各方向进路在第一个带发车闸门的分区投入列车；折返进路与下行进路的前缀相同，投入分区也相同
func (d *Dispatcher) Init(schedule []Entry) error {
	for _, dir := range entity.Directions() {
		p := d.paths.Direction(dir)
		d.starts[p.Name()] = startIndex(p)
	}
	if st := d.paths.ShortTurning(); st != nil {
		d.starts[st.Name()] = d.starts[entity.Southbound.String()]
	}
	nb := d.paths.Direction(entity.Northbound)
	if g := nb.Block(d.starts[nb.Name()]).Gate; g != nil {
		d.margin = g.Margin
	}

	for _, e := range schedule {
		if _, ok := d.starts[e.Path]; !ok {
			return fmt.Errorf("%w: dispatch %s at %.0f on unknown path %q", entity.ErrConfiguration, e.RunID, e.Time, e.Path)
		}
		d.list.Insert(container.NewNode(e.Time, &e))
	}
	log.Infof("%d dispatches loaded, northbound margin %.0fs", d.list.Len(), d.margin)
	return nil
}

// Update 投入到期且发车闸门就绪的列车
// 算法说明：按时间顺序检查到期的计划；闸门未就绪的计划保留，同一闸门之后的计划本步也不投入
func (d *Dispatcher) Update() error {
	now := d.ctx.Clock().T
	blocked := make(map[*block.Block]bool)
	for node := d.list.First(); node != nil && node.S <= now; {
		next := node.Next()
		e := node.Value
		p := d.paths.Get(e.Path)
		idx := d.starts[e.Path]
		gate := p.Block(idx)
		if blocked[gate] || !gate.Ready(now) {
			blocked[gate] = true
			node = next
			continue
		}
		if _, err := d.trains.Spawn(p, idx, e.RunID, now); err != nil {
			return fmt.Errorf("dispatch %s: %w", e.RunID, err)
		}
		d.list.Remove(node)
		d.dispatched++
		if now-e.Time > 1 {
			log.Debugf("dispatch %s on %s delayed %.1fs", e.RunID, e.Path, now-e.Time)
		}
		node = next
	}
	return nil
}

// OnTerminalArrival 实现entity.IDispatcher
// 算法说明：
// 1. 只处理下行到达
// 2. 首个下行到达时移出全部待发的上行计划，作为折返模板
// 3. 每个下行到达取出模板中最早的一项，以max(模板时间, 到达时间+上行发车间隔)重新加入计划；
// 与已有计划时间相同时排在已有计划之后
func (d *Dispatcher) OnTerminalArrival(dir entity.Direction, t float64) {
	if dir != entity.Southbound {
		return
	}
	if !d.cleared {
		d.template = d.list.RemoveIf(func(e *Entry) bool { return e.Direction == entity.Northbound })
		d.cleared = true
		log.Infof("first southbound arrival at %.1f: %d northbound dispatches follow arrivals", t, len(d.template))
	}
	if len(d.template) == 0 {
		return
	}
	head := d.template[0]
	d.template = d.template[1:]
	at := math.Max(head.S, t+d.margin)
	e := *head.Value
	e.Time = at
	d.list.Insert(container.NewNode(at, &e))
}

// Pending 待发车计划，按时间排序
func (d *Dispatcher) Pending() []Entry {
	return lo.Map(d.list.Values(), func(e *Entry, _ int) Entry { return *e })
}

func (d *Dispatcher) Dispatched() int {
	return d.dispatched
}
