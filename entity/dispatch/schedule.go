package dispatch

import (
	"cmp"
	"fmt"
	"slices"
	"sort"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/railsim/entity"
	"github.com/tsinghua-fib-lab/railsim/entity/path"
	"github.com/tsinghua-fib-lab/railsim/utils/config"
	"github.com/tsinghua-fib-lab/railsim/utils/input"
	"github.com/tsinghua-fib-lab/railsim/utils/randengine"
)

const binSeconds = 900.

// DefaultTerminals 各方向列车的始发终点站，对应blue_line_schedule的terminal
var DefaultTerminals = map[entity.Direction]string{
	entity.Southbound: "O'Hare",
	entity.Northbound: "Forest Park",
}

// Entry 一次计划发车
type Entry struct {
	Time      float64 // 一天中的秒数
	Path      string  // 进路名
	Direction entity.Direction
	RunID     string
}

// terminalRuns 某终点站的计划发车，按时间排序
type terminalRuns []input.BlueLineRecord

func newTerminalRuns(records []input.BlueLineRecord, terminal string) terminalRuns {
	runs := lo.Filter(records, func(r input.BlueLineRecord, _ int) bool { return r.Terminal == terminal })
	slices.SortStableFunc(runs, func(a, b input.BlueLineRecord) int { return cmp.Compare(a.TimeInSec, b.TimeInSec) })
	return runs
}

// shortTurnedAfter t之后（含t）的下一个计划车次是否折返
func (r terminalRuns) shortTurnedAfter(t float64) bool {
	i := sort.Search(len(r), func(i int) bool { return r[i].TimeInSec >= t })
	return i < len(r) && r[i].ShortTurned
}

// nearestBin 距b最近的有记录的时段，距离相同时取较早者
func nearestBin(bins map[int][]input.EmpiricalRecord, b int) []input.EmpiricalRecord {
	for d := 0; ; d++ {
		if rs, ok := bins[b-d]; ok {
			return rs
		}
		if rs, ok := bins[b+d]; ok {
			return rs
		}
	}
}

// BuildEmpiricalSchedule 由历史实测发车生成一次仿真的发车计划
// 参数：records-实测发车记录，blueLine-计划时刻表，window-发车窗口，terminals-各方向始发站，
// rng-随机数引擎，shortTurning-是否启用折返
// 返回：按时间排序的发车计划（时间相同时保持方向顺序）；某方向没有有效记录时返回ErrConfiguration
// 算法说明：
// 1. 按方向与15分钟时段对实测记录分组，丢弃间隔非正的记录
// 2. 游标自窗口起点开始，每次从游标所在时段（无记录时取最近时段）抽取一条记录，游标前进该记录的间隔
// 3. 游标落在窗口内时产生一次发车；启用折返时，若对向终点站的下一计划车次为折返车次，下行发车使用折返进路
func BuildEmpiricalSchedule(
	records []input.EmpiricalRecord,
	blueLine []input.BlueLineRecord,
	window config.Window,
	terminals map[entity.Direction]string,
	rng *randengine.Engine,
	shortTurning bool,
) ([]Entry, error) {
	if terminals == nil {
		terminals = DefaultTerminals
	}
	valid := lo.Filter(records, func(r input.EmpiricalRecord, _ int) bool { return r.Headway > 0 })
	byDir := lo.GroupBy(valid, func(r input.EmpiricalRecord) string { return r.Direction })

	var entries []Entry
	for _, dir := range entity.Directions() {
		recs := byDir[dir.String()]
		if len(recs) == 0 {
			return nil, fmt.Errorf("%w: no empirical %v dispatches", entity.ErrConfiguration, dir)
		}
		bins := lo.GroupBy(recs, func(r input.EmpiricalRecord) int { return int(r.TimeInSec / binSeconds) })
		opposite := newTerminalRuns(blueLine, terminals[dir.Opposite()])
		n := 0
		for cursor := window.Start; ; {
			rs := nearestBin(bins, int(cursor/binSeconds))
			r := rs[rng.Intn(len(rs))]
			cursor += r.Headway
			if cursor >= window.End {
				break
			}
			e := Entry{Time: cursor, Path: dir.String(), Direction: dir, RunID: r.RunID.String()}
			if shortTurning && dir == entity.Southbound && opposite.shortTurnedAfter(cursor) {
				e.Path = path.ShortTurningName
			}
			entries = append(entries, e)
			n++
		}
		log.Infof("%v: %d dispatches in [%.0f, %.0f)", dir, n, window.Start, window.End)
	}
	slices.SortStableFunc(entries, func(a, b Entry) int { return cmp.Compare(a.Time, b.Time) })
	return entries, nil
}
