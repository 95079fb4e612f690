package block

import (
	"fmt"
	"math"
	"slices"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/railsim/entity"
	"github.com/tsinghua-fib-lab/railsim/utils/randengine"
)

// 线路最高速度码（mph）
const MaxSpeedCode = 55.

// Kind 闭塞分区类别
type Kind int32

const (
	KindNormal       Kind = iota
	KindTerminal          // 进路末端虚拟分区，列车激活即结束运行
	KindShortTurning      // 折返线
	KindShortTurner       // 折返标记，列车激活即换至对向进路
)

func (k Kind) String() string {
	switch k {
	case KindTerminal:
		return "Terminal"
	case KindShortTurning:
		return "ShortTurning"
	case KindShortTurner:
		return "ShortTurner"
	default:
		return "Normal"
	}
}

// Observer 占用状态变化的观察者
type Observer interface {
	// 占用状态由空变为占用（occupied=true）或由占用变为空时调用，每次变化恰好调用一次
	OnOccupancyChanged(b *Block, occupied bool)
}

// Communication 占用时向上游分区发送的速度码
type Communication struct {
	Target *Block
	Code   float64
}

// DispatchingGate 发车闸门
// 功能：限制连续两次发车的最小间隔，并要求上游分区全部空闲
type DispatchingGate struct {
	Margin   float64  // 自上次激活起的最小间隔（秒）
	Upstream []*Block // 发车前必须空闲的分区
}

// OffScan 信号故障（失码）
// 说明：列车进入时以概率P触发，故障期间该车读到的速度码为0；
// 一次故障解除后分区永久恢复正常
type OffScan struct {
	P   float64
	rng *randengine.Engine

	symptomatic bool
	train       entity.TrainID
	clearance   float64
	reverted    bool
}

// Reverted 故障是否已解除
func (s *OffScan) Reverted() bool {
	return s.reverted
}

// Visit 一次激活的结果
type Visit struct {
	Headway     float64 // 与上一列车激活的时间间隔，首车为-1
	Symptomatic bool    // 本次激活触发了失码
	Clearance   float64 // 失码解除所需的停车时间（秒）
}

// Block 闭塞分区
// 功能：占用状态、速度码计算、观察者通知
// 说明：固定闭塞模式下最多一列车占用；移动闭塞模式下可被多列车重叠占用，
// occupants按进入先后排列，首个即车头进入最深的列车
type Block struct {
	id            string
	altID         string
	direction     entity.Direction
	kind          Kind
	moving        bool
	length        float64 // 英尺
	sightDistance float64 // 英尺
	civilCode     float64 // mph
	slowZone      float64 // 临时限速，0表示无

	stationName    string
	platformOffset float64 // 站台末端距分区起点（英尺）

	communications []Communication
	received       map[string]float64 // 下游分区id -> 速度码

	occupants []entity.TrainID

	visited     bool
	lastVisit   float64
	lastVisitor entity.TrainID
	prevVisit   float64
	hasPrev     bool

	observers []Observer

	Gate    *DispatchingGate
	OffScan *OffScan
}

// New 创建闭塞分区
// 参数：id-编号，altID-备用编号，dir-方向，kind-类别，length-长度（英尺），code-限速（mph，上限55），sight-瞭望距离
func New(id, altID string, dir entity.Direction, kind Kind, length, code, sight float64) *Block {
	return &Block{
		id:            id,
		altID:         altID,
		direction:     dir,
		kind:          kind,
		length:        length,
		sightDistance: sight,
		civilCode:     math.Min(code, MaxSpeedCode),
		received:      make(map[string]float64),
		lastVisitor:   entity.NoTrain,
	}
}

func (b *Block) String() string {
	if b.altID != "" {
		return fmt.Sprintf("Block{%s/%s %v %v len=%.0f}", b.id, b.altID, b.direction, b.kind, b.length)
	}
	return fmt.Sprintf("Block{%s %v %v len=%.0f}", b.id, b.direction, b.kind, b.length)
}

func (b *Block) ID() string                  { return b.id }
func (b *Block) Direction() entity.Direction { return b.direction }
func (b *Block) Kind() Kind                  { return b.kind }
func (b *Block) Length() float64             { return b.length }
func (b *Block) SightDistance() float64      { return b.sightDistance }
func (b *Block) IsMoving() bool              { return b.moving }

// SetMoving 切换为移动闭塞分区
func (b *Block) SetMoving() {
	b.moving = true
}

// Station 所在车站名及站台末端位置，无车站时ok为false
func (b *Block) Station() (name string, offset float64, ok bool) {
	return b.stationName, b.platformOffset, b.stationName != ""
}

// SetStation 设置车站
func (b *Block) SetStation(name string, offset float64) error {
	if offset < 0 || offset > b.length {
		return fmt.Errorf("%w: station %s at %.1f ft outside block %s (length %.1f)",
			entity.ErrInvalidStationLocation, name, offset, b.id, b.length)
	}
	b.stationName = name
	b.platformOffset = offset
	return nil
}

// AddObserver 注册观察者
func (b *Block) AddObserver(o Observer) {
	b.observers = append(b.observers, o)
}

// AddCommunication 占用时向target发送code
func (b *Block) AddCommunication(target *Block, code float64) {
	b.communications = append(b.communications, Communication{Target: target, Code: code})
}

// ApplySlowZone 叠加临时限速，取较小值
func (b *Block) ApplySlowZone(code float64) {
	if b.slowZone == 0 || code < b.slowZone {
		b.slowZone = code
	}
}

// CivilCode 限速（已叠加临时限速）
func (b *Block) CivilCode() float64 {
	if b.slowZone > 0 {
		return math.Min(b.civilCode, b.slowZone)
	}
	return b.civilCode
}

// CurrentSpeedCode 对列车id呈现的速度码（mph）
// 算法说明：
// 1. 固定闭塞下被其他列车占用时为0
// 2. 对该列车处于失码状态时为0
// 3. 否则取限速、临时限速与所有收到的速度码中的最小值（移动闭塞不使用收到的速度码）
func (b *Block) CurrentSpeedCode(id entity.TrainID) float64 {
	if !b.moving && b.IsOccupied() && !b.IsOccupiedBy(id) {
		return 0
	}
	if b.SymptomaticFor(id) {
		return 0
	}
	code := b.CivilCode()
	if !b.moving {
		for _, c := range b.received {
			code = math.Min(code, c)
		}
	}
	return code
}

// IsOccupied 是否被任一列车占用
func (b *Block) IsOccupied() bool {
	return len(b.occupants) > 0
}

// IsOccupiedBy 是否被列车id占用
func (b *Block) IsOccupiedBy(id entity.TrainID) bool {
	return slices.Contains(b.occupants, id)
}

// Occupants 当前占用列车，按进入先后排列
func (b *Block) Occupants() []entity.TrainID {
	return b.occupants
}

// Activate 列车id进入分区
// 功能：记录占用与到达时间，必要时触发失码，占用状态由空变为占用时通知观察者
// 参数：id-列车，t-当前时间
// 返回：本次激活信息；固定闭塞下已被其他列车占用时返回ErrBlockAlreadyOccupied
func (b *Block) Activate(id entity.TrainID, t float64) (Visit, error) {
	if b.IsOccupiedBy(id) {
		return Visit{Headway: -1}, nil
	}
	if !b.moving && b.IsOccupied() {
		return Visit{}, fmt.Errorf("%w: block %s (%v) held by train %d, requested by train %d",
			entity.ErrBlockAlreadyOccupied, b.id, b.direction, b.occupants[0], id)
	}
	visit := Visit{Headway: -1}
	if b.visited {
		visit.Headway = t - b.lastVisit
		b.prevVisit = b.lastVisit
		b.hasPrev = true
	}
	b.visited = true
	b.lastVisit = t
	b.lastVisitor = id

	if s := b.OffScan; s != nil && !s.reverted && !s.symptomatic && s.rng.PTrue(s.P) {
		s.symptomatic = true
		s.train = id
		s.clearance = s.rng.Uniform(10, 20)
		visit.Symptomatic = true
		visit.Clearance = s.clearance
		log.Debugf("block %s symptomatic for train %d, clearance %.1fs", b.id, id, s.clearance)
	}

	wasEmpty := len(b.occupants) == 0
	b.occupants = append(b.occupants, id)
	if wasEmpty {
		b.notify(true)
	}
	return visit, nil
}

// Deactivate 列车id离开分区
// 返回：列车未占用该分区时返回ErrReleasingNotOccupiedBlock
func (b *Block) Deactivate(id entity.TrainID) error {
	if !b.IsOccupiedBy(id) {
		return fmt.Errorf("%w: block %s (%v) not held by train %d",
			entity.ErrReleasingNotOccupiedBlock, b.id, b.direction, id)
	}
	b.occupants = lo.Without(b.occupants, id)
	if len(b.occupants) == 0 {
		b.notify(false)
	}
	return nil
}

func (b *Block) notify(occupied bool) {
	for _, o := range b.observers {
		o.OnOccupancyChanged(b, occupied)
	}
}

func (b *Block) receive(from string, code float64) {
	b.received[from] = code
}

func (b *Block) withdraw(from string) {
	delete(b.received, from)
}

// Received 收到的速度码（只读）
func (b *Block) Received() map[string]float64 {
	return b.received
}

// VisitBefore 列车id之前一列车的激活时间
// 说明：若最近一次激活来自id，返回上一次激活；否则返回最近一次激活
func (b *Block) VisitBefore(id entity.TrainID) (float64, bool) {
	if !b.visited {
		return 0, false
	}
	if b.lastVisitor == id {
		return b.prevVisit, b.hasPrev
	}
	return b.lastVisit, true
}

// SymptomaticFor 是否正对列车id呈现失码
func (b *Block) SymptomaticFor(id entity.TrainID) bool {
	return b.OffScan != nil && b.OffScan.symptomatic && b.OffScan.train == id
}

// ClearSymptom 解除失码，分区此后恢复为普通分区
func (b *Block) ClearSymptom() {
	if b.OffScan == nil || !b.OffScan.symptomatic {
		return
	}
	b.OffScan.symptomatic = false
	b.OffScan.reverted = true
	log.Debugf("block %s symptom cleared", b.id)
}

// SetOffScan 挂载失码配置
func (b *Block) SetOffScan(p float64, rng *randengine.Engine) {
	b.OffScan = &OffScan{P: p, rng: rng}
}

// Ready 发车闸门是否允许激活
// 算法说明：分区空闲、距上次激活已超过Margin、所有上游分区空闲；无闸门的分区只检查空闲
func (b *Block) Ready(t float64) bool {
	if b.IsOccupied() {
		return false
	}
	g := b.Gate
	if g == nil {
		return true
	}
	if b.visited && t-b.lastVisit < g.Margin {
		return false
	}
	return !lo.SomeBy(g.Upstream, func(u *Block) bool { return u.IsOccupied() })
}
