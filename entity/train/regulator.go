package train

import (
	"math"

	"github.com/tsinghua-fib-lab/railsim/entity"
	"github.com/tsinghua-fib-lab/railsim/utils/config"
	"github.com/tsinghua-fib-lab/railsim/utils/randengine"
)

const (
	lookaheadBlocks   = 3    // 计划减速考虑的前方分区数
	overspeedFactor   = 1.05 // 超过速度码该倍数时紧急制动
	zeroCodeStandoff  = 10.  // 在速度码为0的分区前停车的余量（英尺）
	redSignalStandoff = 30.  // CTA调节器在红灯分区前停车的余量（英尺）
	stationStopSlack  = 1.   // 停站对位容差（英尺）
	maxReactionDelay  = 1.   // CTA调节器的最大反应延迟（秒）
)

// regKind 速度调节器状态
type regKind int32

const (
	keepingSpeed         regKind = iota // 按速度码保持速度
	leavingStation                      // 出站，越过站台前不触发进站制动
	decelerateToPlanning                // 为前方较低速度码计划减速
	brakeMaximum                        // 超速紧急制动
	brakeToStation                      // 进站制动
	stopAtSymptomatic                   // 失码停车
	decelerateAndWait                   // CTA：在红灯分区前停车等待
	delayedDecelerate                   // CTA：速度码降低后的反应延迟
)

var regKindNames = map[regKind]string{
	keepingSpeed:         "KeepingSpeedUptoCode",
	leavingStation:       "LeavingTheStation",
	decelerateToPlanning: "DecelerateToPlanning",
	brakeMaximum:         "BrakeWithMaximumRate",
	brakeToStation:       "BrakeNormalToStation",
	stopAtSymptomatic:    "StopAtSymptomaticBlock",
	decelerateAndWait:    "DecelerateAndWaitForClearance",
	delayedDecelerate:    "DelayedDecelerateToMeetCode",
}

func (k regKind) String() string {
	return regKindNames[k]
}

// regState 调节器状态及其参数
type regState struct {
	kind   regKind
	block  int     // 限速分区或等待分区在进路中的下标
	target float64 // 计划减速的目标速度（mph）
	timer  float64 // 已停车或已延迟的时间（秒）
	limit  float64 // 失码解除时间或反应延迟（秒）
}

// regulatorConfig 调节器参数，同一次仿真的所有列车共享
type regulatorConfig struct {
	cta       bool
	normal    float64 // 常用制动减速度（mph/s）
	emergency float64 // 紧急制动减速度（mph/s）
	scale     float64 // 牵引加速度缩放系数
	desired   config.Range
}

func newRegulatorConfig(c config.Train) *regulatorConfig {
	rc := &regulatorConfig{
		cta:       c.Regulator == config.RegulatorCTA,
		normal:    c.NormalDeceleration,
		emergency: c.EmergencyDeceleration,
		scale:     tractiveScaleDefault,
		desired:   c.DesiredSpeed,
	}
	if rc.cta {
		rc.scale = tractiveScaleCTA
	}
	return rc
}

// regulator 单列车的速度调节器
type regulator struct {
	// 调节器保持的参数

	cfg *regulatorConfig
	rng *randengine.Engine

	// 状态

	state    regState
	fraction float64 // CTA期望速度系数，默认调节器恒为1
	lastCode float64 // 上一步当前分区的速度码
}

func newRegulator(cfg *regulatorConfig, rng *randengine.Engine) regulator {
	r := regulator{cfg: cfg, rng: rng, fraction: 1, lastCode: math.Inf(1)}
	r.resample()
	return r
}

// resample 进入新分区时重新抽取期望速度系数
func (r *regulator) resample() {
	if r.cfg.cta {
		r.fraction = r.rng.Uniform(r.cfg.desired.Min, r.cfg.desired.Max)
	}
}

func (r *regulator) set(kind regKind) {
	r.state = regState{kind: kind}
}

func (r *regulator) name() string {
	if r.cfg.cta {
		return config.RegulatorCTA
	}
	return config.RegulatorDefault
}

// brakingDistance 以减速度dec自速度v制动到停车的距离（英尺）
func brakingDistance(v, dec float64) float64 {
	return entity.FpsPerMph * v * v / (2 * dec)
}

// allowedSpeed 距离d内以减速度dec可降至速度码code的最大速度（mph）
func allowedSpeed(code, d, dec float64) float64 {
	return math.Sqrt(code*code + 2*dec*math.Max(0, d)/entity.FpsPerMph)
}

// code 分区j对本车呈现的速度码
// 说明：移动闭塞下当前分区的速度码由移动闭塞控制给出
func (t *Train) code(j int) float64 {
	if j == t.index && t.manager.mbc != nil {
		return t.manager.mbc.SpeedCode(t.id, t.path, j, t.s)
	}
	return t.path.Block(j).CurrentSpeedCode(t.id)
}

func (t *Train) standoff() float64 {
	if t.reg.cfg.cta {
		return redSignalStandoff
	}
	return zeroCodeStandoff
}

// distanceTo 车头至分区j起点的距离，速度码为0时扣除停车余量
func (t *Train) distanceTo(j int, code float64) float64 {
	d := t.path.DistanceAhead(t.index, t.s, j)
	if code == 0 {
		d -= t.standoff()
	}
	return d
}

// keepingTarget 保持速度状态的目标速度：当前分区速度码，CTA乘以期望速度系数
// 说明：前方较低的速度码由计划减速状态处理
func (t *Train) keepingTarget() float64 {
	return t.code(t.index) * t.reg.fraction
}

// towards 向目标速度加速或减速
func (t *Train) towards(target, dt float64) float64 {
	if t.v <= target {
		return math.Min(tractiveEffort(t.v, t.reg.cfg.scale), (target-t.v)/dt)
	}
	return math.Max(-t.reg.cfg.normal, (target-t.v)/dt)
}

// stationRemaining 车头距本次停车点的距离，前方无停站时ok为false
func (t *Train) stationRemaining() (float64, bool) {
	d, ok := t.path.DistanceToStop(t.nextStop, t.index, t.s)
	return d - t.stopOffset, ok
}

// stopAcceleration 在rem英尺内停车所需的加速度
func (t *Train) stopAcceleration(rem, dt float64) float64 {
	v := t.v
	if v <= 0 {
		if rem > stationStopSlack {
			// 停车点之前低速蠕行
			return t.towards(math.Min(t.keepingTarget(), allowedSpeed(0, rem, t.reg.cfg.normal)), dt)
		}
		return 0
	}
	if rem <= entity.FpsPerMph*v*dt {
		return -v / dt
	}
	return -math.Min(entity.FpsPerMph*v*v/(2*rem), t.reg.cfg.emergency)
}

// redBlockInSight CTA：瞭望距离加制动距离内第一个速度码为0的分区
func (t *Train) redBlockInSight() (int, bool) {
	reach := t.path.Block(t.index).SightDistance() + brakingDistance(t.v, t.reg.cfg.normal)
	for j := t.index + 1; j < t.path.Len(); j++ {
		if t.path.DistanceAhead(t.index, t.s, j) > reach {
			break
		}
		if t.code(j) == 0 {
			return j, true
		}
	}
	return -1, false
}

// planningRestriction 前方需要提前减速的分区
// 算法说明：对前方至多3个速度码低于当前速度（或为0）的分区，计算所需制动距离与实际距离之差，
// 取最大者；差值在一步行驶距离之内时开始计划减速
func (t *Train) planningRestriction(dt float64) (int, float64, bool) {
	best, target, worst := -1, 0., math.Inf(-1)
	for k := 1; k <= lookaheadBlocks && t.index+k < t.path.Len(); k++ {
		j := t.index + k
		c := t.code(j)
		if c > 0 && c >= t.v {
			continue
		}
		need := brakingDistance(t.v, t.reg.cfg.normal) - brakingDistance(c, t.reg.cfg.normal)
		if excess := need - t.distanceTo(j, c); excess > worst {
			best, target, worst = j, c, excess
		}
	}
	if best < 0 || worst < -entity.FpsPerMph*t.v*dt {
		return -1, 0, false
	}
	return best, target, true
}

// regulate 根据调节器状态计算本步期望加速度（mph/s）
func (t *Train) regulate(dt float64) float64 {
	st := &t.reg.state
	switch st.kind {
	case keepingSpeed, leavingStation:
		return t.towards(t.keepingTarget(), dt)
	case decelerateToPlanning:
		c := math.Min(t.code(t.index), t.code(st.block))
		d := t.distanceTo(st.block, c)
		if d <= 0 {
			return -t.reg.cfg.emergency
		}
		req := entity.FpsPerMph * (t.v*t.v - c*c) / (2 * d)
		return -math.Min(math.Max(t.reg.cfg.normal, req), t.reg.cfg.emergency)
	case brakeMaximum:
		return -t.reg.cfg.emergency
	case brakeToStation:
		rem, _ := t.stationRemaining()
		return t.stopAcceleration(rem, dt)
	case stopAtSymptomatic:
		if t.v > 0 {
			return math.Max(-t.reg.cfg.normal, -t.v/dt)
		}
		return 0
	case decelerateAndWait:
		rem := t.path.DistanceAhead(t.index, t.s, st.block) - redSignalStandoff
		return t.towards(math.Min(t.keepingTarget(), allowedSpeed(0, rem, t.reg.cfg.normal)), dt)
	case delayedDecelerate:
		return 0
	}
	log.Panicf("train %d: unknown regulator state %d", t.id, st.kind)
	return 0
}

// transit 步末的调节器状态转移
// 返回：列车已在停车点停稳，应转入停站
func (t *Train) transit(dt float64) (arrived bool) {
	r := &t.reg
	st := &r.state
	code := t.code(t.index)
	defer func() { r.lastCode = code }()

	switch st.kind {
	case stopAtSymptomatic:
		if t.v == 0 {
			st.timer += dt
			if st.timer >= st.limit {
				if t.symptomatic != nil {
					t.symptomatic.ClearSymptom()
					t.symptomatic = nil
				}
				r.set(keepingSpeed)
			}
		}
		return false
	case brakeToStation:
		rem, _ := t.stationRemaining()
		if t.v == 0 && rem <= stationStopSlack {
			return true
		}
		if t.v > overspeedFactor*code {
			r.set(brakeMaximum)
		}
		return false
	case brakeMaximum:
		if t.v > code {
			return false
		}
		r.set(keepingSpeed)
	case delayedDecelerate:
		st.timer += dt
		if st.timer < st.limit {
			return false
		}
		r.set(keepingSpeed)
	case decelerateAndWait:
		if t.code(st.block) == 0 {
			if rem, ok := t.stationRemaining(); ok && rem <= brakingDistance(t.v, r.cfg.normal) {
				r.set(brakeToStation)
			}
			return false
		}
		r.set(keepingSpeed)
	case decelerateToPlanning:
		// 未进入限速分区且未降至目标速度时保持；目标速度码为0时停车等待
		st.target = t.code(st.block)
		if t.index < st.block && (st.target == 0 || t.v > math.Min(code, st.target)) {
			if t.v > overspeedFactor*code {
				r.set(brakeMaximum)
				return false
			}
			// 停车点在限速分区之前时转入进站制动
			if rem, ok := t.stationRemaining(); ok && rem <= brakingDistance(t.v, r.cfg.normal) &&
				rem < t.path.DistanceAhead(t.index, t.s, st.block) {
				r.set(brakeToStation)
			}
			return false
		}
		r.set(keepingSpeed)
	case leavingStation:
		if d, ok := t.path.DistanceToStop(t.nextStop-1, t.index, t.s); ok && d >= 0 {
			break
		}
		r.set(keepingSpeed)
	}

	// 保持速度与出站状态的转移，按优先级检查
	if r.cfg.cta && code < r.lastCode && t.v > code*r.fraction {
		r.state = regState{kind: delayedDecelerate, limit: r.rng.Uniform(0, maxReactionDelay)}
		return false
	}
	if t.v > overspeedFactor*code {
		r.set(brakeMaximum)
		return false
	}
	if st.kind != leavingStation {
		if rem, ok := t.stationRemaining(); ok && rem <= brakingDistance(t.v, r.cfg.normal) {
			r.set(brakeToStation)
			return false
		}
	}
	if r.cfg.cta {
		if j, ok := t.redBlockInSight(); ok {
			r.state = regState{kind: decelerateAndWait, block: j}
			return false
		}
	}
	if j, target, ok := t.planningRestriction(dt); ok {
		r.state = regState{kind: decelerateToPlanning, block: j, target: target}
	}
	return false
}
