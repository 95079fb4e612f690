package station

import (
	"github.com/tsinghua-fib-lab/railsim/entity"
	"github.com/tsinghua-fib-lab/railsim/output"
)

// Passenger 乘客
// 说明：折返站被清客的乘客以原到达时间重新排队，等待时间与乘车时间分段累计，
// 使得出行时间恒等于等待时间加乘车时间
type Passenger struct {
	ID          int64
	Origin      string
	Destination string
	Direction   entity.Direction
	Arrival     float64
	Denials     int32

	Boarding  float64 // 首次上车时间
	Alighting float64
	Transfer  float64 // 折返站换乘下车时间，-1表示未换乘
	Train     entity.TrainID
	Car, Door int32

	readyAt   float64 // 开始（再次）候车的时间
	boardedAt float64 // 最近一次上车时间
	boarded   bool
	waited    float64
	travelled float64
}

// NewPassenger 创建乘客
func NewPassenger(id int64, origin, destination string, dir entity.Direction, arrival float64) *Passenger {
	return &Passenger{
		ID:          id,
		Origin:      origin,
		Destination: destination,
		Direction:   dir,
		Arrival:     arrival,
		Boarding:    -1,
		Alighting:   -1,
		Transfer:    -1,
		Train:       entity.NoTrain,
		readyAt:     arrival,
	}
}

// Board 上车
// 说明：在因滞留而提前生成的乘客到达之前，上车时间取其到达时间
func (p *Passenger) Board(t float64, train entity.TrainID) {
	t = max(t, p.readyAt)
	if !p.boarded {
		p.Boarding = t
	}
	p.boarded = true
	p.boardedAt = t
	p.waited += t - p.readyAt
	p.Train = train
}

// TransferAlight 在折返站下车换乘
func (p *Passenger) TransferAlight(t float64) {
	p.travelled += t - p.boardedAt
	p.Transfer = t
	p.readyAt = t
	p.Train = entity.NoTrain
}

// Alight 到达目的站下车
func (p *Passenger) Alight(t float64) {
	p.travelled += t - p.boardedAt
	p.Alighting = t
}

// WaitingTime 累计等待时间
func (p *Passenger) WaitingTime() float64 {
	return p.waited
}

// TravelTime 累计乘车时间
func (p *Passenger) TravelTime() float64 {
	return p.travelled
}

// JourneyTime 出行时间
func (p *Passenger) JourneyTime() float64 {
	return p.waited + p.travelled
}

// ToRecord 输出下车记录
func (p *Passenger) ToRecord() output.PassengerRecord {
	return output.PassengerRecord{
		PassengerID: p.ID,
		Origin:      p.Origin,
		Destination: p.Destination,
		Direction:   p.Direction.String(),
		Arrival:     p.Arrival,
		Boarding:    p.Boarding,
		Alighting:   p.Alighting,
		Transfer:    p.Transfer,
		Waiting:     p.WaitingTime(),
		Travel:      p.TravelTime(),
		Journey:     p.JourneyTime(),
		Denials:     p.Denials,
	}
}
