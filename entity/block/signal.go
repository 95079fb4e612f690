package block

// SignalControlCenter 信号控制中心
// 功能：分区占用时按其通信表向上游分区下发速度码，出清时撤回
// 说明：只处理被占用分区自身的通信表，不做传递
type SignalControlCenter struct {
	updates int
}

func NewSignalControlCenter() *SignalControlCenter {
	return &SignalControlCenter{}
}

// OnOccupancyChanged 实现Observer
func (c *SignalControlCenter) OnOccupancyChanged(b *Block, occupied bool) {
	for _, comm := range b.communications {
		if occupied {
			comm.Target.receive(b.id, comm.Code)
		} else {
			comm.Target.withdraw(b.id)
		}
		c.updates++
	}
}

// Updates 累计下发/撤回次数
func (c *SignalControlCenter) Updates() int {
	return c.updates
}
