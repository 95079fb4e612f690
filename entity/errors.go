package entity

import "errors"

// 运行期错误
var (
	// 列车试图激活被其他列车占用的闭塞分区（仿真步长过大或发车间隔配置错误）
	ErrBlockAlreadyOccupied = errors.New("block already occupied")
	// 释放未被该列车占用的闭塞分区，车尾释放时据此停止回溯
	ErrReleasingNotOccupiedBlock = errors.New("releasing not occupied block")
	// 列车越过进路末端而未被终点删除
	ErrNextBlockNotFound = errors.New("next block not found")
	// 运动学积分后速度为负
	ErrNegativeSpeed = errors.New("negative speed")
)

// 构建期错误
var (
	// 站台位置超出所在闭塞分区
	ErrInvalidStationLocation = errors.New("invalid station location")
	// 配置缺失或矛盾
	ErrConfiguration = errors.New("configuration error")
)
