package train

import "gonum.org/v1/gonum/interp"

// 牵引特性曲线断点：速度（mph）与最大加速度（mph/s）
var (
	tractiveSpeeds = []float64{22, 29.3, 37.7, 44, 51.3, 58.7, 66}
	tractiveAccels = []float64{3.94, 3.85, 3.69, 2.90, 2.35, 1.71, 1.22}

	tractiveCurve = func() *interp.PiecewiseLinear {
		var pl interp.PiecewiseLinear
		if err := pl.Fit(tractiveSpeeds, tractiveAccels); err != nil {
			log.Panicf("tractive curve: %v", err)
		}
		return &pl
	}()
)

// 牵引加速度缩放系数
const (
	tractiveScaleDefault = 1.
	tractiveScaleCTA     = .5
)

// tractiveEffort 速度v下的最大牵引加速度（mph/s）
// 算法说明：断点间线性插值，低于首个断点取首值，高于末个断点取末值，再乘以缩放系数
func tractiveEffort(v, scale float64) float64 {
	return tractiveCurve.Predict(v) * scale
}
