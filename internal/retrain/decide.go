package retrain

import (
	"fmt"
	"strings"

	"github.com/yourusername/furlong/internal/config"
	"github.com/yourusername/furlong/internal/models"
)

// Verdict is the outcome of Decide
type Verdict struct {
	Promote bool
	Reason  string
}

// Decide compares holdout metrics of a candidate and the current champion.
// With no champion the candidate is promoted when its win AUC beats the
// bootstrap floor. Otherwise the candidate must not lose more than the
// tolerance in win AUC and must improve calibration error or realized
// return. Decide is a pure function of its inputs.
func Decide(candidate models.MetricSet, current *models.MetricSet, cfg config.RetrainConfig) Verdict {
	if current == nil {
		if candidate.WinAUC > cfg.BootstrapMinAUC {
			return Verdict{Promote: true, Reason: fmt.Sprintf("bootstrap: win AUC %.4f above %.4f", candidate.WinAUC, cfg.BootstrapMinAUC)}
		}
		return Verdict{Reason: fmt.Sprintf("bootstrap: win AUC %.4f not above %.4f", candidate.WinAUC, cfg.BootstrapMinAUC)}
	}

	if candidate.WinAUC < current.WinAUC-cfg.DiscriminationTolerance {
		return Verdict{Reason: fmt.Sprintf("discrimination regressed: win AUC %.4f vs %.4f", candidate.WinAUC, current.WinAUC)}
	}

	var improved []string
	if candidate.CalibrationError < current.CalibrationError {
		improved = append(improved, fmt.Sprintf("calibration error %.4f < %.4f", candidate.CalibrationError, current.CalibrationError))
	}
	if candidate.RealizedReturn.GreaterThan(current.RealizedReturn) {
		improved = append(improved, fmt.Sprintf("realized return %s > %s", candidate.RealizedReturn, current.RealizedReturn))
	}
	if len(improved) == 0 {
		return Verdict{Reason: "no improvement in calibration error or realized return"}
	}
	return Verdict{Promote: true, Reason: strings.Join(improved, "; ")}
}
