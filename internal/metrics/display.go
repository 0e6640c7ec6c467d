package metrics

import (
	"github.com/Station-Manager/elm327/pid"
)

// Display mirrors every reading into the reading_value gauge. It satisfies
// session.Display and is meant to be combined with session.Tee.
type Display struct {
	r *Recorder
}

func (r *Recorder) Display() Display {
	return Display{r: r}
}

func (Display) SetInfo(string)     {}
func (Display) SetLabels([]string) {}
func (Display) Notify(string)      {}

// Clear keeps the last values; Prometheus gauges have no empty state.
func (Display) Clear() {}

func (d Display) Show(_ int, r pid.Reading) {
	if r.Unit == "" {
		return
	}
	d.r.ReadingValue.WithLabelValues(r.Name, r.Unit).Set(r.Value)
}
