package influxdb

import (
	"fmt"
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementValue      = "zwave_value"
	MeasurementController = "zwave_controller"
)

// WriteValueChange records a numeric capability value. Tags are the
// network (home id in hex), node and value label; the field is "value".
//
//	zwave_value,home_id=0184a2f1,node_id=5,label=Temperature value=19.5
func (c *Client) WriteValueChange(homeID uint32, nodeID uint8, label string, value float64) {
	c.writeAt(MeasurementValue,
		map[string]string{
			"home_id": fmt.Sprintf("%08x", homeID),
			"node_id": strconv.Itoa(int(nodeID)),
			"label":   label,
		},
		map[string]any{"value": value},
		c.now())
}

// WriteControllerState records a controller command state transition.
func (c *Client) WriteControllerState(homeID uint32, state int, text string) {
	c.writeAt(MeasurementController,
		map[string]string{"home_id": fmt.Sprintf("%08x", homeID)},
		map[string]any{"state": state, "text": text},
		c.now())
}

// WritePoint writes an arbitrary point stamped with the current time.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.writeAt(measurement, tags, fields, c.now())
}

func (c *Client) writeAt(measurement string, tags map[string]string, fields map[string]any, ts time.Time) {
	if !c.IsConnected() || c.writer == nil {
		return
	}
	c.writer.WritePoint(write.NewPoint(measurement, tags, fields, ts))
}
