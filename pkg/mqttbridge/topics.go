package mqttbridge

import (
	"strings"
)

// Topics builds the topic layout under Prefix:
//
//	<prefix>/status              online / offline (retained)
//	<prefix>/<address>/state     device state JSON (retained)
//	<prefix>/<address>/set       JSON object of properties to set
//	<prefix>/<address>/error     last device error
type Topics struct {
	Prefix string
}

func (t Topics) Status() string { return t.Prefix + "/status" }

func (t Topics) State(addr string) string { return t.Prefix + "/" + addr + "/state" }

func (t Topics) Error(addr string) string { return t.Prefix + "/" + addr + "/error" }

func (t Topics) Set(addr string) string { return t.Prefix + "/" + addr + "/set" }

// AllSet matches the set topic of every device.
func (t Topics) AllSet() string { return t.Prefix + "/+/set" }

// DeviceOf extracts the address segment of a set topic.
func (t Topics) DeviceOf(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, t.Prefix+"/")
	if !ok {
		return "", false
	}
	addr, ok := strings.CutSuffix(rest, "/set")
	if !ok || addr == "" || strings.Contains(addr, "/") {
		return "", false
	}
	return addr, true
}
