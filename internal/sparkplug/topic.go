package sparkplug

import (
	"fmt"
	"strings"
)

// MessageClass is one of the four Sparkplug topic classes Mantle ingests,
// or a command class used only for publishing.
type MessageClass string

const (
	ClassNBirth MessageClass = "NBIRTH"
	ClassDBirth MessageClass = "DBIRTH"
	ClassNData  MessageClass = "NDATA"
	ClassDData  MessageClass = "DDATA"
	ClassNCmd   MessageClass = "NCMD"
	ClassDCmd   MessageClass = "DCMD"
)

// Topic is a parsed Sparkplug topic: spBv1.0/{group}/{class}/{node}/{device?}
type Topic struct {
	Group  string
	Class  MessageClass
	Node   string
	Device string // empty for node-level messages
}

// ParseTopic parses an MQTT topic string against the Sparkplug-B v1.0
// grammar, stripping an optional `$share/{group}/` prefix first.
func ParseTopic(raw string) (Topic, error) {
	t := raw
	if strings.HasPrefix(t, "$share/") {
		parts := strings.SplitN(t, "/", 3)
		if len(parts) != 3 {
			return Topic{}, fmt.Errorf("sparkplug: malformed shared-subscription topic %q", raw)
		}
		t = parts[2]
	}

	parts := strings.Split(t, "/")
	if len(parts) < 4 || parts[0] != "spBv1.0" {
		return Topic{}, fmt.Errorf("sparkplug: topic %q does not match spBv1.0 grammar", raw)
	}

	top := Topic{
		Group: parts[1],
		Class: MessageClass(parts[2]),
		Node:  parts[3],
	}
	if len(parts) >= 5 {
		top.Device = parts[4]
	}
	return top, nil
}

// CommandTopic builds the publish topic for a writeMetric command.
func CommandTopic(group, node, device string) string {
	if device == "" {
		return fmt.Sprintf("spBv1.0/%s/%s/%s", group, ClassNCmd, node)
	}
	return fmt.Sprintf("spBv1.0/%s/%s/%s/%s", group, ClassDCmd, node, device)
}
