package mqtt

// TopicPrefix is the root of every topic the uplink publishes or reads.
const TopicPrefix = "logix/uplink"

// Topics builds the three topics owned by one uplink target:
//
//	logix/uplink/{target}/status   retained online/offline, LWT
//	logix/uplink/{target}/pass     retained JSON report of the latest pass
//	logix/uplink/{target}/command  operator commands, e.g. {"action":"run"}
type Topics struct {
	Target string
}

func (t Topics) base() string {
	return TopicPrefix + "/" + t.Target
}

// Status returns the retained service status topic.
func (t Topics) Status() string {
	return t.base() + "/status"
}

// Pass returns the topic carrying one pass report per pass.
func (t Topics) Pass() string {
	return t.base() + "/pass"
}

// Command returns the topic operators publish commands to.
func (t Topics) Command() string {
	return t.base() + "/command"
}
