package mqtt

import "strings"

// TopicRoot is the first level of every satlink topic.
const TopicRoot = "satlink"

// Topics builds the topic tree of one site:
//
//	satlink/{site}/status                    online/offline, retained, LWT
//	satlink/{site}/health                    bridge health, retained
//	satlink/{site}/frontend/{name}/command   tune and stop requests
//	satlink/{site}/frontend/{name}/ack       command acknowledgements
//	satlink/{site}/frontend/{name}/state     frontend status, retained
//	satlink/{site}/frontend/{name}/event     finished tuning attempts
type Topics struct {
	Site string
}

func (t Topics) prefix() string {
	return TopicRoot + "/" + t.Site
}

// Status is the daemon status topic, also used as the Last Will.
func (t Topics) Status() string { return t.prefix() + "/status" }

// Health is the bridge health topic.
func (t Topics) Health() string { return t.prefix() + "/health" }

// Command is where tune/stop requests for a frontend arrive.
func (t Topics) Command(frontend string) string { return t.frontend(frontend, "command") }

// Ack carries the reply to a command.
func (t Topics) Ack(frontend string) string { return t.frontend(frontend, "ack") }

// State carries the retained status snapshot of a frontend.
func (t Topics) State(frontend string) string { return t.frontend(frontend, "state") }

// Event carries one message per finished tuning attempt.
func (t Topics) Event(frontend string) string { return t.frontend(frontend, "event") }

// AllCommands matches the command topic of every frontend.
func (t Topics) AllCommands() string { return t.frontend("+", "command") }

func (t Topics) frontend(name, leaf string) string {
	return t.prefix() + "/frontend/" + name + "/" + leaf
}

// FrontendFromTopic extracts the frontend name from a frontend topic of
// this site.
func (t Topics) FrontendFromTopic(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, t.prefix()+"/frontend/")
	if !ok {
		return "", false
	}
	name, _, ok := strings.Cut(rest, "/")
	if !ok || name == "" {
		return "", false
	}
	return name, true
}
