package session

import "fmt"

// Severity is a presentational marker attached to every notice.
type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityGreen Severity = "green"
	SeverityRed   Severity = "red"
)

// Notice is a single human-readable event delivered to connections.
type Notice struct {
	Text     string   `json:"text"`
	Severity Severity `json:"severity"`
}

func connectedNotice(identity string) Notice {
	return Notice{Text: fmt.Sprintf("%s has connected", identity), Severity: SeverityGreen}
}

func disconnectedNotice(identity string) Notice {
	return Notice{Text: fmt.Sprintf("%s has disconnected", identity), Severity: SeverityRed}
}

func messageNotice(sender, message string) Notice {
	return Notice{Text: fmt.Sprintf("%s: %s", sender, message), Severity: SeverityInfo}
}

func joinedNotice(sender string) Notice {
	return Notice{Text: fmt.Sprintf("%s has joined the room.", sender), Severity: SeverityGreen}
}

func talkingToNotice(sender, receiver string) Notice {
	return Notice{
		Text:     fmt.Sprintf("%s has joined the room. Now talking to %s.", sender, receiver),
		Severity: SeverityGreen,
	}
}

func leftNotice(identity string) Notice {
	return Notice{Text: fmt.Sprintf("%s has left the room.", identity), Severity: SeverityRed}
}
