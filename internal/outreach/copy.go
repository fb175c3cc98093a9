package outreach

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed copy.yaml
var copyYAML []byte

// Message is a fixed subject/body pair.
type Message struct {
	Subject string `yaml:"subject"`
	Body    string `yaml:"body"`
}

// Copy is the fixed outbound text that does not go through the decision service.
type Copy struct {
	PauseAck             Message `yaml:"pause_ack"`
	UnsubscribeAck       Message `yaml:"unsubscribe_ack"`
	BookingIntentSubject string  `yaml:"booking_intent_subject"`
	EscalationSubject    string  `yaml:"escalation_subject"`
}

// ParseCopy decodes copy YAML and substitutes the sender name.
func ParseCopy(raw []byte, fromName string) (*Copy, error) {
	if fromName == "" {
		fromName = "BizDeedz"
	}
	var c Copy
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parse outreach copy: %w", err)
	}
	for _, m := range []*Message{&c.PauseAck, &c.UnsubscribeAck} {
		m.Body = strings.TrimSpace(strings.ReplaceAll(m.Body, "{{from}}", fromName))
		if m.Subject == "" || m.Body == "" {
			return nil, fmt.Errorf("parse outreach copy: acknowledgment is missing subject or body")
		}
	}
	return &c, nil
}

// LoadCopy returns the embedded copy branded with fromName.
func LoadCopy(fromName string) (*Copy, error) {
	return ParseCopy(copyYAML, fromName)
}

// DefaultCopy panics if the embedded copy is malformed.
func DefaultCopy() *Copy {
	c, err := LoadCopy("")
	if err != nil {
		panic(err)
	}
	return c
}

// Escalation renders the escalation notification subject.
func (c *Copy) Escalation(lead string) string {
	return strings.ReplaceAll(c.EscalationSubject, "{{lead}}", lead)
}
